package models

import "time"

type Room struct {
	ID          int64     `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Capacity    int       `yaml:"capacity" json:"capacity"`
	Location    string    `yaml:"location" json:"location"`
	Description string    `yaml:"description" json:"description,omitempty"`
	IsActive    bool      `yaml:"is_active" json:"is_active"`
	CreatedAt   time.Time `yaml:"-" json:"created_at"`
}
