package models

import (
	"sort"
	"time"
)

type Reservation struct {
	ID          int64     `json:"id"`
	RoomID      int64     `json:"room_id"`
	RoomName    string    `json:"room_name,omitempty"`
	OwnerID     int64     `json:"owner_id"` // Telegram ID of the caller who booked it
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Start       TimeOfDay `json:"start"`
	End         TimeOfDay `json:"end"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"` // reserved, cancelled
	CreatedAt   time.Time `json:"created_at"`
}

func (r *Reservation) IsReserved() bool {
	return r.Status == StatusReserved
}

// SortReservations orders by date, then start time, then id.
func SortReservations(rs []*Reservation) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].Date.Equal(rs[j].Date) {
			return rs[i].Date.Before(rs[j].Date)
		}
		if rs[i].Start != rs[j].Start {
			return rs[i].Start < rs[j].Start
		}
		return rs[i].ID < rs[j].ID
	})
}
