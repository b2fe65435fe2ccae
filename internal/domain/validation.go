package domain

import (
	"strings"
	"time"

	"auditorium/internal/models"
)

// ValidateReservation checks the fields a new reservation must satisfy before
// any availability check. today is the calendar day of the caller's clock.
func ValidateReservation(r *models.Reservation, today time.Time) error {
	if r == nil {
		return NewValidationError("reservation", "is required")
	}
	if r.RoomID <= 0 {
		return NewValidationError("room_id", "must be positive")
	}
	if r.OwnerID == 0 {
		return NewValidationError("owner", "is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return NewValidationError("title", "must not be empty")
	}
	if r.Date.IsZero() {
		return NewValidationError("date", "is required")
	}
	if models.DateOf(r.Date).Before(models.DateOf(today)) {
		return NewValidationError("date", "is in the past")
	}
	if r.Start < 0 || r.End > models.NewTimeOfDay(24, 0) {
		return NewValidationError("time", "out of range")
	}
	if r.Start >= r.End {
		return NewValidationError("end", "must be after start")
	}
	return nil
}
