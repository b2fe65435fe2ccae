package models

import "time"

// BookingState is a step of the reservation dialog.
type BookingState int

const (
	StateIdle BookingState = iota
	StateAwaitingTitle
	StateAwaitingDate
	StateAwaitingStart
	StateAwaitingEnd
	StateAwaitingDescription
	StateCommitted
	StateAborted
)

var bookingStateNames = map[BookingState]string{
	StateIdle:                "idle",
	StateAwaitingTitle:       "awaiting_title",
	StateAwaitingDate:        "awaiting_date",
	StateAwaitingStart:       "awaiting_start",
	StateAwaitingEnd:         "awaiting_end",
	StateAwaitingDescription: "awaiting_description",
	StateCommitted:           "committed",
	StateAborted:             "aborted",
}

func (s BookingState) String() string {
	if name, ok := bookingStateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s BookingState) Terminal() bool {
	return s == StateCommitted || s == StateAborted
}

// Session is the per-caller draft collected by the booking dialog.
type Session struct {
	CallerID    int64        `json:"caller_id"`
	RoomID      int64        `json:"room_id"`
	RoomName    string       `json:"room_name"`
	State       BookingState `json:"state"`
	Title       string       `json:"title,omitempty"`
	Date        time.Time    `json:"date,omitempty"`
	Start       TimeOfDay    `json:"start,omitempty"`
	End         TimeOfDay    `json:"end,omitempty"`
	LastTouched time.Time    `json:"last_touched"`
}

func (s *Session) Touch(now time.Time) {
	s.LastTouched = now
}

// Expired reports whether the session sat idle for longer than ttl. A non-positive ttl never expires.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || s.LastTouched.IsZero() {
		return false
	}
	return now.Sub(s.LastTouched) > ttl
}
