// Package availability decides whether a proposed time window collides with
// existing reservations of the same room and day.
package availability

import "auditorium/internal/models"

// Interval is a half-open window [Start, End).
type Interval struct {
	Start models.TimeOfDay
	End   models.TimeOfDay
}

func Of(r *models.Reservation) Interval {
	return Interval{Start: r.Start, End: r.End}
}

// Overlaps reports whether a and b share any minute. Intervals that only touch
// at an endpoint do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}

// FindConflict returns the first reserved entry of existing that overlaps
// candidate. Cancelled entries are ignored. Callers pass reservations of one
// room and one day.
func FindConflict(candidate Interval, existing []*models.Reservation) (*models.Reservation, bool) {
	for _, r := range existing {
		if r == nil || !r.IsReserved() {
			continue
		}
		if Overlaps(candidate, Of(r)) {
			return r, true
		}
	}
	return nil, false
}

func IsAvailable(candidate Interval, existing []*models.Reservation) bool {
	_, conflict := FindConflict(candidate, existing)
	return !conflict
}
