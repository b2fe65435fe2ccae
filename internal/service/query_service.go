package service

import (
	"context"
	"time"

	"auditorium/internal/availability"
	"auditorium/internal/domain"
	"auditorium/internal/models"
)

var _ domain.QueryService = (*QueryService)(nil)

// QueryService is the read path shared by both front ends.
type QueryService struct {
	repo domain.Repository
	now  func() time.Time
	loc  *time.Location
}

func NewQueryService(repo domain.Repository, opts ...Option) *QueryService {
	o := buildOptions(opts)
	return &QueryService{repo: repo, now: o.now, loc: o.loc}
}

// Today is the current calendar day in the service zone.
func (s *QueryService) Today() time.Time {
	return models.DateOf(s.now().In(s.loc))
}

func (s *QueryService) ListRooms(ctx context.Context) ([]*models.Room, error) {
	return s.repo.GetActiveRooms(ctx)
}

func (s *QueryService) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	return s.repo.GetRoomByID(ctx, id)
}

// RoomEvents lists reserved events of an active room, optionally for one day.
func (s *QueryService) RoomEvents(ctx context.Context, roomID int64, date *time.Time) ([]*models.Reservation, error) {
	if _, err := s.repo.GetRoomByID(ctx, roomID); err != nil {
		return nil, err
	}
	return s.repo.ListReservationsByRoom(ctx, roomID, date)
}

func (s *QueryService) TodayEvents(ctx context.Context, roomID int64) ([]*models.Reservation, error) {
	today := s.Today()
	return s.RoomEvents(ctx, roomID, &today)
}

// UpcomingRoomEvents returns at most limit events from today on.
func (s *QueryService) UpcomingRoomEvents(ctx context.Context, roomID int64, limit int) ([]*models.Reservation, error) {
	all, err := s.RoomEvents(ctx, roomID, nil)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	out := make([]*models.Reservation, 0, limit)
	for _, r := range all {
		if r.Date.Before(today) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// CheckAvailability reports whether [start, end) is free in the room on date.
// The answer is advisory; the store re-checks on create.
func (s *QueryService) CheckAvailability(ctx context.Context, roomID int64, date time.Time, start, end models.TimeOfDay) (bool, error) {
	if start >= end {
		return false, domain.NewValidationError("end", "must be after start")
	}
	day := models.DateOf(date)
	existing, err := s.RoomEvents(ctx, roomID, &day)
	if err != nil {
		return false, err
	}
	return availability.IsAvailable(availability.Interval{Start: start, End: end}, existing), nil
}

func (s *QueryService) UserEvents(ctx context.Context, ownerID int64) ([]*models.Reservation, error) {
	return s.repo.ListReservationsByUser(ctx, ownerID)
}

// Schedule returns reserved events between from and to inclusive; roomID 0 means all rooms.
func (s *QueryService) Schedule(ctx context.Context, roomID int64, from, to time.Time) ([]*models.Reservation, error) {
	if to.Before(from) {
		return nil, domain.NewValidationError("to", "must not be before from")
	}
	if roomID != 0 {
		if _, err := s.repo.GetRoomByID(ctx, roomID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListReservationsInRange(ctx, roomID, from, to)
}
