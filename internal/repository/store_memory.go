package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"auditorium/internal/availability"
	"auditorium/internal/domain"
	"auditorium/internal/models"
)

// MemoryStore implements domain.Repository in process memory. One RWMutex
// guards all maps; CreateReservation holds the write lock across the conflict
// check and the insert.
type MemoryStore struct {
	mu           sync.RWMutex
	rooms        map[int64]*models.Room
	reservations map[int64]*models.Reservation
	users        map[int64]*models.User // by telegram id
	nextID       map[string]int64
	now          func() time.Time
	loc          *time.Location
}

var _ domain.Repository = (*MemoryStore)(nil)

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		rooms:        make(map[int64]*models.Room),
		reservations: make(map[int64]*models.Reservation),
		users:        make(map[int64]*models.User),
		nextID:       make(map[string]int64),
		now:          now,
		loc:          time.Local,
	}
}

// WithLocation sets the zone whose calendar day is "today" for past-date checks.
func (s *MemoryStore) WithLocation(loc *time.Location) *MemoryStore {
	if loc != nil {
		s.loc = loc
	}
	return s
}

func (s *MemoryStore) id(kind string) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

func (s *MemoryStore) GetActiveRooms(_ context.Context) ([]*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []*models.Room
	for _, r := range s.rooms {
		if r.IsActive {
			cp := *r
			rooms = append(rooms, &cp)
		}
	}
	slices.SortFunc(rooms, func(a, b *models.Room) int { return strings.Compare(a.Name, b.Name) })
	return rooms, nil
}

func (s *MemoryStore) GetRoomByID(_ context.Context, id int64) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[id]
	if !ok || !r.IsActive {
		return nil, fmt.Errorf("room %d: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) UpsertRoom(_ context.Context, room *models.Room) error {
	if room.Name == "" {
		return domain.NewValidationError("name", "must not be empty")
	}
	if room.Capacity <= 0 {
		return domain.NewValidationError("capacity", "must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rooms {
		if existing.Name == room.Name {
			room.ID = existing.ID
			room.CreatedAt = existing.CreatedAt
			cp := *room
			s.rooms[room.ID] = &cp
			return nil
		}
	}
	room.ID = s.id("room")
	room.CreatedAt = s.now().UTC()
	cp := *room
	s.rooms[room.ID] = &cp
	return nil
}

func (s *MemoryStore) DeactivateRoom(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok || !r.IsActive {
		return fmt.Errorf("room %d: %w", id, domain.ErrNotFound)
	}
	r.IsActive = false
	return nil
}

func (s *MemoryStore) CreateReservation(_ context.Context, r *models.Reservation) error {
	if err := domain.ValidateReservation(r, models.DateOf(s.now().In(s.loc))); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[r.RoomID]
	if !ok || !room.IsActive {
		return fmt.Errorf("room %d: %w", r.RoomID, domain.ErrNotFound)
	}

	date := models.DateOf(r.Date)
	var sameDay []*models.Reservation
	for _, existing := range s.reservations {
		if existing.RoomID == r.RoomID && existing.Date.Equal(date) {
			sameDay = append(sameDay, existing)
		}
	}
	if clash, conflict := availability.FindConflict(availability.Of(r), sameDay); conflict {
		return fmt.Errorf("room %d on %s %s-%s overlaps reservation %d: %w",
			r.RoomID, date.Format(models.DateLayout), r.Start, r.End, clash.ID, domain.ErrConflict)
	}

	now := s.now().UTC()
	if _, known := s.users[r.OwnerID]; !known {
		s.users[r.OwnerID] = &models.User{ID: s.id("user"), TelegramID: r.OwnerID, CreatedAt: now}
	}

	r.ID = s.id("reservation")
	r.Title = strings.TrimSpace(r.Title)
	r.Date = date
	r.RoomName = room.Name
	r.Status = models.StatusReserved
	r.CreatedAt = now

	cp := *r
	s.reservations[r.ID] = &cp
	return nil
}

func (s *MemoryStore) CancelReservation(_ context.Context, id, ownerID int64) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok || !r.IsReserved() {
		return nil, fmt.Errorf("reservation %d: %w", id, domain.ErrNotFound)
	}
	if r.OwnerID != ownerID {
		return nil, fmt.Errorf("reservation %d owned by %d, requested by %d: %w",
			id, r.OwnerID, ownerID, domain.ErrPermissionDenied)
	}
	r.Status = models.StatusCancelled
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) GetReservation(_ context.Context, id int64) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %d: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListReservationsByRoom(_ context.Context, roomID int64, date *time.Time) ([]*models.Reservation, error) {
	return s.filter(func(r *models.Reservation) bool {
		return r.RoomID == roomID && (date == nil || r.Date.Equal(models.DateOf(*date)))
	}), nil
}

func (s *MemoryStore) ListReservationsByUser(_ context.Context, ownerID int64) ([]*models.Reservation, error) {
	return s.filter(func(r *models.Reservation) bool {
		return r.OwnerID == ownerID
	}), nil
}

func (s *MemoryStore) ListReservationsInRange(_ context.Context, roomID int64, from, to time.Time) ([]*models.Reservation, error) {
	from, to = models.DateOf(from), models.DateOf(to)
	return s.filter(func(r *models.Reservation) bool {
		return (roomID == 0 || r.RoomID == roomID) && !r.Date.Before(from) && !r.Date.After(to)
	}), nil
}

// filter returns sorted copies of the reserved entries matching keep.
func (s *MemoryStore) filter(keep func(*models.Reservation) bool) []*models.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Reservation
	for _, r := range s.reservations {
		if r.IsReserved() && keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	models.SortReservations(out)
	return out
}

func (s *MemoryStore) UpsertUser(_ context.Context, user *models.User) error {
	if user.TelegramID == 0 {
		return domain.NewValidationError("telegram_id", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[user.TelegramID]; ok {
		*user = *existing
		return nil
	}
	user.ID = s.id("user")
	user.CreatedAt = s.now().UTC()
	cp := *user
	s.users[user.TelegramID] = &cp
	return nil
}

func (s *MemoryStore) GetUserByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[telegramID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", telegramID, domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}
