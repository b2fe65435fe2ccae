package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"auditorium/internal/availability"
	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var june1 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newReservation(roomID, owner int64, title string, date time.Time, start, end string) *models.Reservation {
	s, _ := models.ParseTimeOfDay(start)
	e, _ := models.ParseTimeOfDay(end)
	return &models.Reservation{
		RoomID:  roomID,
		OwnerID: owner,
		Title:   title,
		Date:    date,
		Start:   s,
		End:     e,
	}
}

func TestCreateReservation_TouchingAndOverlapping(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	room := createRoom(t, db, "A", 50)

	first := newReservation(room.ID, 1, "Talk", june1, "14:00", "15:00")
	require.NoError(t, db.CreateReservation(ctx, first))
	assert.NotZero(t, first.ID)
	assert.Equal(t, models.StatusReserved, first.Status)
	assert.Equal(t, "A", first.RoomName)

	err := db.CreateReservation(ctx, newReservation(room.ID, 2, "Overlap", june1, "14:30", "15:30"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	touching := newReservation(room.ID, 2, "Next", june1, "15:00", "16:00")
	require.NoError(t, db.CreateReservation(ctx, touching))

	other := createRoom(t, db, "B", 50)
	assert.NoError(t, db.CreateReservation(ctx, newReservation(other.ID, 3, "Same slot other room", june1, "14:00", "15:00")))
	assert.NoError(t, db.CreateReservation(ctx, newReservation(room.ID, 3, "Same slot other day", june1.AddDate(0, 0, 1), "14:00", "15:00")))
}

func TestCreateReservation_Validation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	room := createRoom(t, db, "A", 50)

	tests := []struct {
		name string
		r    *models.Reservation
	}{
		{"end before start", newReservation(room.ID, 1, "x", june1, "14:00", "13:00")},
		{"empty interval", newReservation(room.ID, 1, "x", june1, "14:00", "14:00")},
		{"empty title", newReservation(room.ID, 1, "   ", june1, "14:00", "15:00")},
		{"past date", newReservation(room.ID, 1, "x", testNow.AddDate(0, 0, -1), "14:00", "15:00")},
		{"no owner", newReservation(room.ID, 0, "x", june1, "14:00", "15:00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.CreateReservation(ctx, tt.r)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	err := db.CreateReservation(ctx, newReservation(999, 1, "x", june1, "14:00", "15:00"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := db.ListReservationsByRoom(ctx, room.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateReservation_TodayAllowed(t *testing.T) {
	db := setupTestDB(t)
	room := createRoom(t, db, "A", 50)
	assert.NoError(t, db.CreateReservation(context.Background(), newReservation(room.ID, 1, "Hoy", testNow, "18:00", "19:00")))
}

// At 01:00 UTC on June 2nd the booking zone (UTC-6) is still on June 1st.
func TestCreateReservation_TodayFollowsBookingZone(t *testing.T) {
	zone := time.FixedZone("UTC-6", -6*60*60)
	lateEvening := func() time.Time { return time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	db := setupTestDB(t, WithClock(lateEvening), WithLocation(zone))
	room := createRoom(t, db, "A", 50)
	assert.NoError(t, db.CreateReservation(ctx, newReservation(room.ID, 1, "Noche", june1, "20:00", "21:00")))

	var verr *domain.ValidationError
	err := db.CreateReservation(ctx, newReservation(room.ID, 1, "Ayer", june1.AddDate(0, 0, -1), "20:00", "21:00"))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "date", verr.Field)

	utc := setupTestDB(t, WithClock(lateEvening))
	utcRoom := createRoom(t, utc, "A", 50)
	err = utc.CreateReservation(ctx, newReservation(utcRoom.ID, 1, "Noche", june1, "20:00", "21:00"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateReservation_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	room := createRoom(t, db, "Limited", 10)

	const numGoroutines = 20
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			// windows 10:00-11:00, 10:15-11:15, ... all pairwise overlapping with a neighbour
			start := models.NewTimeOfDay(10, 0) + models.TimeOfDay(i*15)
			r := &models.Reservation{
				RoomID:  room.ID,
				OwnerID: int64(i + 1),
				Title:   fmt.Sprintf("Evento %d", i),
				Date:    june1,
				Start:   start,
				End:     start + 60,
			}
			results <- db.CreateReservation(ctx, r)
		}(i)
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Positive(t, success)

	list, err := db.ListReservationsByRoom(ctx, room.ID, &june1)
	require.NoError(t, err)
	assert.Len(t, list, success)
	for i := range list {
		for j := i + 1; j < len(list); j++ {
			assert.False(t, availability.Overlaps(availability.Of(list[i]), availability.Of(list[j])),
				"reservations %d and %d overlap", list[i].ID, list[j].ID)
		}
	}
}

func TestCreateReservation_ConcurrentIdenticalWindow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	room := createRoom(t, db, "Single", 10)

	const n = 10
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- db.CreateReservation(ctx, newReservation(room.ID, int64(i+1), "Mismo", june1, "10:00", "11:00"))
		}(i)
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, success)
}

func TestCancelReservation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	room := createRoom(t, db, "A", 50)

	const ownerX, ownerY = int64(100), int64(200)
	r := newReservation(room.ID, ownerX, "Talk", june1, "14:00", "15:00")
	require.NoError(t, db.CreateReservation(ctx, r))

	_, err := db.CancelReservation(ctx, r.ID, ownerY)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	cancelled, err := db.CancelReservation(ctx, r.ID, ownerX)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = db.CancelReservation(ctx, r.ID, ownerX)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = db.CancelReservation(ctx, 12345, ownerX)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)

	// the freed slot can be booked again
	assert.NoError(t, db.CreateReservation(ctx, newReservation(room.ID, ownerY, "Reuse", june1, "14:00", "15:00")))
}

func TestListReservations_SortedAndReservedOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	room := createRoom(t, db, "A", 50)
	other := createRoom(t, db, "B", 50)

	june2 := june1.AddDate(0, 0, 1)
	inputs := []*models.Reservation{
		newReservation(room.ID, 1, "late day 2", june2, "16:00", "17:00"),
		newReservation(room.ID, 1, "early day 2", june2, "08:00", "09:00"),
		newReservation(room.ID, 2, "day 1 noon", june1, "12:00", "13:00"),
		newReservation(other.ID, 1, "other room", june1, "07:00", "08:00"),
		newReservation(room.ID, 1, "to cancel", june1, "09:00", "10:00"),
	}
	for _, r := range inputs {
		require.NoError(t, db.CreateReservation(ctx, r))
	}
	_, err := db.CancelReservation(ctx, inputs[4].ID, 1)
	require.NoError(t, err)

	byRoom, err := db.ListReservationsByRoom(ctx, room.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"day 1 noon", "early day 2", "late day 2"}, titles(byRoom))

	byDay, err := db.ListReservationsByRoom(ctx, room.ID, &june2)
	require.NoError(t, err)
	assert.Equal(t, []string{"early day 2", "late day 2"}, titles(byDay))

	byUser, err := db.ListReservationsByUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"other room", "early day 2", "late day 2"}, titles(byUser))
	for _, r := range byUser {
		assert.True(t, r.IsReserved())
		assert.Equal(t, int64(1), r.OwnerID)
	}

	inRange, err := db.ListReservationsInRange(ctx, 0, june1, june1)
	require.NoError(t, err)
	assert.Equal(t, []string{"other room", "day 1 noon"}, titles(inRange))

	inRoomRange, err := db.ListReservationsInRange(ctx, room.ID, june1, june2)
	require.NoError(t, err)
	assert.Len(t, inRoomRange, 3)
}

func titles(list []*models.Reservation) []string {
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.Title)
	}
	return out
}

func TestGetReservation_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetReservation(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
