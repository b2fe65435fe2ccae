package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"auditorium/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func setupTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	opts = append([]Option{WithClock(fixedClock), WithLocation(time.UTC)}, opts...)
	db, err := NewDB(filepath.Join(t.TempDir(), "auditorium.db"), &logger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createRoom(t *testing.T, db *DB, name string, capacity int) *models.Room {
	t.Helper()
	room := &models.Room{Name: name, Capacity: capacity, Location: "Edificio 1", IsActive: true}
	require.NoError(t, db.UpsertRoom(context.Background(), room))
	return room
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, DriverCGO, db.Driver())
}

func TestNewDB_MigrateTwice(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.migrate())
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestNewDB_UnknownDriver(t *testing.T) {
	logger := zerolog.Nop()
	_, err := NewDB(filepath.Join(t.TempDir(), "x.db"), &logger, WithDriver("postgres"))
	assert.Error(t, err)
}

func TestNewDB_PureGoDriver(t *testing.T) {
	db := setupTestDB(t, WithDriver(DriverPure))
	assert.Equal(t, DriverPure, db.Driver())

	ctx := context.Background()
	room := createRoom(t, db, "Auditorio Central", 200)

	res := &models.Reservation{
		RoomID:  room.ID,
		OwnerID: 7,
		Title:   "Charla",
		Date:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Start:   models.NewTimeOfDay(14, 0),
		End:     models.NewTimeOfDay(15, 0),
	}
	require.NoError(t, db.CreateReservation(ctx, res))

	list, err := db.ListReservationsByRoom(ctx, room.ID, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Charla", list[0].Title)
	assert.Equal(t, "Auditorio Central", list[0].RoomName)
}

func TestDB_ErrorPaths(t *testing.T) {
	db := setupTestDB(t)
	db.Close()

	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := db.GetActiveRooms(ctx)
	assert.Error(t, err)

	err = db.CreateReservation(ctx, &models.Reservation{
		RoomID: 1, OwnerID: 1, Title: "x", Date: day,
		Start: models.NewTimeOfDay(10, 0), End: models.NewTimeOfDay(11, 0),
	})
	assert.Error(t, err)

	_, err = db.ListReservationsByUser(ctx, 1)
	assert.Error(t, err)

	_, err = db.GetPendingSyncTasks(ctx, 10)
	assert.Error(t, err)

	err = db.UpsertUser(ctx, &models.User{TelegramID: 1})
	assert.Error(t, err)
}
