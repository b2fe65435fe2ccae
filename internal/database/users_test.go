package database

import (
	"context"
	"testing"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertUser_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	u := &models.User{TelegramID: 42, FirstName: "Ana", Username: "ana"}
	require.NoError(t, db.UpsertUser(ctx, u))
	assert.NotZero(t, u.ID)

	dup := &models.User{TelegramID: 42, FirstName: "Otra"}
	require.NoError(t, db.UpsertUser(ctx, dup))
	assert.Equal(t, u.ID, dup.ID)
	assert.Equal(t, "Ana", dup.FirstName)

	n, err := db.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertUser_RequiresIdentity(t *testing.T) {
	db := setupTestDB(t)
	err := db.UpsertUser(context.Background(), &models.User{FirstName: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetUserByTelegramID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.GetUserByTelegramID(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	room := createRoom(t, db, "A", 10)
	r := &models.Reservation{
		RoomID: room.ID, OwnerID: 1, Title: "API", Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Start: models.NewTimeOfDay(9, 0), End: models.NewTimeOfDay(10, 0),
	}
	require.NoError(t, db.CreateReservation(ctx, r))

	// creating a reservation registers an unknown owner
	u, err := db.GetUserByTelegramID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.TelegramID)
	assert.Equal(t, "", u.FirstName)
}
