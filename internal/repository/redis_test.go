package repository

import (
	"context"
	"testing"
	"time"

	"auditorium/internal/config"
	"auditorium/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSessionRepository(t *testing.T) {
	s := miniredis.RunT(t)

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()
	require.NoError(t, Ping(context.Background(), client))

	repo := NewRedisSessionRepository(client, 30*time.Minute)
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		session := &models.Session{
			CallerID:    123,
			RoomID:      4,
			RoomName:    "Auditorio Central",
			State:       models.StateAwaitingEnd,
			Title:       "Meetup",
			Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			Start:       models.NewTimeOfDay(14, 0),
			LastTouched: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		}
		require.NoError(t, repo.SaveSession(ctx, session))
		assert.True(t, s.Exists("booking_session:123"))

		got, err := repo.GetSession(ctx, 123)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.StateAwaitingEnd, got.State)
		assert.Equal(t, "Meetup", got.Title)
		assert.Equal(t, models.NewTimeOfDay(14, 0), got.Start)
		assert.True(t, session.Date.Equal(got.Date))
	})

	t.Run("Missing", func(t *testing.T) {
		got, err := repo.GetSession(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteSession(ctx, 123))
		got, _ := repo.GetSession(ctx, 123)
		assert.Nil(t, got)
	})

	t.Run("TTL", func(t *testing.T) {
		require.NoError(t, repo.SaveSession(ctx, &models.Session{CallerID: 789, State: models.StateAwaitingTitle}))
		s.FastForward(31 * time.Minute)
		got, err := repo.GetSession(ctx, 789)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CorruptPayload", func(t *testing.T) {
		require.NoError(t, s.Set("booking_session:55", "{not json"))
		_, err := repo.GetSession(ctx, 55)
		assert.Error(t, err)
	})

	t.Run("RateLimit", func(t *testing.T) {
		userID := int64(111)
		limit := 2
		window := time.Minute

		allowed, err := repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, _ = repo.CheckRateLimit(ctx, userID, limit, window)
		assert.True(t, allowed)

		allowed, _ = repo.CheckRateLimit(ctx, userID, limit, window)
		assert.False(t, allowed)

		s.FastForward(window + time.Second)
		allowed, _ = repo.CheckRateLimit(ctx, userID, limit, window)
		assert.True(t, allowed)
	})
}

func TestRedisSessionRepository_NilClient(t *testing.T) {
	repo := NewRedisSessionRepository(nil, time.Minute)
	ctx := context.Background()

	_, err := repo.GetSession(ctx, 1)
	assert.Error(t, err)
	assert.Error(t, repo.SaveSession(ctx, &models.Session{CallerID: 1}))
	assert.Error(t, repo.DeleteSession(ctx, 1))
	_, err = repo.CheckRateLimit(ctx, 1, 1, time.Minute)
	assert.Error(t, err)
}

func TestRedisSessionRepository_ServerDown(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	repo := NewRedisSessionRepository(client, time.Minute)

	s.Close()
	_, err := repo.GetSession(context.Background(), 1)
	assert.Error(t, err)
	assert.Error(t, Ping(context.Background(), client))
}
