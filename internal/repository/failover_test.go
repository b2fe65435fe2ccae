package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"auditorium/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) GetSession(ctx context.Context, callerID int64) (*models.Session, error) {
	args := m.Called(ctx, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionRepo) SaveSession(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepo) DeleteSession(ctx context.Context, callerID int64) error {
	args := m.Called(ctx, callerID)
	return args.Error(0)
}

func (m *mockSessionRepo) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverSessionRepository(t *testing.T) {
	primary := new(mockSessionRepo)
	fallback := new(mockSessionRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSessionRepository(primary, fallback, &logger)
	ctx := context.Background()

	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	t.Run("PrimarySuccess", func(t *testing.T) {
		session := &models.Session{CallerID: 1}
		primary.On("GetSession", ctx, int64(1)).Return(session, nil).Once()

		got, err := repo.GetSession(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, session, got)
		assert.False(t, repo.Degraded())
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		session := &models.Session{CallerID: 2}
		primary.On("GetSession", ctx, int64(2)).Return(nil, errors.New("connection refused")).Once()
		fallback.On("GetSession", ctx, int64(2)).Return(session, nil).Once()

		got, err := repo.GetSession(ctx, 2)
		assert.NoError(t, err)
		assert.Equal(t, session, got)
		assert.True(t, repo.Degraded())
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		session := &models.Session{CallerID: 3}
		fallback.On("SaveSession", ctx, session).Return(nil).Once()
		require.NoError(t, repo.SaveSession(ctx, session))

		fallback.On("CheckRateLimit", ctx, int64(3), 5, time.Minute).Return(true, nil).Once()
		allowed, err := repo.CheckRateLimit(ctx, 3, 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("RecoveryAfterRetryWindow", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		session := &models.Session{CallerID: 4}
		primary.On("GetSession", ctx, int64(4)).Return(session, nil).Once()

		got, err := repo.GetSession(ctx, 4)
		assert.NoError(t, err)
		assert.Equal(t, session, got)
		assert.False(t, repo.Degraded())
	})

	t.Run("DeleteClearsBoth", func(t *testing.T) {
		fallback.On("DeleteSession", ctx, int64(5)).Return(nil).Once()
		primary.On("DeleteSession", ctx, int64(5)).Return(nil).Once()
		assert.NoError(t, repo.DeleteSession(ctx, 5))
	})

	primary.AssertExpectations(t)
	fallback.AssertExpectations(t)
}
