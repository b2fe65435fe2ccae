package repository

import (
	"context"
	"sync/atomic"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/rs/zerolog"
)

const failoverRetryAfter = time.Minute

// FailoverSessionRepository uses primary (Redis) and switches to fallback
// (memory) after the first primary error. The primary is probed again once
// failoverRetryAfter has passed.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nanos
	now       func() time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to the primary store.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	return r.now().Sub(last) > failoverRetryAfter
}

func (r *FailoverSessionRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverSessionRepository) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary session repository recovered")
	}
}

func (r *FailoverSessionRepository) Degraded() bool {
	return r.isDown.Load()
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, callerID int64) (*models.Session, error) {
	if r.usePrimary() {
		session, err := r.primary.GetSession(ctx, callerID)
		if err == nil {
			r.markUp()
			return session, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetSession(ctx, callerID)
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, session *models.Session) error {
	if r.usePrimary() {
		err := r.primary.SaveSession(ctx, session)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveSession(ctx, session)
}

func (r *FailoverSessionRepository) DeleteSession(ctx context.Context, callerID int64) error {
	// the session may live in either store
	_ = r.fallback.DeleteSession(ctx, callerID)
	if r.usePrimary() {
		err := r.primary.DeleteSession(ctx, callerID)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}
