package repository

import (
	"context"
	"sync"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/rs/zerolog"
)

// MemorySessionRepository keeps booking dialogs in process memory. Sessions
// idle for longer than ttl are dropped on access and by the sweeper.
type MemorySessionRepository struct {
	sessions   sync.Map // int64 -> *models.Session
	rateLimits sync.Map // int64 -> *rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

var _ domain.SessionRepository = (*MemorySessionRepository)(nil)

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		ttl: ttl,
		now: time.Now,
	}
}

// WithClock replaces time.Now; used by tests.
func (r *MemorySessionRepository) WithClock(now func() time.Time) *MemorySessionRepository {
	r.now = now
	return r
}

func (r *MemorySessionRepository) GetSession(_ context.Context, callerID int64) (*models.Session, error) {
	val, ok := r.sessions.Load(callerID)
	if !ok {
		return nil, nil
	}
	s := val.(*models.Session)
	if s.Expired(r.now(), r.ttl) {
		r.sessions.CompareAndDelete(callerID, s)
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySessionRepository) SaveSession(_ context.Context, session *models.Session) error {
	cp := *session
	if cp.LastTouched.IsZero() {
		cp.LastTouched = r.now()
	}
	r.sessions.Store(cp.CallerID, &cp)
	return nil
}

func (r *MemorySessionRepository) DeleteSession(_ context.Context, callerID int64) error {
	r.sessions.Delete(callerID)
	return nil
}

// Sweep evicts expired sessions and returns how many were removed.
func (r *MemorySessionRepository) Sweep() int {
	now := r.now()
	removed := 0
	r.sessions.Range(func(key, val any) bool {
		if val.(*models.Session).Expired(now, r.ttl) && r.sessions.CompareAndDelete(key, val) {
			removed++
		}
		return true
	})
	r.rateLimits.Range(func(key, val any) bool {
		if now.After(val.(*rateLimitEntry).expiresAt) {
			r.rateLimits.CompareAndDelete(key, val)
		}
		return true
	})
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (r *MemorySessionRepository) StartSweeper(ctx context.Context, interval time.Duration, logger *zerolog.Logger) {
	if interval <= 0 || r.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 && logger != nil {
				logger.Debug().Int("evicted", n).Msg("Expired booking sessions removed")
			}
		}
	}
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemorySessionRepository) CheckRateLimit(_ context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := r.now()
	val, _ := r.rateLimits.LoadOrStore(userID, &rateLimitEntry{expiresAt: now.Add(window)})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.After(entry.expiresAt) {
		entry.count = 0
		entry.expiresAt = now.Add(window)
	}
	entry.count++
	return entry.count <= limit, nil
}
