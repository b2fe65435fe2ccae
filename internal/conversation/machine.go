// Package conversation runs the multi-turn booking dialog. Each caller has at
// most one session; every turn validates one field before the session moves on,
// and the last turn hands the collected draft to a ReservationCreator.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/rs/zerolog"
)

// ReservationCreator persists a finished draft atomically.
type ReservationCreator interface {
	Create(ctx context.Context, r *models.Reservation) error
}

type Outcome int

const (
	// OutcomeNoSession: the caller has no dialog in progress; nothing changed.
	OutcomeNoSession Outcome = iota
	// OutcomeAdvanced: the input was accepted and the session moved to the next state.
	OutcomeAdvanced
	// OutcomeRetry: the input was rejected; the session stays where it was.
	OutcomeRetry
	OutcomeCommitted
	OutcomeConflict
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoSession:
		return "no_session"
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeRetry:
		return "retry"
	case OutcomeCommitted:
		return "committed"
	case OutcomeConflict:
		return "conflict"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Result describes one handled turn.
type Result struct {
	Outcome Outcome
	// State after the turn. Committed and Aborted sessions are already deleted.
	State models.BookingState
	// Session is a snapshot after the turn; nil when there was none.
	Session *models.Session
	// Reservation is set when Outcome is OutcomeCommitted.
	Reservation *models.Reservation
	// Err explains a retry (*domain.ValidationError) or why the commit failed.
	Err error
}

type Machine struct {
	sessions     domain.SessionRepository
	creator      ReservationCreator
	now          func() time.Time
	loc          *time.Location
	skipWords    []string
	maxDaysAhead int
	logger       *zerolog.Logger

	locksMu sync.Mutex
	locks   map[int64]*callerLock
}

type callerLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithLocation sets the zone in which "today" is computed.
func WithLocation(loc *time.Location) Option {
	return func(m *Machine) { m.loc = loc }
}

// WithSkipWords replaces the words that leave the description empty. Matching ignores case.
func WithSkipWords(words ...string) Option {
	return func(m *Machine) { m.skipWords = normalizeWords(words) }
}

// WithMaxDaysAhead rejects dates further than days from today. Zero disables the check.
func WithMaxDaysAhead(days int) Option {
	return func(m *Machine) { m.maxDaysAhead = days }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

var DefaultSkipWords = []string{"skip", "sin descripcion", "sin descripción"}

func New(sessions domain.SessionRepository, creator ReservationCreator, opts ...Option) *Machine {
	nop := zerolog.Nop()
	m := &Machine{
		sessions:  sessions,
		creator:   creator,
		now:       time.Now,
		loc:       time.Local,
		skipWords: normalizeWords(DefaultSkipWords),
		logger:    &nop,
		locks:     make(map[int64]*callerLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func normalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// lock serializes turns of one caller. The entry is dropped once nobody holds or waits for it.
func (m *Machine) lock(callerID int64) func() {
	m.locksMu.Lock()
	l, ok := m.locks[callerID]
	if !ok {
		l = &callerLock{}
		m.locks[callerID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, callerID)
		}
		m.locksMu.Unlock()
	}
}

func (m *Machine) today() time.Time {
	return models.DateOf(m.now().In(m.loc))
}

// Begin starts a dialog for room, replacing any unfinished one of the caller.
func (m *Machine) Begin(ctx context.Context, callerID int64, room *models.Room) (*models.Session, error) {
	if room == nil || room.ID <= 0 {
		return nil, domain.NewValidationError("room_id", "must be positive")
	}
	unlock := m.lock(callerID)
	defer unlock()

	s := &models.Session{
		CallerID: callerID,
		RoomID:   room.ID,
		RoomName: room.Name,
		State:    models.StateAwaitingTitle,
	}
	s.Touch(m.now())
	if err := m.sessions.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	m.logger.Debug().Int64("caller_id", callerID).Int64("room_id", room.ID).Msg("Booking dialog started")
	return s, nil
}

// Current returns the caller's session or nil.
func (m *Machine) Current(ctx context.Context, callerID int64) (*models.Session, error) {
	s, err := m.sessions.GetSession(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return s, nil
}

// Handle consumes one text turn of the caller. The returned error is reserved
// for session store failures; every dialog outcome is reported in Result.
func (m *Machine) Handle(ctx context.Context, callerID int64, text string) (Result, error) {
	unlock := m.lock(callerID)
	defer unlock()

	s, err := m.sessions.GetSession(ctx, callerID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load session: %w", err)
	}
	if s == nil {
		return Result{Outcome: OutcomeNoSession, State: models.StateIdle}, nil
	}

	var verr error
	switch s.State {
	case models.StateAwaitingTitle:
		verr = m.acceptTitle(s, text)
	case models.StateAwaitingDate:
		verr = m.acceptDate(s, text)
	case models.StateAwaitingStart:
		verr = m.acceptStart(s, text)
	case models.StateAwaitingEnd:
		verr = m.acceptEnd(s, text)
	case models.StateAwaitingDescription:
		return m.commit(ctx, s, text), nil
	default:
		// stale record in a state no turn can consume
		if err := m.sessions.DeleteSession(ctx, callerID); err != nil {
			m.logger.Warn().Err(err).Int64("caller_id", callerID).Msg("Failed to drop stale session")
		}
		return Result{Outcome: OutcomeNoSession, State: models.StateIdle}, nil
	}

	if verr != nil {
		return Result{Outcome: OutcomeRetry, State: s.State, Session: s, Err: verr}, nil
	}

	s.Touch(m.now())
	if err := m.sessions.SaveSession(ctx, s); err != nil {
		return Result{}, fmt.Errorf("failed to save session: %w", err)
	}
	return Result{Outcome: OutcomeAdvanced, State: s.State, Session: s}, nil
}

func (m *Machine) acceptTitle(s *models.Session, text string) error {
	title := strings.TrimSpace(text)
	if title == "" {
		return domain.NewValidationError("title", "must not be empty")
	}
	s.Title = title
	s.State = models.StateAwaitingDate
	return nil
}

func (m *Machine) acceptDate(s *models.Session, text string) error {
	date, err := models.ParseDate(text)
	if err != nil {
		return domain.NewValidationError("date", "expected DD/MM/YYYY")
	}
	today := m.today()
	if date.Before(today) {
		return domain.NewValidationError("date", "is in the past")
	}
	if m.maxDaysAhead > 0 && date.After(today.AddDate(0, 0, m.maxDaysAhead)) {
		return domain.NewValidationError("date", fmt.Sprintf("is more than %d days ahead", m.maxDaysAhead))
	}
	s.Date = date
	s.State = models.StateAwaitingStart
	return nil
}

func (m *Machine) acceptStart(s *models.Session, text string) error {
	start, err := models.ParseTimeOfDay(text)
	if err != nil {
		return domain.NewValidationError("start", "expected HH:MM")
	}
	s.Start = start
	s.State = models.StateAwaitingEnd
	return nil
}

func (m *Machine) acceptEnd(s *models.Session, text string) error {
	end, err := models.ParseTimeOfDay(text)
	if err != nil {
		return domain.NewValidationError("end", "expected HH:MM")
	}
	if end <= s.Start {
		return domain.NewValidationError("end", "must be after start")
	}
	s.End = end
	s.State = models.StateAwaitingDescription
	return nil
}

func (m *Machine) isSkip(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, w := range m.skipWords {
		if t == w {
			return true
		}
	}
	return false
}

// commit creates the reservation and discards the session whatever the result.
func (m *Machine) commit(ctx context.Context, s *models.Session, text string) Result {
	description := strings.TrimSpace(text)
	if m.isSkip(description) {
		description = ""
	}

	r := &models.Reservation{
		RoomID:      s.RoomID,
		RoomName:    s.RoomName,
		OwnerID:     s.CallerID,
		Title:       s.Title,
		Date:        s.Date,
		Start:       s.Start,
		End:         s.End,
		Description: description,
	}
	err := m.creator.Create(ctx, r)

	if derr := m.sessions.DeleteSession(ctx, s.CallerID); derr != nil {
		m.logger.Warn().Err(derr).Int64("caller_id", s.CallerID).Msg("Failed to discard finished session")
	}

	log := m.logger.With().Int64("caller_id", s.CallerID).Int64("room_id", s.RoomID).Logger()
	switch {
	case err == nil:
		s.State = models.StateCommitted
		log.Info().Int64("reservation_id", r.ID).Msg("Booking dialog committed")
		return Result{Outcome: OutcomeCommitted, State: s.State, Session: s, Reservation: r}
	case errors.Is(err, domain.ErrConflict):
		s.State = models.StateAborted
		log.Info().Err(err).Msg("Booking dialog aborted: conflict")
		return Result{Outcome: OutcomeConflict, State: s.State, Session: s, Err: err}
	default:
		s.State = models.StateAborted
		log.Error().Err(err).Msg("Booking dialog aborted")
		return Result{Outcome: OutcomeFailed, State: s.State, Session: s, Err: err}
	}
}
