package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/events"
	"auditorium/internal/metrics"
	"auditorium/internal/models"

	"github.com/rs/zerolog"
)

type sourceKey struct{}

// WithSource tags ctx with the front end a request came from ("bot", "api").
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok {
		return s
	}
	return "system"
}

var _ domain.ReservationService = (*ReservationService)(nil)

// ReservationService is the write path shared by the bot and the API.
type ReservationService struct {
	repo         domain.Repository
	eventBus     domain.EventPublisher
	maxDaysAhead int
	now          func() time.Time
	loc          *time.Location
	logger       *zerolog.Logger
}

type Option func(*options)

type options struct {
	now func() time.Time
	loc *time.Location
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocation sets the zone that decides which calendar day is today.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewReservationService(
	repo domain.Repository,
	eventBus domain.EventPublisher,
	maxDaysAhead int,
	logger *zerolog.Logger,
	opts ...Option,
) *ReservationService {
	if maxDaysAhead <= 0 {
		maxDaysAhead = models.DefaultMaxDaysAhead
	}
	o := buildOptions(opts)
	return &ReservationService{
		repo:         repo,
		eventBus:     eventBus,
		maxDaysAhead: maxDaysAhead,
		now:          o.now,
		loc:          o.loc,
		logger:       logger,
	}
}

func (s *ReservationService) today() time.Time {
	return models.DateOf(s.now().In(s.loc))
}

// Create validates r and books it. The store repeats the conflict check atomically.
func (s *ReservationService) Create(ctx context.Context, r *models.Reservation) error {
	today := s.today()
	if err := domain.ValidateReservation(r, today); err != nil {
		metrics.IncReservation("create", "invalid")
		return err
	}
	if models.DateOf(r.Date).After(today.AddDate(0, 0, s.maxDaysAhead)) {
		metrics.IncReservation("create", "invalid")
		return domain.NewValidationError("date", fmt.Sprintf("is more than %d days ahead", s.maxDaysAhead))
	}

	if err := s.repo.CreateReservation(ctx, r); err != nil {
		metrics.IncReservation("create", outcomeOf(err))
		return err
	}
	metrics.IncReservation("create", "ok")

	s.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("room_id", r.RoomID).
		Int64("owner_id", r.OwnerID).
		Str("date", r.Date.Format(models.DateLayout)).
		Str("window", r.Start.String()+"-"+r.End.String()).
		Str("source", sourceFrom(ctx)).
		Msg("Reservation created")

	s.publish(ctx, events.EventReservationCreated, r)
	return nil
}

// Cancel releases a reservation of ownerID. A foreign owner gets
// ErrPermissionDenied, which is logged for audit.
func (s *ReservationService) Cancel(ctx context.Context, id, ownerID int64) (*models.Reservation, error) {
	r, err := s.repo.CancelReservation(ctx, id, ownerID)
	if err != nil {
		metrics.IncReservation("cancel", outcomeOf(err))
		if errors.Is(err, domain.ErrPermissionDenied) {
			s.logger.Warn().
				Err(err).
				Int64("reservation_id", id).
				Int64("requested_by", ownerID).
				Str("source", sourceFrom(ctx)).
				Msg("Cancel attempt by non-owner")
		}
		return nil, err
	}
	metrics.IncReservation("cancel", "ok")

	s.logger.Info().Int64("reservation_id", id).Int64("owner_id", ownerID).Msg("Reservation cancelled")
	s.publish(ctx, events.EventReservationCancelled, r)
	return r, nil
}

func (s *ReservationService) publish(ctx context.Context, eventType string, r *models.Reservation) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewReservationPayload(r, sourceFrom(ctx))); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "forbidden"
	default:
		return "error"
	}
}
