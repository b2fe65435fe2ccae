package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"auditorium/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationCancelled = "reservation_cancelled"
)

// ReservationEventPayload is the reservation snapshot handed to subscribers.
type ReservationEventPayload struct {
	ReservationID int64            `json:"reservation_id"`
	RoomID        int64            `json:"room_id"`
	RoomName      string           `json:"room_name"`
	OwnerID       int64            `json:"owner_id"`
	Title         string           `json:"title"`
	Date          string           `json:"date"`
	Start         models.TimeOfDay `json:"start"`
	End           models.TimeOfDay `json:"end"`
	Description   string           `json:"description,omitempty"`
	Status        string           `json:"status"`
	Source        string           `json:"source,omitempty"` // bot, api
}

func NewReservationPayload(r *models.Reservation, source string) ReservationEventPayload {
	return ReservationEventPayload{
		ReservationID: r.ID,
		RoomID:        r.RoomID,
		RoomName:      r.RoomName,
		OwnerID:       r.OwnerID,
		Title:         r.Title,
		Date:          r.Date.Format(models.DateLayout),
		Start:         r.Start,
		End:           r.End,
		Description:   r.Description,
		Status:        r.Status,
		Source:        source,
	}
}

// Reservation rebuilds the reservation the payload was taken from.
func (p ReservationEventPayload) Reservation() (*models.Reservation, error) {
	date, err := time.Parse(models.DateLayout, p.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid payload date %q: %w", p.Date, err)
	}
	return &models.Reservation{
		ID:          p.ReservationID,
		RoomID:      p.RoomID,
		RoomName:    p.RoomName,
		OwnerID:     p.OwnerID,
		Title:       p.Title,
		Date:        date,
		Start:       p.Start,
		End:         p.End,
		Description: p.Description,
		Status:      p.Status,
	}, nil
}

type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

type EventHandler func(event *Event) error

// EventBus is an in-process synchronous pub/sub.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every handler of the event type in subscription order and
// returns how many of them failed. Failures are logged, not propagated.
func (b *EventBus) Publish(event *Event) int {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	failed := 0
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			failed++
			b.logger.Error().Err(err).Str("event_type", event.Type).Msg("event handler failed")
		}
	}
	return failed
}

func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// AuditLog returns a handler that writes one line per reservation event.
func AuditLog(logger *zerolog.Logger) EventHandler {
	return func(event *Event) error {
		var p ReservationEventPayload
		if err := event.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", event.Type, err)
		}
		logger.Info().
			Str("event", event.Type).
			Int64("reservation_id", p.ReservationID).
			Int64("room_id", p.RoomID).
			Int64("owner_id", p.OwnerID).
			Str("date", p.Date).
			Str("window", p.Start.String()+"-"+p.End.String()).
			Str("source", p.Source).
			Msg("audit")
		return nil
	}
}
