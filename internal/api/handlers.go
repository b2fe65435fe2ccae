package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/export"
	"auditorium/internal/models"
	"auditorium/internal/service"

	"github.com/rs/zerolog"
)

const (
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultExportDays = 7
	maxExportDays     = 92
)

// reservationView is the wire shape of a reservation.
type reservationView struct {
	ID          int64            `json:"id"`
	RoomID      int64            `json:"room_id"`
	RoomName    string           `json:"room_name,omitempty"`
	OwnerID     int64            `json:"telegram_id"`
	Title       string           `json:"title"`
	Date        string           `json:"date"`
	Start       models.TimeOfDay `json:"start"`
	End         models.TimeOfDay `json:"end"`
	Description string           `json:"description,omitempty"`
	Status      string           `json:"status"`
}

func newReservationView(r *models.Reservation) reservationView {
	return reservationView{
		ID:          r.ID,
		RoomID:      r.RoomID,
		RoomName:    r.RoomName,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Date:        r.Date.Format(models.DateLayout),
		Start:       r.Start,
		End:         r.End,
		Description: r.Description,
		Status:      r.Status,
	}
}

func newReservationViews(rs []*models.Reservation) []reservationView {
	out := make([]reservationView, 0, len(rs))
	for _, r := range rs {
		out = append(out, newReservationView(r))
	}
	return out
}

type createReservationRequest struct {
	RoomID      int64  `json:"room_id"`
	TelegramID  int64  `json:"telegram_id"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description"`
}

func (req createReservationRequest) toReservation() (*models.Reservation, error) {
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		return nil, domain.NewValidationError("date", "expected YYYY-MM-DD")
	}
	start, err := models.ParseTimeOfDay(req.Start)
	if err != nil {
		return nil, domain.NewValidationError("start", "expected HH:MM")
	}
	end, err := models.ParseTimeOfDay(req.End)
	if err != nil {
		return nil, domain.NewValidationError("end", "expected HH:MM")
	}
	return &models.Reservation{
		RoomID:      req.RoomID,
		OwnerID:     req.TelegramID,
		Title:       strings.TrimSpace(req.Title),
		Date:        date,
		Start:       start,
		End:         end,
		Description: strings.TrimSpace(req.Description),
	}, nil
}

func (s *HTTPServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.queries.ListRooms(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *HTTPServer) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	room, err := s.queries.GetRoom(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *HTTPServer) handleRoomEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var date *time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		d, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		date = &d
	}

	events, err := s.queries.RoomEvents(r.Context(), id, date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": newReservationViews(events)})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	q := r.URL.Query()
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(q.Get("date")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	start, err := models.ParseTimeOfDay(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected HH:MM")
		return
	}
	end, err := models.ParseTimeOfDay(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end; expected HH:MM")
		return
	}

	available, err := s.queries.CheckAvailability(r.Context(), id, date, start, end)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":   id,
		"date":      date.Format(models.DateLayout),
		"start":     start,
		"end":       end,
		"available": available,
	})
}

func (s *HTTPServer) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := pathID(w, r, "telegram_id")
	if !ok {
		return
	}
	events, err := s.queries.UserEvents(r.Context(), telegramID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": newReservationViews(events)})
}

func (s *HTTPServer) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var body createReservationRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	reservation, err := body.toReservation()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	ctx := service.WithSource(r.Context(), "api")
	if err := s.reservations.Create(ctx, reservation); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReservationView(reservation))
}

func (s *HTTPServer) handleCancelEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	telegramID, err := strconv.ParseInt(r.URL.Query().Get("telegram_id"), 10, 64)
	if err != nil || telegramID == 0 {
		writeError(w, http.StatusBadRequest, "telegram_id is required")
		return
	}

	ctx := service.WithSource(r.Context(), "api")
	cancelled, err := s.reservations.Cancel(ctx, id, telegramID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(cancelled))
}

func (s *HTTPServer) handleExportRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	from, to, err := exportPeriod(r, s.queries.Today())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	room, err := s.queries.GetRoom(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	reservations, err := s.queries.Schedule(r.Context(), id, from, to)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	schedule := &export.Schedule{From: from, To: to, Rooms: []*models.Room{room}, Reservations: reservations}
	data, err := schedule.Bytes()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", schedule.FileName()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// exportPeriod reads from/to, defaulting to a week starting today.
func exportPeriod(r *http.Request, today time.Time) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from := today
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		d, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, domain.NewValidationError("from", "expected YYYY-MM-DD")
		}
		from = d
	}
	to := from.AddDate(0, 0, defaultExportDays-1)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		d, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, domain.NewValidationError("to", "expected YYYY-MM-DD")
		}
		to = d
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, domain.NewValidationError("to", "must not be before from")
	}
	if to.Sub(from) > maxExportDays*24*time.Hour {
		return time.Time{}, time.Time{}, domain.NewValidationError("to", fmt.Sprintf("period longer than %d days", maxExportDays))
	}
	return from, to, nil
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.PingContext(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusFor maps a domain error to its HTTP status. A foreign reservation
// answers 404 like a missing one.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	switch code {
	case http.StatusInternalServerError:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, code, "internal error")
	case http.StatusNotFound:
		writeError(w, code, "not found")
	case http.StatusConflict:
		writeError(w, code, "time slot overlaps an existing reservation")
	default:
		writeError(w, code, err.Error())
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
