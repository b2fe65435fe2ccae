package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"auditorium/internal/config"
	"auditorium/internal/domain"
	"auditorium/internal/models"
	"auditorium/internal/repository"
	"auditorium/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type testEnv struct {
	store *repository.MemoryStore
	room  *models.Room
	svc   Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store := repository.NewMemoryStore(fixedClock).WithLocation(time.UTC)
	room := &models.Room{Name: "Auditorio Central", Capacity: 200, Location: "Planta baja", IsActive: true}
	require.NoError(t, store.UpsertRoom(context.Background(), room))

	opts := []service.Option{service.WithClock(fixedClock), service.WithLocation(time.UTC)}
	return &testEnv{
		store: store,
		room:  room,
		svc: Services{
			Reservations: service.NewReservationService(store, nil, 90, &logger, opts...),
			Queries:      service.NewQueryService(store, opts...),
		},
	}
}

func (e *testEnv) server(t *testing.T, cfg config.APIConfig, pinger Pinger) *httptest.Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	srv := NewHTTPServer(&cfg, e.svc, pinger, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createBody(roomID, telegramID int64, title, date, start, end string) map[string]any {
	return map[string]any{
		"room_id":     roomID,
		"telegram_id": telegramID,
		"title":       title,
		"date":        date,
		"start":       start,
		"end":         end,
	}
}

func TestRooms(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, config.APIConfig{}, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/rooms", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Rooms []models.Room `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, "Auditorio Central", list.Rooms[0].Name)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/rooms/1", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/rooms/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/rooms/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateEvent(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, config.APIConfig{}, nil)
	url := ts.URL + "/api/v1/events"

	resp, body := do(t, http.MethodPost, url, createBody(env.room.ID, 10, "Charla", "2025-06-01", "14:00", "15:00"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created reservationView
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, "2025-06-01", created.Date)
	assert.Equal(t, models.NewTimeOfDay(14, 0), created.Start)
	assert.Equal(t, models.StatusReserved, created.Status)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"Overlap", createBody(env.room.ID, 11, "Otra", "2025-06-01", "14:30", "15:30"), http.StatusConflict},
		{"Touching", createBody(env.room.ID, 11, "Después", "2025-06-01", "15:00", "16:00"), http.StatusCreated},
		{"EndBeforeStart", createBody(env.room.ID, 11, "Mal", "2025-06-02", "16:00", "15:00"), http.StatusBadRequest},
		{"BadDate", createBody(env.room.ID, 11, "Mal", "01/06/2025", "10:00", "11:00"), http.StatusBadRequest},
		{"BadTime", createBody(env.room.ID, 11, "Mal", "2025-06-02", "25:00", "26:00"), http.StatusBadRequest},
		{"EmptyTitle", createBody(env.room.ID, 11, "  ", "2025-06-02", "10:00", "11:00"), http.StatusBadRequest},
		{"PastDate", createBody(env.room.ID, 11, "Ayer", "2025-04-30", "10:00", "11:00"), http.StatusBadRequest},
		{"UnknownRoom", createBody(99, 11, "Sin sala", "2025-06-02", "10:00", "11:00"), http.StatusNotFound},
		{"UnknownField", map[string]any{"room": 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, url, tt.body, nil)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
		})
	}
}

// Scenario: a foreign owner cannot cancel, the owner can, and only once.
func TestCancelEvent(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, config.APIConfig{}, nil)

	_, body := do(t, http.MethodPost, ts.URL+"/api/v1/events", createBody(env.room.ID, 10, "Charla", "2025-06-01", "14:00", "15:00"), nil)
	var created reservationView
	require.NoError(t, json.Unmarshal(body, &created))
	url := ts.URL + "/api/v1/events/" + strconv.FormatInt(created.ID, 10)

	resp, _ := do(t, http.MethodDelete, url+"?telegram_id=20", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodDelete, url+"?telegram_id=10", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cancelled reservationView
	require.NoError(t, json.Unmarshal(body, &cancelled))
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	resp, _ = do(t, http.MethodDelete, url+"?telegram_id=10", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, url, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoomAndUserEvents(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, config.APIConfig{}, nil)

	for _, b := range []map[string]any{
		createBody(env.room.ID, 10, "Tarde", "2025-06-01", "16:00", "17:00"),
		createBody(env.room.ID, 10, "Mañana", "2025-06-01", "09:00", "10:00"),
		createBody(env.room.ID, 20, "Otro día", "2025-06-02", "09:00", "10:00"),
	} {
		resp, body := do(t, http.MethodPost, ts.URL+"/api/v1/events", b, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}

	var list struct {
		Events []reservationView `json:"events"`
	}

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/rooms/1/events?date=2025-06-01", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Events, 2)
	assert.Equal(t, "Mañana", list.Events[0].Title)
	assert.Equal(t, "Tarde", list.Events[1].Title)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/rooms/1/events", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list.Events, 3)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/rooms/1/events?date=junio", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/rooms/7/events", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/users/20/events", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Events, 1)
	assert.Equal(t, "Otro día", list.Events[0].Title)
}

func TestAvailability(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, config.APIConfig{}, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/v1/events", createBody(env.room.ID, 10, "Charla", "2025-06-01", "14:00", "15:00"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	check := func(query string) (int, bool) {
		resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/rooms/1/availability?"+query, nil, nil)
		var out struct {
			Available bool `json:"available"`
		}
		_ = json.Unmarshal(body, &out)
		return resp.StatusCode, out.Available
	}

	code, available := check("date=2025-06-01&start=15:00&end=16:00")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, available)

	code, available = check("date=2025-06-01&start=13:00&end=14:01")
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, available)

	code, _ = check("date=2025-06-01&start=16:00&end=15:00")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = check("date=2025-06-01&start=x&end=15:00")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestExportRoom(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, config.APIConfig{}, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/rooms/1/export?from=2025-05-01&to=2025-05-07", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "agenda_2025-05-01_a_2025-05-07.xlsx")
	assert.True(t, bytes.HasPrefix(body, []byte("PK")), "xlsx is a zip archive")

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/rooms/1/export?from=2025-05-07&to=2025-05-01", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/rooms/1/export?from=2025-05-01&to=2026-05-01", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t)

	ts := env.server(t, config.APIConfig{}, fakePinger{})
	resp, _ := do(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDMetadataKey))

	down := env.server(t, config.APIConfig{}, fakePinger{err: errors.New("disk I/O error")})
	resp, _ = do(t, http.MethodGet, down.URL+"/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestInternalErrorIsOpaque(t *testing.T) {
	env := newTestEnv(t)
	env.svc.Queries = failingQueries{env.svc.Queries}
	ts := env.server(t, config.APIConfig{}, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/rooms", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, string(body), "database is locked")
}

type failingQueries struct{ domain.QueryService }

func (failingQueries) ListRooms(context.Context) ([]*models.Room, error) {
	return nil, domain.StoreError("list rooms", errors.New("database is locked"))
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "reader", Extra: "plain", Permissions: []string{PermReadRooms}},
				{Key: "writer", ExtraHash: string(hash)},
			},
		},
	}
	ts := env.server(t, cfg, nil)
	rooms := ts.URL + "/api/v1/rooms"

	tests := []struct {
		name    string
		method  string
		url     string
		headers map[string]string
		want    int
	}{
		{"NoHeaders", http.MethodGet, rooms, nil, http.StatusUnauthorized},
		{"UnknownKey", http.MethodGet, rooms, map[string]string{"x-api-key": "nobody", "x-api-extra": "plain"}, http.StatusUnauthorized},
		{"WrongExtra", http.MethodGet, rooms, map[string]string{"x-api-key": "reader", "x-api-extra": "nope"}, http.StatusUnauthorized},
		{"Reader", http.MethodGet, rooms, map[string]string{"x-api-key": "reader", "x-api-extra": "plain"}, http.StatusOK},
		{"ReaderCannotReadEvents", http.MethodGet, ts.URL + "/api/v1/users/1/events", map[string]string{"x-api-key": "reader", "x-api-extra": "plain"}, http.StatusForbidden},
		{"HashedSecret", http.MethodGet, ts.URL + "/api/v1/users/1/events", map[string]string{"x-api-key": "writer", "x-api-extra": "s3cret"}, http.StatusOK},
		{"HashedSecretWrong", http.MethodGet, rooms, map[string]string{"x-api-key": "writer", "x-api-extra": "plain"}, http.StatusUnauthorized},
		{"HealthIsOpen", http.MethodGet, ts.URL + "/healthz", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, tt.url, nil, tt.headers)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
		})
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 1}}, nil)

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/rooms", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/rooms", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/rooms", nil, map[string]string{"x-api-key": "other-client"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequiredPermissionHTTP(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/v1/rooms", PermReadRooms},
		{http.MethodGet, "/api/v1/rooms/1", PermReadRooms},
		{http.MethodGet, "/api/v1/rooms/1/events", PermReadEvents},
		{http.MethodGet, "/api/v1/rooms/1/availability", PermReadEvents},
		{http.MethodGet, "/api/v1/users/5/events", PermReadEvents},
		{http.MethodGet, "/api/v1/rooms/1/export", PermExport},
		{http.MethodPost, "/api/v1/events", PermWriteEvents},
		{http.MethodDelete, "/api/v1/events/3", PermWriteEvents},
		{http.MethodGet, "/api/v2/other", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.path, nil)
		assert.Equal(t, tt.want, requiredPermissionHTTP(r), tt.method+" "+tt.path)
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.NewValidationError("title", "must not be empty")))
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrPermissionDenied))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrConflict))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestHTTPServer_StartShutdown(t *testing.T) {
	env := newTestEnv(t)
	logger := zerolog.New(io.Discard)
	srv := NewHTTPServer(&config.APIConfig{HTTP: config.APIHTTPConfig{Port: 0}}, env.svc, nil, &logger)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
