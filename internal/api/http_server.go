package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"auditorium/internal/config"
	"auditorium/internal/domain"
	"auditorium/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Services are the application services the API front end calls into.
type Services struct {
	Reservations domain.ReservationService
	Queries      domain.QueryService
}

// HTTPServer exposes the reservation API over JSON.
type HTTPServer struct {
	cfg          *config.APIConfig
	reservations domain.ReservationService
	queries      domain.QueryService
	pinger       Pinger
	server       *http.Server
	auth         *HTTPAuth
	logger       *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, svc Services, pinger Pinger, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "http").Logger()
	srv := &HTTPServer{
		cfg:          cfg,
		reservations: svc.Reservations,
		queries:      svc.Queries,
		pinger:       pinger,
		auth:         NewHTTPAuth(cfg),
		logger:       &l,
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/rooms", srv.handleListRooms)
	api.HandleFunc("GET /api/v1/rooms/{id}", srv.handleGetRoom)
	api.HandleFunc("GET /api/v1/rooms/{id}/events", srv.handleRoomEvents)
	api.HandleFunc("GET /api/v1/rooms/{id}/availability", srv.handleAvailability)
	api.HandleFunc("GET /api/v1/rooms/{id}/export", srv.handleExportRoom)
	api.HandleFunc("GET /api/v1/users/{telegram_id}/events", srv.handleUserEvents)
	api.HandleFunc("POST /api/v1/events", srv.handleCreateEvent)
	api.HandleFunc("DELETE /api/v1/events/{id}", srv.handleCancelEvent)

	mux := http.NewServeMux()
	mux.Handle("/api/", srv.auth.Wrap(api))
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.HandleFunc("GET /readyz", srv.handleReadyz)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg      *config.APIConfig
	registry *clientRegistry
	limiter  *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		cfg:      cfg,
		registry: newClientRegistry(cfg.Auth),
		limiter:  newRateLimiter(cfg.RateLimit),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	client, err := a.registry.authenticate(
		strings.TrimSpace(r.Header.Get(a.registry.apiKeyHeader)),
		strings.TrimSpace(r.Header.Get(a.registry.extraHeader)),
	)
	if err != nil {
		return err
	}
	if !hasPermission(client, requiredPermissionHTTP(r)) {
		return errPermissionDenied
	}
	return nil
}

func requiredPermissionHTTP(r *http.Request) string {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost || r.Method == http.MethodDelete:
		return PermWriteEvents
	case strings.HasPrefix(path, "/api/v1/rooms/") && strings.HasSuffix(path, "/export"):
		return PermExport
	case strings.HasPrefix(path, "/api/v1/users/"),
		strings.HasPrefix(path, "/api/v1/rooms/") && (strings.HasSuffix(path, "/events") || strings.HasSuffix(path, "/availability")):
		return PermReadEvents
	case strings.HasPrefix(path, "/api/v1/rooms"):
		return PermReadRooms
	default:
		return ""
	}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.registry.apiKeyHeader)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// loggingMiddleware tags every request with a request id, logs it and counts it.
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDMetadataKey))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDMetadataKey, requestID)

		reqLogger := s.logger.With().Str("request_id", requestID).Logger()
		r = r.WithContext(reqLogger.WithContext(r.Context()))

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTP(route, metrics.StatusClass(recorder.status))

		reqLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
