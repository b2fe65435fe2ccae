package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"auditorium/internal/api"
	"auditorium/internal/config"
	"auditorium/internal/database"
	"auditorium/internal/domain"
	"auditorium/internal/events"
	"auditorium/internal/logging"
	"auditorium/internal/metrics"
	"auditorium/internal/models"
	"auditorium/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, loc, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// The bot process owns the Sheets worker; here the bus only feeds the audit log.
	eventBus := events.NewEventBus(logging.Component(logger, "events"))
	eventBus.Subscribe(events.EventReservationCreated, events.AuditLog(logger))
	eventBus.Subscribe(events.EventReservationCancelled, events.AuditLog(logger))

	opts := []service.Option{service.WithLocation(loc)}
	svc := api.Services{
		Reservations: service.NewReservationService(db, eventBus, cfg.Booking.MaxDaysAhead, logging.Component(logger, "reservations"), opts...),
		Queries:      service.NewQueryService(db, opts...),
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, svc, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}
	httpServer := api.NewHTTPServer(&cfg.API, svc, db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initDatabase(cfg *config.Config, loc *time.Location, logger *zerolog.Logger) (*database.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"),
		database.WithDriver(cfg.Database.Driver),
		database.WithLocation(loc),
	)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := loadRooms(context.Background(), db, cfg.RoomsFile, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// loadRooms upserts the rooms file so the API can run without the bot having
// started first. A missing file keeps the stored rooms.
func loadRooms(ctx context.Context, repo domain.RoomRepository, path string, logger *zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("rooms_file", path).Msg("rooms file not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read rooms: %w", err)
	}

	var file struct {
		Rooms []struct {
			Name        string `yaml:"name"`
			Capacity    int    `yaml:"capacity"`
			Location    string `yaml:"location"`
			Description string `yaml:"description"`
			Inactive    bool   `yaml:"inactive"`
		} `yaml:"rooms"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		logger.Error().Err(err).Str("rooms_file", path).Msg("parse rooms")
		return err
	}

	for _, r := range file.Rooms {
		room := &models.Room{Name: r.Name, Capacity: r.Capacity, Location: r.Location, Description: r.Description, IsActive: !r.Inactive}
		if err := repo.UpsertRoom(ctx, room); err != nil {
			return fmt.Errorf("room %q: %w", r.Name, err)
		}
	}
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Bool("grpc", grpcServer != nil).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
