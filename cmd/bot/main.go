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
	"auditorium/internal/bot"
	"auditorium/internal/config"
	"auditorium/internal/conversation"
	"auditorium/internal/database"
	"auditorium/internal/domain"
	"auditorium/internal/events"
	"auditorium/internal/google"
	"auditorium/internal/logging"
	"auditorium/internal/metrics"
	"auditorium/internal/models"
	"auditorium/internal/repository"
	"auditorium/internal/service"
	"auditorium/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
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
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := cfg.ValidateBot(); err != nil {
		logger.Error().Err(err).Msg("Set telegram.bot_token in config.yaml or TELEGRAM_BOT_TOKEN")
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	db, err := initDatabase(cfg, loc, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, sessions := initSessions(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	eventBus := events.NewEventBus(logging.Component(logger, "events"))
	eventBus.Subscribe(events.EventReservationCreated, events.AuditLog(logger))
	eventBus.Subscribe(events.EventReservationCancelled, events.AuditLog(logger))

	mirror := initSheets(ctx, cfg, db, redisClient, eventBus, logger)

	opts := []service.Option{service.WithLocation(loc)}
	reservations := service.NewReservationService(db, eventBus, cfg.Booking.MaxDaysAhead, logging.Component(logger, "reservations"), opts...)
	queries := service.NewQueryService(db, opts...)
	users := service.NewUserService(db, cfg.Managers, logging.Component(logger, "users"))

	dialog := conversation.New(sessions, reservations,
		conversation.WithLocation(loc),
		conversation.WithMaxDaysAhead(cfg.Booking.MaxDaysAhead),
		conversation.WithSkipWords(cfg.Booking.SkipWords...),
		conversation.WithLogger(logging.Component(logger, "dialog")),
	)

	if cfg.API.Enabled && cfg.API.HTTP.Enabled {
		apiServer := api.NewHTTPServer(&cfg.API, api.Services{Reservations: reservations, Queries: queries}, db, logger)
		go func() {
			if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	botWrapper, err := bot.Connect(cfg.Telegram)
	if err != nil {
		logger.Error().Err(err).Msg("Telegram connection failed")
		return err
	}
	tgService := service.NewTelegramService(botWrapper)

	telegramBot, err := bot.NewBot(
		tgService, cfg, sessions, dialog,
		reservations, queries, users, mirror,
		bot.NewMetrics(prometheus.DefaultRegisterer), logging.Component(logger, "bot"),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Bot init failed")
		return err
	}

	logger.Info().Msg("Bot started")
	telegramBot.Start(ctx)

	logger.Info().Msg("Shutdown complete.")
	return nil
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
	return cfg, logging.Component(baseLogger, "bot-main"), closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	for _, dir := range []string{filepath.Dir(cfg.Database.Path), cfg.Exports.Path} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error().Err(err).Str("dir", dir).Msg("Cannot create directory")
			return err
		}
	}
	return nil
}

// roomEntry is one room in the rooms file. Rooms are active unless marked inactive.
type roomEntry struct {
	Name        string `yaml:"name"`
	Capacity    int    `yaml:"capacity"`
	Location    string `yaml:"location"`
	Description string `yaml:"description"`
	Inactive    bool   `yaml:"inactive"`
}

func initDatabase(cfg *config.Config, loc *time.Location, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"),
		database.WithDriver(cfg.Database.Driver),
		database.WithLocation(loc),
	)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("Database init failed")
		return nil, err
	}

	if err := seedRooms(context.Background(), db, cfg.RoomsFile, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// seedRooms upserts every room listed in path. A missing file keeps the stored rooms.
func seedRooms(ctx context.Context, repo domain.RoomRepository, path string, logger *zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("rooms_file", path).Msg("Rooms file not found, using stored rooms")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var file struct {
		Rooms []roomEntry `yaml:"rooms"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for _, entry := range file.Rooms {
		room := &models.Room{
			Name:        entry.Name,
			Capacity:    entry.Capacity,
			Location:    entry.Location,
			Description: entry.Description,
			IsActive:    !entry.Inactive,
		}
		if err := repo.UpsertRoom(ctx, room); err != nil {
			return fmt.Errorf("room %q: %w", entry.Name, err)
		}
	}
	logger.Info().Int("rooms", len(file.Rooms)).Msg("Rooms loaded")
	return nil
}

// initSessions prefers Redis and falls back to process memory whenever Redis fails.
func initSessions(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.SessionRepository) {
	ttl := cfg.SessionTTL()
	memory := repository.NewMemorySessionRepository(ttl)
	go memory.StartSweeper(ctx, time.Duration(cfg.Session.SweepInterval)*time.Second, logger)

	if cfg.Redis.Address == "" {
		logger.Info().Msg("Redis not configured, booking sessions kept in memory")
		return nil, memory
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, sessions fall back to memory until it recovers")
	}
	primary := repository.NewRedisSessionRepository(redisClient, ttl)
	return redisClient, repository.NewFailoverSessionRepository(primary, memory, logging.Component(logger, "sessions"))
}

// initSheets starts the Sheets mirror when configured. The result is a nil
// interface when Sheets is off so the bot can tell.
func initSheets(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	bus *events.EventBus,
	logger *zerolog.Logger,
) bot.SheetsMirror {
	if !cfg.Google.Enabled() {
		logger.Info().Msg("Google Sheets not configured")
		return nil
	}

	sheetsLogger := logging.Component(logger, "sheets")
	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.ReservationsSpreadsheet)
	if err != nil {
		logger.Warn().Err(err).Msg("Google Sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("Google Sheets connection test failed, continuing without sheets")
		return nil
	}
	sheetsService.StartCacheRefresh(ctx, 10*time.Minute, sheetsLogger)

	sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, worker.DefaultRetryPolicy, sheetsLogger)
	sheetsWorker.Subscribe(bus)
	go sheetsWorker.Start(ctx)

	logger.Info().Msg("Google Sheets service initialized successfully")
	return sheetsService
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	metrics.Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
}
