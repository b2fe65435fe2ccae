package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"auditorium/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver (cgo)
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // sqlite driver (pure Go)
)

const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

// DB is the SQLite-backed store for rooms, reservations, users and the sync outbox.
type DB struct {
	*sql.DB
	path   string
	driver string
	logger *zerolog.Logger
	now    func() time.Time
	loc    *time.Location

	// roomLocks serializes reservation writes per room inside this process.
	roomLocks sync.Map // int64 -> *sync.Mutex
}

type Option func(*DB)

// WithDriver selects the database/sql driver name: "sqlite3" (default) or "sqlite".
func WithDriver(driver string) Option {
	return func(db *DB) {
		if driver != "" {
			db.driver = driver
		}
	}
}

// WithClock replaces time.Now for timestamps and past-date checks.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		if now != nil {
			db.now = now
		}
	}
}

// WithLocation sets the zone whose calendar day is "today" for past-date checks.
func WithLocation(loc *time.Location) Option {
	return func(db *DB) {
		if loc != nil {
			db.loc = loc
		}
	}
}

func NewDB(path string, logger *zerolog.Logger, opts ...Option) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	d := &DB{
		path:   path,
		driver: DriverCGO,
		logger: logger,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(d)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn, err := buildDSN(d.driver, path)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps :memory: databases shared too.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	d.DB = sqlDB

	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	d.logger.Info().Str("path", path).Str("driver", d.driver).Msg("Database initialized")
	return d, nil
}

func buildDSN(driver, path string) (string, error) {
	switch driver {
	case DriverCGO:
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", path), nil
	case DriverPure:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", path), nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// today is the current calendar day in the booking zone.
func (db *DB) today() time.Time {
	return models.DateOf(db.now().In(db.loc))
}

func (db *DB) Path() string { return db.path }

func (db *DB) Driver() string { return db.driver }

func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			capacity INTEGER NOT NULL DEFAULT 0,
			location TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id INTEGER NOT NULL REFERENCES rooms(id),
			owner_id INTEGER NOT NULL REFERENCES users(telegram_id),
			title TEXT NOT NULL,
			date TEXT NOT NULL,
			start_min INTEGER NOT NULL,
			end_min INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'reserved',
			created_at TEXT NOT NULL,
			cancelled_at TEXT,
			CHECK (start_min < end_min)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_type TEXT NOT NULL,
			reservation_id INTEGER NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at INTEGER NOT NULL,
			processed_at INTEGER,
			next_retry_at INTEGER
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_room_date ON reservations(room_id, date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_owner ON reservations(owner_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %q: %w", firstLine(query), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (db *DB) roomLock(roomID int64) *sync.Mutex {
	mu, _ := db.roomLocks.LoadOrStore(roomID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

const timestampLayout = time.RFC3339Nano

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
