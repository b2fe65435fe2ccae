package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auditorium/internal/domain"
	"auditorium/internal/models"
)

// UpsertUser creates the user on first contact. A known telegram id is left
// untouched and the stored row is copied back into user.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	if user.TelegramID == 0 {
		return domain.NewValidationError("telegram_id", "is required")
	}

	_, err := db.ExecContext(ctx, `INSERT INTO users (telegram_id, first_name, username, created_at)
              VALUES (?, ?, ?, ?)
              ON CONFLICT(telegram_id) DO NOTHING`,
		user.TelegramID, user.FirstName, user.Username, formatTimestamp(db.now()))
	if err != nil {
		return domain.StoreError("create user", err)
	}

	stored, err := db.GetUserByTelegramID(ctx, user.TelegramID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

func (db *DB) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var (
		user      models.User
		createdAt string
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, telegram_id, first_name, username, created_at FROM users WHERE telegram_id = ?`, telegramID,
	).Scan(&user.ID, &user.TelegramID, &user.FirstName, &user.Username, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", telegramID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.StoreError("get user", err)
	}
	user.CreatedAt = parseTimestamp(createdAt)
	return &user, nil
}

func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, domain.StoreError("count users", err)
	}
	return n, nil
}
