package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auditorium/internal/domain"
	"auditorium/internal/models"
)

var _ domain.Repository = (*DB)(nil)

const roomColumns = `id, name, capacity, location, description, is_active, created_at`

func (db *DB) GetActiveRooms(ctx context.Context) ([]*models.Room, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE is_active = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, domain.StoreError("get active rooms", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, domain.StoreError("scan room", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("iterate rooms", err)
	}
	return rooms, nil
}

func (db *DB) GetRoomByID(ctx context.Context, id int64) (*models.Room, error) {
	row := db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ? AND is_active = 1`, id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("room %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.StoreError("get room", err)
	}
	return room, nil
}

// UpsertRoom inserts the room or updates the row with the same name. Room.ID is set on return.
func (db *DB) UpsertRoom(ctx context.Context, room *models.Room) error {
	if room.Name == "" {
		return domain.NewValidationError("name", "must not be empty")
	}
	if room.Capacity <= 0 {
		return domain.NewValidationError("capacity", "must be positive")
	}

	now := db.now()
	query := `INSERT INTO rooms (name, capacity, location, description, is_active, created_at)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(name) DO UPDATE SET
                capacity = excluded.capacity,
                location = excluded.location,
                description = excluded.description,
                is_active = excluded.is_active
              RETURNING id, created_at`

	var createdAt string
	err := db.QueryRowContext(ctx, query,
		room.Name, room.Capacity, room.Location, room.Description, room.IsActive, formatTimestamp(now),
	).Scan(&room.ID, &createdAt)
	if err != nil {
		return domain.StoreError("upsert room", err)
	}
	room.CreatedAt = parseTimestamp(createdAt)
	return nil
}

// DeactivateRoom soft-deletes the room. Existing reservations are kept.
func (db *DB) DeactivateRoom(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE rooms SET is_active = 0 WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return domain.StoreError("deactivate room", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("room %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var (
		room      models.Room
		createdAt string
	)
	if err := row.Scan(&room.ID, &room.Name, &room.Capacity, &room.Location, &room.Description, &room.IsActive, &createdAt); err != nil {
		return nil, err
	}
	room.CreatedAt = parseTimestamp(createdAt)
	return &room, nil
}
