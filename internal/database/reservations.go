package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"auditorium/internal/availability"
	"auditorium/internal/domain"
	"auditorium/internal/models"
)

const reservationColumns = `r.id, r.room_id, COALESCE(rm.name, ''), r.owner_id, r.title, r.date,
	r.start_min, r.end_min, r.description, r.status, r.created_at`

const reservationFrom = ` FROM reservations r LEFT JOIN rooms rm ON rm.id = r.room_id`

// CreateReservation validates r, then checks for overlaps and inserts in one
// immediate transaction while holding the room's lock.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	if err := domain.ValidateReservation(r, db.today()); err != nil {
		return err
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Date = models.DateOf(r.Date)

	mu := db.roomLock(r.RoomID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoreError("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var roomName string
	err = tx.QueryRowContext(ctx, `SELECT name FROM rooms WHERE id = ? AND is_active = 1`, r.RoomID).Scan(&roomName)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("room %d: %w", r.RoomID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.StoreError("check room in tx", err)
	}

	existing, err := queryReservations(ctx, tx,
		` WHERE r.room_id = ? AND r.date = ? AND r.status = ?`,
		r.RoomID, r.Date.Format(models.DateLayout), models.StatusReserved)
	if err != nil {
		return domain.StoreError("load reservations in tx", err)
	}

	if clash, ok := availability.FindConflict(availability.Of(r), existing); ok {
		db.logger.Debug().
			Int64("room_id", r.RoomID).
			Int64("conflicting_id", clash.ID).
			Str("window", r.Start.String()+"-"+r.End.String()).
			Msg("Reservation rejected: overlap")
		return fmt.Errorf("room %d on %s %s-%s overlaps reservation %d: %w",
			r.RoomID, r.Date.Format(models.DateLayout), r.Start, r.End, clash.ID, domain.ErrConflict)
	}

	now := db.now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (telegram_id, created_at) VALUES (?, ?) ON CONFLICT(telegram_id) DO NOTHING`,
		r.OwnerID, formatTimestamp(now)); err != nil {
		return domain.StoreError("ensure owner in tx", err)
	}

	result, err := tx.ExecContext(ctx, `INSERT INTO reservations (
				room_id, owner_id, title, date, start_min, end_min, description, status, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RoomID,
		r.OwnerID,
		r.Title,
		r.Date.Format(models.DateLayout),
		int(r.Start),
		int(r.End),
		r.Description,
		models.StatusReserved,
		formatTimestamp(now),
	)
	if err != nil {
		return domain.StoreError("insert reservation in tx", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.StoreError("get last insert id in tx", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.StoreError("commit reservation", err)
	}

	r.ID = id
	r.RoomName = roomName
	r.Status = models.StatusReserved
	r.CreatedAt = now.UTC()
	return nil
}

// CancelReservation moves a reserved row owned by ownerID to cancelled.
// Missing and already cancelled rows yield ErrNotFound, a foreign owner ErrPermissionDenied.
func (db *DB) CancelReservation(ctx context.Context, id, ownerID int64) (*models.Reservation, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.StoreError("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	found, err := queryReservations(ctx, tx, ` WHERE r.id = ?`, id)
	if err != nil {
		return nil, domain.StoreError("load reservation in tx", err)
	}
	if len(found) == 0 || !found[0].IsReserved() {
		return nil, fmt.Errorf("reservation %d: %w", id, domain.ErrNotFound)
	}
	r := found[0]
	if r.OwnerID != ownerID {
		return nil, fmt.Errorf("reservation %d owned by %d, requested by %d: %w",
			id, r.OwnerID, ownerID, domain.ErrPermissionDenied)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, cancelled_at = ? WHERE id = ? AND status = ?`,
		models.StatusCancelled, formatTimestamp(db.now()), id, models.StatusReserved)
	if err != nil {
		return nil, domain.StoreError("cancel reservation", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.StoreError("commit cancel", err)
	}

	r.Status = models.StatusCancelled
	return r, nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	found, err := queryReservations(ctx, db, ` WHERE r.id = ?`, id)
	if err != nil {
		return nil, domain.StoreError("get reservation", err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("reservation %d: %w", id, domain.ErrNotFound)
	}
	return found[0], nil
}

// ListReservationsByRoom returns reserved entries of the room, optionally limited to one day.
func (db *DB) ListReservationsByRoom(ctx context.Context, roomID int64, date *time.Time) ([]*models.Reservation, error) {
	where := ` WHERE r.room_id = ? AND r.status = ?`
	args := []any{roomID, models.StatusReserved}
	if date != nil {
		where += ` AND r.date = ?`
		args = append(args, models.DateOf(*date).Format(models.DateLayout))
	}

	list, err := queryReservations(ctx, db, where+orderByDateStart, args...)
	if err != nil {
		return nil, domain.StoreError("list reservations by room", err)
	}
	return list, nil
}

func (db *DB) ListReservationsByUser(ctx context.Context, ownerID int64) ([]*models.Reservation, error) {
	list, err := queryReservations(ctx, db,
		` WHERE r.owner_id = ? AND r.status = ?`+orderByDateStart, ownerID, models.StatusReserved)
	if err != nil {
		return nil, domain.StoreError("list reservations by user", err)
	}
	return list, nil
}

// ListReservationsInRange returns reserved entries with from <= date <= to.
// roomID 0 means every room.
func (db *DB) ListReservationsInRange(ctx context.Context, roomID int64, from, to time.Time) ([]*models.Reservation, error) {
	where := ` WHERE r.status = ? AND r.date >= ? AND r.date <= ?`
	args := []any{models.StatusReserved,
		models.DateOf(from).Format(models.DateLayout), models.DateOf(to).Format(models.DateLayout)}
	if roomID != 0 {
		where += ` AND r.room_id = ?`
		args = append(args, roomID)
	}

	list, err := queryReservations(ctx, db, where+orderByDateStart, args...)
	if err != nil {
		return nil, domain.StoreError("list reservations in range", err)
	}
	return list, nil
}

const orderByDateStart = ` ORDER BY r.date ASC, r.start_min ASC, r.id ASC`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryReservations(ctx context.Context, q queryer, where string, args ...any) ([]*models.Reservation, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+reservationColumns+reservationFrom+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Reservation
	for rows.Next() {
		var (
			r          models.Reservation
			date       string
			start, end int
			createdAt  string
		)
		if err := rows.Scan(&r.ID, &r.RoomID, &r.RoomName, &r.OwnerID, &r.Title, &date,
			&start, &end, &r.Description, &r.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		r.Date, err = time.Parse(models.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse reservation date %s: %w", date, err)
		}
		r.Start = models.TimeOfDay(start)
		r.End = models.TimeOfDay(end)
		r.CreatedAt = parseTimestamp(createdAt)
		list = append(list, &r)
	}
	return list, rows.Err()
}
