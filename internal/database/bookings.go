package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"recolha/internal/domain"
	"recolha/internal/models"
)

const timestampLayout = time.RFC3339Nano

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Save inserts a booking whose version is zero, otherwise updates it if the
// stored version still matches and appends any new history records.
func (db *DB) Save(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if booking.Version() == 0 {
		err = insertBooking(ctx, tx, booking)
	} else {
		err = updateBooking(ctx, tx, booking)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	booking.SetVersion(booking.Version() + 1)
	return nil
}

// CreateWithinCapacity counts the slot and inserts inside one transaction.
func (db *DB) CreateWithinCapacity(ctx context.Context, booking *models.Booking, capacity int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE date = ? AND approx_time_slot = ? AND municipality = ?`,
		booking.Date().Format(models.DateLayout),
		booking.ApproxTimeSlot().String(),
		booking.Municipality(),
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count slot bookings in tx: %w", err)
	}

	if count >= capacity {
		return domain.ErrCapacityExceeded
	}

	if err := insertBooking(ctx, tx, booking); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	booking.SetVersion(1)
	return nil
}

func insertBooking(ctx context.Context, tx *sql.Tx, booking *models.Booking) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE token = ?`, booking.Token()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check token: %w", err)
	}
	if exists > 0 {
		return domain.ErrDuplicateToken
	}

	current := booking.CurrentStatus()
	now := time.Now().UTC().Format(timestampLayout)
	_, err = tx.ExecContext(ctx, `INSERT INTO bookings (
				token, date, approx_time_slot, municipality,
				status, status_at, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.Token(),
		booking.Date().Format(models.DateLayout),
		booking.ApproxTimeSlot().String(),
		booking.Municipality(),
		string(current.Status()),
		current.Timestamp().UTC().Format(timestampLayout),
		1,
		booking.CreatedAt().UTC().Format(timestampLayout),
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	for i, item := range booking.Items() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO booking_items (token, position, name, description) VALUES (?, ?, ?, ?)`,
			booking.Token(), i, item.Name, item.Description)
		if err != nil {
			return fmt.Errorf("failed to insert booking item: %w", err)
		}
	}

	return appendHistory(ctx, tx, booking.Token(), 0, booking.StatusHistory())
}

func updateBooking(ctx context.Context, tx *sql.Tx, booking *models.Booking) error {
	current := booking.CurrentStatus()
	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, status_at = ?, version = version + 1, updated_at = ?
		 WHERE token = ? AND version = ?`,
		string(current.Status()),
		current.Timestamp().UTC().Format(timestampLayout),
		time.Now().UTC().Format(timestampLayout),
		booking.Token(),
		booking.Version(),
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrConcurrentModification
	}

	var stored int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM booking_status_history WHERE token = ?`, booking.Token()).Scan(&stored)
	if err != nil {
		return fmt.Errorf("failed to count history: %w", err)
	}

	history := booking.StatusHistory()
	if stored > len(history) {
		return fmt.Errorf("booking %s: history shrank from %d to %d", booking.Token(), stored, len(history))
	}
	return appendHistory(ctx, tx, booking.Token(), stored, history[stored:])
}

func appendHistory(ctx context.Context, tx *sql.Tx, token string, offset int, records []models.StatusRecord) error {
	for i, rec := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO booking_status_history (token, position, status, changed_at) VALUES (?, ?, ?, ?)`,
			token, offset+i, string(rec.Status()), rec.Timestamp().UTC().Format(timestampLayout))
		if err != nil {
			return fmt.Errorf("failed to append status history: %w", err)
		}
	}
	return nil
}

const selectBookings = `SELECT token, date, approx_time_slot, municipality, status, status_at, version, created_at
	FROM bookings`

// FindByToken returns (nil, nil) when no booking has the token.
func (db *DB) FindByToken(ctx context.Context, token string) (*models.Booking, error) {
	bookings, err := db.queryBookings(ctx, selectBookings+` WHERE token = ?`, token)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, nil
	}
	return bookings[0], nil
}

func (db *DB) FindAll(ctx context.Context) ([]*models.Booking, error) {
	return db.queryBookings(ctx, selectBookings+` ORDER BY rowid`)
}

func (db *DB) FindByStatus(ctx context.Context, status models.BookingStatus) ([]*models.Booking, error) {
	return db.queryBookings(ctx, selectBookings+` WHERE status = ? ORDER BY rowid`, string(status))
}

func (db *DB) FindByMunicipality(ctx context.Context, municipality string) ([]*models.Booking, error) {
	return db.queryBookings(ctx, selectBookings+` WHERE municipality = ? ORDER BY rowid`, municipality)
}

func (db *DB) FindByDateTimeSlotMunicipality(
	ctx context.Context,
	date time.Time,
	slot models.TimeOfDay,
	municipality string,
) ([]*models.Booking, error) {
	return db.queryBookings(ctx,
		selectBookings+` WHERE date = ? AND approx_time_slot = ? AND municipality = ? ORDER BY rowid`,
		models.DateOf(date).Format(models.DateLayout), slot.String(), municipality)
}

// queryBookings reads the booking rows first and closes the cursor before
// loading items and history, since in-memory databases use one connection.
func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}

	snapshots := make([]models.BookingSnapshot, 0)
	for rows.Next() {
		s, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	rows.Close()

	bookings := make([]*models.Booking, 0, len(snapshots))
	for _, s := range snapshots {
		if s.Items, err = loadItems(ctx, db, s.Token); err != nil {
			return nil, err
		}
		if s.StatusHistory, err = loadHistory(ctx, db, s.Token); err != nil {
			return nil, err
		}
		b, err := models.RestoreBooking(s)
		if err != nil {
			return nil, fmt.Errorf("failed to restore booking %s: %w", s.Token, err)
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

func scanBooking(rows *sql.Rows) (models.BookingSnapshot, error) {
	var (
		s                   models.BookingSnapshot
		slot, status        string
		statusAt, createdAt string
	)
	if err := rows.Scan(&s.Token, &s.Date, &slot, &s.Municipality, &status, &statusAt, &s.Version, &createdAt); err != nil {
		return s, fmt.Errorf("failed to scan booking: %w", err)
	}

	var err error
	if s.ApproxTimeSlot, err = models.ParseTimeOfDay(slot); err != nil {
		return s, fmt.Errorf("booking %s: %w", s.Token, err)
	}
	at, err := parseTimestamp(statusAt)
	if err != nil {
		return s, fmt.Errorf("booking %s: %w", s.Token, err)
	}
	s.CurrentStatus = models.StatusRecordSnapshot{Status: models.BookingStatus(status), Timestamp: at}
	if s.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return s, fmt.Errorf("booking %s: %w", s.Token, err)
	}
	return s, nil
}

func loadItems(ctx context.Context, q querier, token string) ([]models.Item, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, description FROM booking_items WHERE token = ? ORDER BY position`, token)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(&item.Name, &item.Description); err != nil {
			return nil, fmt.Errorf("failed to scan booking item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func loadHistory(ctx context.Context, q querier, token string) ([]models.StatusRecordSnapshot, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT status, changed_at FROM booking_status_history WHERE token = ? ORDER BY position`, token)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var history []models.StatusRecordSnapshot
	for rows.Next() {
		var status, changedAt string
		if err := rows.Scan(&status, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		ts, err := parseTimestamp(changedAt)
		if err != nil {
			return nil, err
		}
		history = append(history, models.StatusRecordSnapshot{Status: models.BookingStatus(status), Timestamp: ts})
	}
	return history, rows.Err()
}

func parseTimestamp(raw string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return t, nil
}
