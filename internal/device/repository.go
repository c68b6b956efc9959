package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device directory persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
//
// The directory is strictly supplementary to the live session Registry:
// routing never consults it and never blocks on it.
type Repository interface {
	// Upsert records a registration. New identities get a directory row;
	// known identities have their name and last connection refreshed and
	// their session count incremented.
	Upsert(ctx context.Context, id, name string, connectedAt time.Time) error

	// MarkSeen updates the last_seen timestamp for a device.
	// Returns ErrRecordNotFound if the device has no directory row.
	MarkSeen(ctx context.Context, id string, seenAt time.Time) error

	// GetByID retrieves a directory record.
	// Returns ErrRecordNotFound if the device has never registered.
	GetByID(ctx context.Context, id string) (*Record, error)

	// List retrieves all directory records, most recently connected first.
	List(ctx context.Context) ([]Record, error)

	// Delete removes a directory record.
	// Returns ErrRecordNotFound if the device has no directory row.
	Delete(ctx context.Context, id string) error

	// Count returns the number of directory records.
	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the devices
// table migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert records a registration.
func (r *SQLiteRepository) Upsert(ctx context.Context, id, name string, connectedAt time.Time) error {
	ts := connectedAt.UTC().Format(time.RFC3339)

	query := `
		INSERT INTO devices (id, name, first_seen, last_connected_at, session_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			last_connected_at = excluded.last_connected_at,
			session_count = devices.session_count + 1`

	if _, err := r.db.ExecContext(ctx, query, id, name, ts, ts); err != nil {
		return fmt.Errorf("upserting device record: %w", err)
	}
	return nil
}

// MarkSeen updates the last_seen timestamp for a device.
func (r *SQLiteRepository) MarkSeen(ctx context.Context, id string, seenAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET last_seen = ? WHERE id = ?",
		seenAt.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating last_seen: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// GetByID retrieves a directory record.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, first_seen, last_connected_at, last_seen, session_count
		FROM devices
		WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying device record: %w", err)
	}
	return rec, nil
}

// List retrieves all directory records, most recently connected first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, first_seen, last_connected_at, last_seen, session_count
		FROM devices
		ORDER BY last_connected_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying device records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device record: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device records: %w", err)
	}
	return records, nil
}

// Delete removes a directory record.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Count returns the number of directory records.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting device records: %w", err)
	}
	return count, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a row or rows result into a Record.
func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var firstSeen, lastConnectedAt string
	var lastSeen sql.NullString

	err := scanner.Scan(
		&rec.ID,
		&rec.Name,
		&firstSeen,
		&lastConnectedAt,
		&lastSeen,
		&rec.SessionCount,
	)
	if err != nil {
		return nil, err
	}

	var parseErr error
	rec.FirstSeen, parseErr = time.Parse(time.RFC3339, firstSeen)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing first_seen: %w", parseErr)
	}
	rec.LastConnectedAt, parseErr = time.Parse(time.RFC3339, lastConnectedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing last_connected_at: %w", parseErr)
	}

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err == nil {
			rec.LastSeen = &t
		}
	}

	return &rec, nil
}
