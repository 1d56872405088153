package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Repository defines the persistence interface for telemetry records.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Append inserts a record and fills in its generated ID.
	Append(ctx context.Context, record *Record) error

	// ListByDevice returns recent records for a device, newest first.
	// Limit defaults to 50 and is capped at 200.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Record, error)

	// CountByDevice returns the number of records stored for a device.
	CountByDevice(ctx context.Context, deviceID string) (int64, error)

	// PruneOlderThan deletes records older than the given age and returns
	// the number deleted.
	PruneOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
//
// Records are stored as JSON in the telemetry table, indexed on
// (device_id, received_at DESC) for the list query.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a telemetry repository backed by the
// given database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts a telemetry record.
func (r *SQLiteRepository) Append(ctx context.Context, record *Record) error {
	if record.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if record.Payload == nil {
		record.Payload = map[string]any{}
	}
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO telemetry (device_id, imei, payload, received_at) VALUES (?, ?, ?, ?)",
		record.DeviceID,
		record.IMEI,
		string(payloadJSON),
		record.ReceivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading record id: %w", err)
	}
	record.ID = id
	return nil
}

// ListByDevice returns recent records for a device, newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, imei, payload, received_at
		 FROM telemetry
		 WHERE device_id = ?
		 ORDER BY received_at DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var record Record
		var payloadJSON string
		var receivedAt string

		if err := rows.Scan(&record.ID, &record.DeviceID, &record.IMEI, &payloadJSON, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning telemetry row: %w", err)
		}

		if err := json.Unmarshal([]byte(payloadJSON), &record.Payload); err != nil {
			return nil, fmt.Errorf("unmarshalling payload: %w", err)
		}

		record.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry rows: %w", err)
	}
	return records, nil
}

// CountByDevice returns the number of records stored for a device.
func (r *SQLiteRepository) CountByDevice(ctx context.Context, deviceID string) (int64, error) {
	if deviceID == "" {
		return 0, fmt.Errorf("device id is required")
	}

	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM telemetry WHERE device_id = ?",
		deviceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting telemetry: %w", err)
	}
	return count, nil
}

// PruneOlderThan deletes records older than the given age.
func (r *SQLiteRepository) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age).Format(time.RFC3339Nano)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM telemetry WHERE received_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning telemetry: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking prune result: %w", err)
	}
	return deleted, nil
}
