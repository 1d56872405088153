package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the persistence interface for devices.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetByID retrieves a device by its internal ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByIMEI retrieves a device by its wire identity.
	// Returns ErrDeviceNotFound if no device carries the IMEI.
	GetByIMEI(ctx context.Context, imei string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Create persists a new device.
	// Returns ErrDeviceExists if the ID or IMEI is already taken.
	Create(ctx context.Context, device *Device) error

	// Update persists changes to an existing device.
	// The IMEI is immutable and is not written.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device. Telemetry rows cascade.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateTelemetry records the latest payload and receipt time for a
	// device. This is the hot path, called once per telemetry message.
	UpdateTelemetry(ctx context.Context, id string, payload Payload, seenAt time.Time) error
}

// deviceColumns is the column list shared by all SELECT queries.
const deviceColumns = `id, imei, name, template_id, mode, is_on,
	last_seen_at, last_telemetry, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository backed by the given database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device %s: %w", id, err)
	}
	return device, nil
}

// GetByIMEI retrieves a device by IMEI.
func (r *SQLiteRepository) GetByIMEI(ctx context.Context, imei string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE imei = ?`

	row := r.db.QueryRowContext(ctx, query, imei)
	device, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by imei %s: %w", imei, err)
	}
	return device, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// Create persists a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if device.IMEI == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIMEI)
	}
	if device.Name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if device.Mode == "" {
		device.Mode = ModeAuto
	}

	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now

	telemetryJSON, err := marshalPayload(device.LastTelemetry)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO devices (id, imei, name, template_id, mode, is_on,
			last_seen_at, last_telemetry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		device.IMEI,
		device.Name,
		nullableString(device.TemplateID),
		string(device.Mode),
		boolToInt(device.IsOn),
		nullableTime(device.LastSeenAt),
		telemetryJSON,
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrDeviceExists, device.IMEI)
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update persists changes to an existing device. The IMEI column is
// deliberately excluded from the SET list.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	if device.Name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}

	device.UpdatedAt = time.Now().UTC()

	telemetryJSON, err := marshalPayload(device.LastTelemetry)
	if err != nil {
		return err
	}

	query := `
		UPDATE devices
		SET name = ?, template_id = ?, mode = ?, is_on = ?,
			last_seen_at = ?, last_telemetry = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.Name,
		nullableString(device.TemplateID),
		string(device.Mode),
		boolToInt(device.IsOn),
		nullableTime(device.LastSeenAt),
		telemetryJSON,
		device.UpdatedAt.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device %s: %w", device.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// UpdateTelemetry records the latest payload and receipt time.
func (r *SQLiteRepository) UpdateTelemetry(ctx context.Context, id string, payload Payload, seenAt time.Time) error {
	telemetryJSON, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	query := `
		UPDATE devices
		SET last_seen_at = ?, last_telemetry = ?, updated_at = ?
		WHERE id = ?`

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, query,
		seenAt.UTC().Format(time.RFC3339),
		telemetryJSON,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("updating telemetry for device %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking telemetry update result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning logic.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDeviceRow scans a device from a database row.
// Column order must match deviceColumns.
func scanDeviceRow(row rowScanner) (*Device, error) {
	var (
		device        Device
		templateID    sql.NullString
		mode          string
		isOn          int
		lastSeenAt    sql.NullString
		lastTelemetry sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := row.Scan(
		&device.ID,
		&device.IMEI,
		&device.Name,
		&templateID,
		&mode,
		&isOn,
		&lastSeenAt,
		&lastTelemetry,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	device.Mode = Mode(mode)
	device.IsOn = isOn != 0

	if templateID.Valid {
		device.TemplateID = &templateID.String
	}
	if lastSeenAt.Valid {
		t, err := time.Parse(time.RFC3339, lastSeenAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen_at: %w", err)
		}
		device.LastSeenAt = &t
	}
	if lastTelemetry.Valid && lastTelemetry.String != "" {
		if err := json.Unmarshal([]byte(lastTelemetry.String), &device.LastTelemetry); err != nil {
			return nil, fmt.Errorf("parsing last_telemetry: %w", err)
		}
	}

	device.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	device.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &device, nil
}

// marshalPayload serialises a payload for storage. Nil payloads are stored
// as SQL NULL rather than the string "null".
func marshalPayload(p Payload) (any, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshalling payload: %w", err)
	}
	return string(data), nil
}

// nullableString converts *string to a driver-friendly value.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// nullableTime converts *time.Time to an RFC3339 string or NULL.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// boolToInt converts bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError reports whether err is a SQLite UNIQUE violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
