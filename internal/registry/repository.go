package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Repository is the registry read/write contract used by discovery.
type Repository interface {
	// FindDeviceByAddress returns ErrDeviceNotFound if the address is new.
	FindDeviceByAddress(ctx context.Context, address string) (*Device, error)

	// UpsertDevice inserts or replaces the device stored under its
	// address. The stored ID and DiscoveredAt of an existing record are
	// kept. An empty ID is generated.
	UpsertDevice(ctx context.Context, device *Device) error

	// ListDevices returns devices by LastSeen, newest first, with Model
	// filled for identified devices.
	ListDevices(ctx context.Context, activeOnly bool) ([]Device, error)

	// MarkInactive clears Active on the given IDs and returns how many
	// devices changed.
	MarkInactive(ctx context.Context, ids []string) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a registry over an open, migrated SQLite
// connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceSelect = `
	SELECT d.id, d.address, d.port, d.hostname, d.mac, d.friendly_name, d.model_id,
		d.active, d.last_seen, d.discovered_at, d.method,
		m.manufacturer, m.name
	FROM discovered_devices d
	LEFT JOIN receiver_models m ON m.id = d.model_id`

// FindDeviceByAddress retrieves a device by its address.
func (r *SQLiteRepository) FindDeviceByAddress(ctx context.Context, address string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, deviceSelect+` WHERE d.address = ?`, address)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device %s: %w", address, err)
	}
	return d, nil
}

// UpsertDevice writes a device keyed by address.
func (r *SQLiteRepository) UpsertDevice(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = GenerateID()
	}

	var modelID sql.NullInt64
	if d.ModelID != nil {
		modelID = sql.NullInt64{Int64: *d.ModelID, Valid: true}
	}
	var port sql.NullInt64
	if d.Port != 0 {
		port = sql.NullInt64{Int64: int64(d.Port), Valid: true}
	}

	var storedID, discoveredAt string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO discovered_devices (id, address, port, hostname, mac, friendly_name, model_id,
			active, last_seen, discovered_at, method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			port = excluded.port,
			hostname = excluded.hostname,
			mac = excluded.mac,
			friendly_name = excluded.friendly_name,
			model_id = excluded.model_id,
			active = excluded.active,
			last_seen = excluded.last_seen
		RETURNING id, discovered_at`,
		d.ID, d.Address, port, nullableString(d.Hostname), nullableString(d.MAC),
		nullableString(d.FriendlyName), modelID, boolToInt(d.Active),
		formatTime(d.LastSeen), formatTime(d.DiscoveredAt), string(d.Method),
	).Scan(&storedID, &discoveredAt)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", d.Address, err)
	}

	d.ID = storedID
	d.DiscoveredAt, _ = parseTime(discoveredAt) //nolint:errcheck // Format is controlled
	return nil
}

// ListDevices returns devices newest first.
func (r *SQLiteRepository) ListDevices(ctx context.Context, activeOnly bool) ([]Device, error) {
	query := deviceSelect
	if activeOnly {
		query += ` WHERE d.active = 1`
	}
	query += ` ORDER BY d.last_seen DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// MarkInactive flips active devices among ids to inactive.
func (r *SQLiteRepository) MarkInactive(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE discovered_devices SET active = 0 WHERE active = 1 AND id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("marking devices inactive: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d                           Device
		port, modelID               sql.NullInt64
		hostname, mac, friendlyName sql.NullString
		active                      int
		lastSeen, discoveredAt      string
		method                      string
		manufacturer, modelName     sql.NullString
	)

	if err := row.Scan(&d.ID, &d.Address, &port, &hostname, &mac, &friendlyName, &modelID,
		&active, &lastSeen, &discoveredAt, &method, &manufacturer, &modelName); err != nil {
		return nil, err
	}

	d.Port = int(port.Int64)
	d.Hostname = hostname.String
	d.MAC = mac.String
	d.FriendlyName = friendlyName.String
	d.Active = active != 0
	d.Method = Method(method)

	var err error
	if d.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	if d.DiscoveredAt, err = parseTime(discoveredAt); err != nil {
		return nil, fmt.Errorf("parsing discovered_at: %w", err)
	}

	if modelID.Valid {
		id := modelID.Int64
		d.ModelID = &id
		if modelName.Valid {
			d.Model = &ModelRef{ID: id, Manufacturer: manufacturer.String, Name: modelName.String}
		}
	}
	return &d, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
