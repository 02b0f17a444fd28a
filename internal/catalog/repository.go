package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository is the catalog read/write contract. The executor only needs
// the read half (FindModelByName, FindCommand, ListCommands).
type Repository interface {
	// FindModelByName returns ErrModelNotFound if no model has this name.
	FindModelByName(ctx context.Context, name string) (*ReceiverModel, error)

	// FindModel looks a model up by manufacturer (case-insensitive) and name.
	FindModel(ctx context.Context, manufacturer, name string) (*ReceiverModel, error)

	// FindCommand returns ErrCommandNotFound if the model has no such action.
	FindCommand(ctx context.Context, modelID int64, actionName string) (*CommandDefinition, error)

	// ListCommands returns the model's commands ordered by type then name.
	ListCommands(ctx context.Context, modelID int64) ([]CommandDefinition, error)

	ListModels(ctx context.Context) ([]ReceiverModel, error)

	// SaveModel inserts or updates a model by name and sets its ID.
	SaveModel(ctx context.Context, model *ReceiverModel) error

	// SaveCommand inserts or updates a command by (model, action) and
	// replaces its parameters.
	SaveCommand(ctx context.Context, cmd *CommandDefinition) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a catalog repository over an open, migrated
// SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const modelColumns = `id, manufacturer, name, firmware_version, protocol, default_port,
	description, created_at, updated_at`

// FindModelByName retrieves a model by its unique name.
func (r *SQLiteRepository) FindModelByName(ctx context.Context, name string) (*ReceiverModel, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM receiver_models WHERE name = ?`, name)
	m, err := scanModel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
		}
		return nil, fmt.Errorf("querying model by name: %w", err)
	}
	return m, nil
}

// FindModel retrieves a model by manufacturer and name.
func (r *SQLiteRepository) FindModel(ctx context.Context, manufacturer, name string) (*ReceiverModel, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+modelColumns+` FROM receiver_models WHERE lower(manufacturer) = lower(?) AND name = ?`,
		manufacturer, name)
	m, err := scanModel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", ErrModelNotFound, manufacturer, name)
		}
		return nil, fmt.Errorf("querying model: %w", err)
	}
	return m, nil
}

// ListModels returns all models ordered by manufacturer and name.
func (r *SQLiteRepository) ListModels(ctx context.Context) ([]ReceiverModel, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+modelColumns+` FROM receiver_models ORDER BY manufacturer, name`)
	if err != nil {
		return nil, fmt.Errorf("querying models: %w", err)
	}
	defer rows.Close()

	var models []ReceiverModel
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning model: %w", err)
		}
		models = append(models, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating models: %w", err)
	}
	return models, nil
}

// SaveModel upserts a model keyed by name.
func (r *SQLiteRepository) SaveModel(ctx context.Context, m *ReceiverModel) error {
	if m.Protocol == "" {
		m.Protocol = DefaultProtocol
	}
	if m.DefaultPort == 0 {
		m.DefaultPort = DefaultPort
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO receiver_models (manufacturer, name, firmware_version, protocol, default_port,
			description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			manufacturer = excluded.manufacturer,
			firmware_version = excluded.firmware_version,
			protocol = excluded.protocol,
			default_port = excluded.default_port,
			description = excluded.description,
			updated_at = excluded.updated_at
		RETURNING id`,
		m.Manufacturer, m.Name, nullableString(m.FirmwareVersion), m.Protocol, m.DefaultPort,
		nullableString(m.Description), m.CreatedAt.Format(time.RFC3339), m.UpdatedAt.Format(time.RFC3339),
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("saving model %s: %w", m.Name, err)
	}
	return nil
}

const commandColumns = `id, model_id, action_type, action_name, endpoint, http_method,
	command_template, description`

// FindCommand retrieves one command with its parameters.
func (r *SQLiteRepository) FindCommand(ctx context.Context, modelID int64, actionName string) (*CommandDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE model_id = ? AND action_name = ?`,
		modelID, actionName)
	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, actionName)
		}
		return nil, fmt.Errorf("querying command: %w", err)
	}

	params, err := r.loadParameters(ctx, []int64{cmd.ID})
	if err != nil {
		return nil, err
	}
	cmd.Parameters = params[cmd.ID]
	return cmd, nil
}

// ListCommands returns every command of a model with parameters attached.
func (r *SQLiteRepository) ListCommands(ctx context.Context, modelID int64) ([]CommandDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE model_id = ? ORDER BY action_type, action_name`,
		modelID)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var cmds []CommandDefinition
	var ids []int64
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		cmds = append(cmds, *cmd)
		ids = append(ids, cmd.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	rows.Close()

	params, err := r.loadParameters(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range cmds {
		cmds[i].Parameters = params[cmds[i].ID]
	}
	return cmds, nil
}

// SaveCommand upserts a command and replaces its parameters in one
// transaction.
func (r *SQLiteRepository) SaveCommand(ctx context.Context, cmd *CommandDefinition) error {
	if cmd.Method == "" {
		cmd.Method = DefaultMethod
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	err = tx.QueryRowContext(ctx, `
		INSERT INTO commands (model_id, action_type, action_name, endpoint, http_method,
			command_template, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (model_id, action_name) DO UPDATE SET
			action_type = excluded.action_type,
			endpoint = excluded.endpoint,
			http_method = excluded.http_method,
			command_template = excluded.command_template,
			description = excluded.description
		RETURNING id`,
		cmd.ModelID, cmd.ActionType, cmd.ActionName, cmd.Endpoint, cmd.Method,
		cmd.Template, nullableString(cmd.Description),
	).Scan(&cmd.ID)
	if err != nil {
		return fmt.Errorf("saving command %s: %w", cmd.ActionName, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM command_parameters WHERE command_id = ?`, cmd.ID); err != nil {
		return fmt.Errorf("clearing parameters of %s: %w", cmd.ActionName, err)
	}

	for i, p := range cmd.Parameters {
		var validValues sql.NullString
		if len(p.ValidValues) > 0 {
			data, err := json.Marshal(p.ValidValues)
			if err != nil {
				return fmt.Errorf("marshalling valid values of %s.%s: %w", cmd.ActionName, p.Name, err)
			}
			validValues = sql.NullString{String: string(data), Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO command_parameters (command_id, position, name, param_type, required,
				default_value, valid_values, min_value, max_value, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cmd.ID, i, p.Name, string(p.Type), boolToInt(p.Required),
			nullableStringPtr(p.Default), validValues, nullableFloat(p.Min), nullableFloat(p.Max),
			nullableString(p.Description),
		)
		if err != nil {
			return fmt.Errorf("saving parameter %s.%s: %w", cmd.ActionName, p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing command %s: %w", cmd.ActionName, err)
	}
	return nil
}

// loadParameters fetches the parameters of the given commands keyed by
// command ID, in declaration order.
func (r *SQLiteRepository) loadParameters(ctx context.Context, commandIDs []int64) (map[int64][]ParameterSpec, error) {
	result := make(map[int64][]ParameterSpec, len(commandIDs))
	if len(commandIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(commandIDs)), ",")
	args := make([]any, len(commandIDs))
	for i, id := range commandIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT command_id, name, param_type, required, default_value, valid_values,
			min_value, max_value, description
		FROM command_parameters
		WHERE command_id IN (`+placeholders+`)
		ORDER BY command_id, position`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying parameters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			commandID                 int64
			p                         ParameterSpec
			paramType                 string
			required                  int
			defaultValue, validValues sql.NullString
			minValue, maxValue        sql.NullFloat64
			description               sql.NullString
		)
		if err := rows.Scan(&commandID, &p.Name, &paramType, &required, &defaultValue,
			&validValues, &minValue, &maxValue, &description); err != nil {
			return nil, fmt.Errorf("scanning parameter: %w", err)
		}

		p.Type = ParamType(paramType)
		p.Required = required != 0
		p.Description = description.String
		if defaultValue.Valid {
			v := defaultValue.String
			p.Default = &v
		}
		if validValues.Valid {
			if err := json.Unmarshal([]byte(validValues.String), &p.ValidValues); err != nil {
				return nil, fmt.Errorf("unmarshalling valid values of %s: %w", p.Name, err)
			}
		}
		if minValue.Valid {
			v := minValue.Float64
			p.Min = &v
		}
		if maxValue.Valid {
			v := maxValue.Float64
			p.Max = &v
		}

		result[commandID] = append(result[commandID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating parameters: %w", err)
	}
	return result, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*ReceiverModel, error) {
	var m ReceiverModel
	var firmware, description sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&m.ID, &m.Manufacturer, &m.Name, &firmware, &m.Protocol, &m.DefaultPort,
		&description, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	m.FirmwareVersion = firmware.String
	m.Description = description.String
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
	return &m, nil
}

func scanCommand(row rowScanner) (*CommandDefinition, error) {
	var c CommandDefinition
	var description sql.NullString

	if err := row.Scan(&c.ID, &c.ModelID, &c.ActionType, &c.ActionName, &c.Endpoint, &c.Method,
		&c.Template, &description); err != nil {
		return nil, err
	}
	c.Description = description.String
	return &c, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
