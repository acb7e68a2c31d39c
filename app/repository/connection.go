package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
)

var ErrConnectionNotFound = errors.New("plugin connection not found")

const connectionColumns = `
	id, user_id, plugin_id, config_json, status, revision, created_at, updated_at, last_used_at
`

type ConnectionRepository struct {
	db DBTX
}

func NewConnectionRepository(db DBTX) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func (r *ConnectionRepository) Create(ctx context.Context, conn *entity.PluginConnection) error {
	configJSON, err := serializeJSON(conn.Config)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO plugin_connections (` + connectionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		conn.ID,
		conn.UserID,
		conn.PluginID,
		configJSON,
		string(conn.Status),
		conn.Revision,
		conn.CreatedAt,
		conn.UpdatedAt,
		nullableTimeValue(conn.LastUsedAt),
	)
	return err
}

func (r *ConnectionRepository) Update(ctx context.Context, conn *entity.PluginConnection) error {
	configJSON, err := serializeJSON(conn.Config)
	if err != nil {
		return err
	}

	query := `
		UPDATE plugin_connections SET
			config_json = ?,
			status = ?,
			revision = revision + 1,
			updated_at = ?,
			last_used_at = ?
		WHERE id = ? AND revision = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		configJSON,
		string(conn.Status),
		conn.UpdatedAt,
		nullableTimeValue(conn.LastUsedAt),
		conn.ID,
		conn.Revision,
	)
	if err != nil {
		return err
	}
	if err := guardRevision(ctx, r.db, result, "plugin_connections", conn.ID, ErrConnectionNotFound); err != nil {
		return err
	}

	conn.Revision++
	return nil
}

func (r *ConnectionRepository) FindByID(ctx context.Context, id string) (*entity.PluginConnection, error) {
	conn := &entity.PluginConnection{}
	query := `SELECT ` + connectionColumns + ` FROM plugin_connections WHERE id = ?`
	if err := scanConnection(r.db.QueryRowContext(ctx, query, id), conn); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return conn, nil
}

// ListActiveByUser returns the active connections of a user, oldest first.
func (r *ConnectionRepository) ListActiveByUser(ctx context.Context, userID string) ([]*entity.PluginConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM plugin_connections
		WHERE user_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, string(entity.ConnectionStatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.PluginConnection, 0)
	for rows.Next() {
		item := &entity.PluginConnection{}
		if err := scanConnection(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanConnection(scan rowScanner, conn *entity.PluginConnection) error {
	var configJSON string
	var status string
	var lastUsedAt sql.NullTime

	err := scan.Scan(
		&conn.ID,
		&conn.UserID,
		&conn.PluginID,
		&configJSON,
		&status,
		&conn.Revision,
		&conn.CreatedAt,
		&conn.UpdatedAt,
		&lastUsedAt,
	)
	if err != nil {
		return err
	}

	conn.Status = entity.ConnectionStatus(status)
	conn.LastUsedAt = timePtrFromNull(lastUsedAt)
	if err := parseJSON(configJSON, &conn.Config); err != nil {
		return err
	}
	if conn.Config == nil {
		conn.Config = map[string]interface{}{}
	}
	return nil
}

type ExchangeRepository struct {
	db DBTX
}

func NewExchangeRepository(db DBTX) *ExchangeRepository {
	return &ExchangeRepository{db: db}
}

func (r *ExchangeRepository) Create(ctx context.Context, exchange *entity.PluginExchange) error {
	query := `
		INSERT INTO mcp_exchange_logs (
			id, connection_id, plugin_id, action, request_json, response_json,
			success, error, duration_ms, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		exchange.ID,
		exchange.ConnectionID,
		exchange.PluginID,
		exchange.Action,
		exchange.RequestJSON,
		nullableStringValue(exchange.ResponseJSON),
		exchange.Success,
		nullableStringValue(exchange.Error),
		exchange.DurationMs,
		exchange.CreatedAt,
	)
	return err
}
