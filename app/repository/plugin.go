package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
)

var (
	ErrPluginNotFound      = errors.New("plugin not found")
	ErrPluginAlreadyExists = errors.New("plugin already exists")
)

const pluginColumns = `
	id, name, version, description, author, category, capabilities_json, functions_json,
	config_schema_json, executor, source, location, state, config_json, settings_json,
	health, last_error, metrics_json, revision, installed_at, updated_at, last_started_at
`

type PluginRepository struct {
	db DBTX
}

func NewPluginRepository(db DBTX) *PluginRepository {
	return &PluginRepository{db: db}
}

func (r *PluginRepository) Create(ctx context.Context, plugin *entity.Plugin) error {
	values, err := pluginJSONValues(plugin)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO mcp_plugins (` + pluginColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		plugin.ID,
		plugin.Name,
		plugin.Version,
		plugin.Description,
		plugin.Author,
		plugin.Category,
		values.capabilities,
		values.functions,
		values.configSchema,
		plugin.Executor,
		string(plugin.Source),
		plugin.Location,
		string(plugin.State),
		values.config,
		values.settings,
		string(plugin.Health),
		nullableStringValue(plugin.LastError),
		values.metrics,
		plugin.Revision,
		plugin.InstalledAt,
		plugin.UpdatedAt,
		nullableTimeValue(plugin.LastStartedAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPluginAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PluginRepository) Update(ctx context.Context, plugin *entity.Plugin) error {
	values, err := pluginJSONValues(plugin)
	if err != nil {
		return err
	}

	query := `
		UPDATE mcp_plugins SET
			state = ?,
			config_json = ?,
			settings_json = ?,
			health = ?,
			last_error = ?,
			metrics_json = ?,
			revision = revision + 1,
			updated_at = ?,
			last_started_at = ?
		WHERE id = ? AND revision = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(plugin.State),
		values.config,
		values.settings,
		string(plugin.Health),
		nullableStringValue(plugin.LastError),
		values.metrics,
		plugin.UpdatedAt,
		nullableTimeValue(plugin.LastStartedAt),
		plugin.ID,
		plugin.Revision,
	)
	if err != nil {
		return err
	}
	if err := guardRevision(ctx, r.db, result, "mcp_plugins", plugin.ID, ErrPluginNotFound); err != nil {
		return err
	}

	plugin.Revision++
	return nil
}

func (r *PluginRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM mcp_plugins WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPluginNotFound
	}
	return nil
}

func (r *PluginRepository) FindByID(ctx context.Context, id string) (*entity.Plugin, error) {
	plugin := &entity.Plugin{}
	query := `SELECT ` + pluginColumns + ` FROM mcp_plugins WHERE id = ?`
	if err := scanPlugin(r.db.QueryRowContext(ctx, query, id), plugin); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return plugin, nil
}

func (r *PluginRepository) List(ctx context.Context) ([]*entity.Plugin, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+pluginColumns+` FROM mcp_plugins ORDER BY installed_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Plugin, 0)
	for rows.Next() {
		item := &entity.Plugin{}
		if err := scanPlugin(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type pluginJSON struct {
	capabilities string
	functions    string
	configSchema string
	config       string
	settings     string
	metrics      string
}

type storedSettings struct {
	Enabled    bool  `json:"enabled"`
	AutoStart  bool  `json:"autoStart"`
	Priority   int   `json:"priority"`
	TimeoutMs  int64 `json:"timeoutMs"`
	RetryCount int   `json:"retryCount"`
}

func pluginJSONValues(plugin *entity.Plugin) (*pluginJSON, error) {
	var err error
	out := &pluginJSON{}
	if out.capabilities, err = serializeJSON(plugin.Capabilities); err != nil {
		return nil, err
	}
	if out.functions, err = serializeJSON(plugin.Functions); err != nil {
		return nil, err
	}
	if out.configSchema, err = serializeJSON(plugin.ConfigSchema); err != nil {
		return nil, err
	}
	if out.config, err = serializeJSON(plugin.Config); err != nil {
		return nil, err
	}
	if out.settings, err = serializeJSON(storedSettings{
		Enabled:    plugin.Settings.Enabled,
		AutoStart:  plugin.Settings.AutoStart,
		Priority:   plugin.Settings.Priority,
		TimeoutMs:  plugin.Settings.Timeout.Milliseconds(),
		RetryCount: plugin.Settings.RetryCount,
	}); err != nil {
		return nil, err
	}
	if out.metrics, err = serializeJSON(plugin.Metrics); err != nil {
		return nil, err
	}
	return out, nil
}

func scanPlugin(scan rowScanner, plugin *entity.Plugin) error {
	var capabilitiesJSON, functionsJSON, configSchemaJSON, configJSON, settingsJSON, metricsJSON string
	var source, state, health string
	var lastError sql.NullString
	var lastStartedAt sql.NullTime

	err := scan.Scan(
		&plugin.ID,
		&plugin.Name,
		&plugin.Version,
		&plugin.Description,
		&plugin.Author,
		&plugin.Category,
		&capabilitiesJSON,
		&functionsJSON,
		&configSchemaJSON,
		&plugin.Executor,
		&source,
		&plugin.Location,
		&state,
		&configJSON,
		&settingsJSON,
		&health,
		&lastError,
		&metricsJSON,
		&plugin.Revision,
		&plugin.InstalledAt,
		&plugin.UpdatedAt,
		&lastStartedAt,
	)
	if err != nil {
		return err
	}

	plugin.Source = entity.PluginSource(source)
	plugin.State = entity.PluginState(state)
	plugin.Health = entity.PluginHealth(health)
	plugin.LastError = stringPtrFromNull(lastError)
	plugin.LastStartedAt = timePtrFromNull(lastStartedAt)

	if err := parseJSON(capabilitiesJSON, &plugin.Capabilities); err != nil {
		return err
	}
	if err := parseJSON(functionsJSON, &plugin.Functions); err != nil {
		return err
	}
	if err := parseJSON(configSchemaJSON, &plugin.ConfigSchema); err != nil {
		return err
	}
	if err := parseJSON(configJSON, &plugin.Config); err != nil {
		return err
	}
	if err := parseJSON(metricsJSON, &plugin.Metrics); err != nil {
		return err
	}

	var settings storedSettings
	if err := parseJSON(settingsJSON, &settings); err != nil {
		return err
	}
	plugin.Settings = entity.PluginSettings{
		Enabled:    settings.Enabled,
		AutoStart:  settings.AutoStart,
		Priority:   settings.Priority,
		Timeout:    time.Duration(settings.TimeoutMs) * time.Millisecond,
		RetryCount: settings.RetryCount,
	}
	return nil
}
