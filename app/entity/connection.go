package entity

import "time"

type ConnectionStatus string

const (
	ConnectionStatusActive   ConnectionStatus = "active"
	ConnectionStatusInactive ConnectionStatus = "inactive"
)

// PluginConnection binds a user to an installed plugin. Config overrides the
// plugin config for exchanges made through the connection.
type PluginConnection struct {
	ID       string
	UserID   string
	PluginID string
	Config   map[string]interface{}
	Status   ConnectionStatus

	Revision int64

	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastUsedAt *time.Time
}

func (c *PluginConnection) Active() bool {
	return c.Status == ConnectionStatusActive
}

// PluginExchange is the log entry written for every exchange, successful or
// not.
type PluginExchange struct {
	ID           string
	ConnectionID string
	PluginID     string
	Action       string
	RequestJSON  string
	ResponseJSON *string
	Success      bool
	Error        *string
	DurationMs   int64
	CreatedAt    time.Time
}
