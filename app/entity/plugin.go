package entity

import "time"

type PluginState string

const (
	PluginStateUninstalled PluginState = "uninstalled"
	PluginStateInstalled   PluginState = "installed"
	PluginStateConfigured  PluginState = "configured"
	PluginStateRunning     PluginState = "running"
	PluginStateFailed      PluginState = "failed"
)

// Any state may move to uninstalled; that edge is handled by CanTransitionTo.
var pluginTransitions = map[PluginState][]PluginState{
	PluginStateUninstalled: {PluginStateInstalled},
	PluginStateInstalled:   {PluginStateConfigured},
	PluginStateConfigured:  {PluginStateConfigured, PluginStateRunning},
	PluginStateRunning:     {PluginStateFailed, PluginStateConfigured},
	PluginStateFailed:      {PluginStateConfigured},
}

func (s PluginState) CanTransitionTo(next PluginState) bool {
	if next == PluginStateUninstalled {
		return s != PluginStateUninstalled
	}
	for _, allowed := range pluginTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PluginSource string

const (
	PluginSourceRegistry PluginSource = "registry"
	PluginSourceURL      PluginSource = "url"
	PluginSourceLocal    PluginSource = "local"
)

type PluginHealth string

const (
	PluginHealthHealthy PluginHealth = "healthy"
	PluginHealthWarning PluginHealth = "warning"
	PluginHealthError   PluginHealth = "error"
)

const (
	ExecutorHTTP    = "http"
	ExecutorBuiltin = "builtin"
)

// FieldSpec describes one config field or function parameter. Rules holds
// validator tags applied to the value (e.g. "url" or "min=1,max=100").
type FieldSpec struct {
	Type        string      `yaml:"type" json:"type"`
	Required    bool        `yaml:"required" json:"required"`
	Rules       string      `yaml:"rules" json:"rules,omitempty"`
	Description string      `yaml:"description" json:"description,omitempty"`
	Default     interface{} `yaml:"default" json:"default,omitempty"`
}

type PluginFunction struct {
	Name        string               `yaml:"name" json:"name"`
	Description string               `yaml:"description" json:"description,omitempty"`
	Parameters  map[string]FieldSpec `yaml:"parameters" json:"parameters,omitempty"`
}

type PluginSettings struct {
	Enabled    bool          `json:"enabled"`
	AutoStart  bool          `json:"autoStart"`
	Priority   int           `json:"priority"`
	Timeout    time.Duration `json:"timeout"`
	RetryCount int           `json:"retryCount"`
}

type PluginMetrics struct {
	ExecutionCount  int64      `json:"executionCount"`
	SuccessCount    int64      `json:"successCount"`
	FailureCount    int64      `json:"failureCount"`
	TotalDurationMs int64      `json:"totalDurationMs"`
	LastExecutedAt  *time.Time `json:"lastExecutedAt,omitempty"`
}

func (m PluginMetrics) SuccessRate() float64 {
	if m.ExecutionCount == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.ExecutionCount) * 100
}

func (m PluginMetrics) AverageDurationMs() float64 {
	if m.ExecutionCount == 0 {
		return 0
	}
	return float64(m.TotalDurationMs) / float64(m.ExecutionCount)
}

type Plugin struct {
	ID           string
	Name         string
	Version      string
	Description  string
	Author       string
	Category     string
	Capabilities []string
	Functions    []PluginFunction
	ConfigSchema map[string]FieldSpec

	Executor string
	Source   PluginSource
	Location string

	State     PluginState
	Config    map[string]interface{}
	Settings  PluginSettings
	Health    PluginHealth
	LastError *string
	Metrics   PluginMetrics

	Revision int64

	InstalledAt   time.Time
	UpdatedAt     time.Time
	LastStartedAt *time.Time
}

func (p *Plugin) Function(name string) (PluginFunction, bool) {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return PluginFunction{}, false
}
