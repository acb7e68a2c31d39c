package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/events"
	"github.com/vibast-solutions/ms-go-integrations/app/lock"
	"github.com/vibast-solutions/ms-go-integrations/app/plugin"
	"github.com/vibast-solutions/ms-go-integrations/app/repository"
	"github.com/vibast-solutions/ms-go-integrations/app/types"
	"github.com/vibast-solutions/ms-go-integrations/config"
	"github.com/zoobzio/clockz"
	"golang.org/x/sync/semaphore"
)

// Health drops to warning once a plugin with this many executions succeeds
// less often than warningSuccessRate percent.
const (
	warningMinExecutions = 5
	warningSuccessRate   = 80.0
)

type pluginRepository interface {
	Create(ctx context.Context, plugin *entity.Plugin) error
	Update(ctx context.Context, plugin *entity.Plugin) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*entity.Plugin, error)
	List(ctx context.Context) ([]*entity.Plugin, error)
}

type connectionRepository interface {
	Create(ctx context.Context, conn *entity.PluginConnection) error
	Update(ctx context.Context, conn *entity.PluginConnection) error
	FindByID(ctx context.Context, id string) (*entity.PluginConnection, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*entity.PluginConnection, error)
}

type exchangeRepository interface {
	Create(ctx context.Context, exchange *entity.PluginExchange) error
}

type pluginExecutor interface {
	Execute(ctx context.Context, req *plugin.Request) (interface{}, error)
}

type installPluginRequest interface {
	GetPluginId() string
	GetSource() string
	GetLocation() string
	GetConfig() map[string]interface{}
	GetSettings() *types.PluginSettingsRequest
}

type executePluginRequest interface {
	GetFunction() string
	GetParameters() map[string]interface{}
	GetTimeoutMs() int64
}

type PluginRepositories struct {
	Plugins       pluginRepository
	Connections   connectionRepository
	Exchanges     exchangeRepository
	StatusChanges statusChangeRepository
}

type PluginRegistry struct {
	Plugins    []*entity.Plugin
	Total      int
	Categories []string
	Featured   []string
}

type PluginStatus struct {
	Plugin        *entity.Plugin
	UptimeSeconds int64
	CheckedAt     time.Time
}

type ExecutionResult struct {
	ExecutionID string
	PluginID    string
	Function    string
	Success     bool
	Result      interface{}
	Error       string
	DurationMs  int64
	Timestamp   time.Time
}

type PluginService struct {
	repo          pluginRepository
	connections   connectionRepository
	exchanges     exchangeRepository
	statusChanges statusChangeRepository
	catalog       *plugin.Catalog
	executor      pluginExecutor
	gate          *semaphore.Weighted
	cfg           config.MCPConfig
	publisher     events.Publisher
	clock         clockz.Clock
	logger        logrus.FieldLogger

	locks           *lock.Keyed
	connectionLocks *lock.Keyed
}

func NewPluginService(
	repos PluginRepositories,
	catalog *plugin.Catalog,
	executor pluginExecutor,
	publisher events.Publisher,
	cfg config.MCPConfig,
	clock clockz.Clock,
	logger logrus.FieldLogger,
) *PluginService {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if clock == nil {
		clock = clockz.RealClock
	}

	return &PluginService{
		repo:            repos.Plugins,
		connections:     repos.Connections,
		exchanges:       repos.Exchanges,
		statusChanges:   repos.StatusChanges,
		catalog:         catalog,
		executor:        executor,
		gate:            semaphore.NewWeighted(maxConcurrent),
		cfg:             cfg,
		publisher:       publisher,
		clock:           clock,
		logger:          logger,
		locks:           lock.NewKeyed(),
		connectionLocks: lock.NewKeyed(),
	}
}

// ListPlugins merges the catalog with the installed state of each plugin.
func (s *PluginService) ListPlugins(ctx context.Context) (*PluginRegistry, error) {
	installed, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*entity.Plugin, len(installed))
	for _, p := range installed {
		byID[p.ID] = p
	}

	entries := s.catalog.Entries()
	plugins := make([]*entity.Plugin, 0, len(entries)+len(installed))
	categories := map[string]struct{}{}
	for _, entry := range entries {
		if p, ok := byID[entry.ID]; ok {
			plugins = append(plugins, p)
			delete(byID, entry.ID)
		} else {
			plugins = append(plugins, entry.NewPlugin())
		}
		if entry.Category != "" {
			categories[entry.Category] = struct{}{}
		}
	}
	for _, p := range installed {
		if _, left := byID[p.ID]; left {
			plugins = append(plugins, p)
			if p.Category != "" {
				categories[p.Category] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(categories))
	for c := range categories {
		names = append(names, c)
	}
	sort.Strings(names)

	return &PluginRegistry{
		Plugins:    plugins,
		Total:      len(plugins),
		Categories: names,
		Featured:   append([]string(nil), s.cfg.Featured...),
	}, nil
}

// Install registers a catalog plugin. Url and local sources override where
// the plugin runs and are refused while signed plugins are required.
func (s *PluginService) Install(ctx context.Context, req installPluginRequest) (*entity.Plugin, error) {
	pluginID := strings.TrimSpace(req.GetPluginId())
	if pluginID == "" {
		return nil, fmt.Errorf("%w: pluginId is required", ErrValidation)
	}

	source := entity.PluginSource(strings.TrimSpace(req.GetSource()))
	if source == "" {
		source = entity.PluginSourceRegistry
	}
	location := strings.TrimSpace(req.GetLocation())
	switch source {
	case entity.PluginSourceRegistry:
	case entity.PluginSourceURL, entity.PluginSourceLocal:
		if s.cfg.RequireSignature {
			return nil, fmt.Errorf("%w: only signed registry plugins may be installed", ErrValidation)
		}
		if location == "" {
			return nil, fmt.Errorf("%w: location is required for %s plugins", ErrValidation, source)
		}
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrValidation, source)
	}

	entry, ok := s.catalog.Get(pluginID)
	if !ok {
		return nil, fmt.Errorf("%w: plugin %s is not in the catalog", ErrNotFound, pluginID)
	}

	unlock := s.locks.Lock(pluginID)
	defer unlock()

	existing, err := s.repo.FindByID(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: plugin %s is %s", ErrAlreadyExists, pluginID, existing.State)
	}

	now := s.clock.Now().UTC()
	p := entry.NewPlugin()
	p.Source = source
	if source == entity.PluginSourceURL {
		p.Executor = entity.ExecutorHTTP
	}
	if location != "" {
		p.Location = location
	}
	p.Settings = s.settings(req.GetSettings())
	p.State = entity.PluginStateInstalled
	p.Config = map[string]interface{}{}
	p.InstalledAt = now
	p.UpdatedAt = now

	if values := req.GetConfig(); values != nil {
		validated, err := plugin.ValidateValues(p.ConfigSchema, values)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
		}
		p.Config = validated
		p.State = entity.PluginStateConfigured
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrPluginAlreadyExists) {
			return nil, fmt.Errorf("%w: plugin %s", ErrAlreadyExists, pluginID)
		}
		return nil, err
	}

	s.record(ctx, p, events.PluginInstalled, statusPtr(entity.PluginStateUninstalled), map[string]interface{}{
		"version": p.Version,
		"source":  p.Source,
	})
	return p, nil
}

func (s *PluginService) Configure(ctx context.Context, pluginID string, values map[string]interface{}) (*entity.Plugin, error) {
	unlock := s.locks.Lock(pluginID)
	defer unlock()

	p, err := s.findPlugin(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	if !p.State.CanTransitionTo(entity.PluginStateConfigured) {
		return nil, fmt.Errorf("%w: plugin %s is %s", ErrInvalidState, p.ID, p.State)
	}

	validated, err := plugin.ValidateValues(p.ConfigSchema, values)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	oldState := p.State
	p.Config = validated
	p.State = entity.PluginStateConfigured
	p.Health = entity.PluginHealthHealthy
	p.LastError = nil
	p.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, mapRepositoryError(err)
	}

	s.record(ctx, p, events.PluginConfigured, statusPtr(oldState), nil)
	return p, nil
}

func (s *PluginService) Start(ctx context.Context, pluginID string) (*entity.Plugin, error) {
	unlock := s.locks.Lock(pluginID)
	defer unlock()

	p, err := s.findPlugin(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	if p.State == entity.PluginStateRunning {
		return p, nil
	}
	if err := s.start(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PluginService) Stop(ctx context.Context, pluginID string) (*entity.Plugin, error) {
	unlock := s.locks.Lock(pluginID)
	defer unlock()

	p, err := s.findPlugin(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	if p.State != entity.PluginStateRunning {
		return nil, fmt.Errorf("%w: plugin %s is %s", ErrNotRunning, p.ID, p.State)
	}

	p.State = entity.PluginStateConfigured
	p.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, mapRepositoryError(err)
	}

	s.record(ctx, p, events.PluginStopped, statusPtr(entity.PluginStateRunning), nil)
	return p, nil
}

func (s *PluginService) Status(ctx context.Context, pluginID string) (*PluginStatus, error) {
	p, err := s.findPlugin(ctx, pluginID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	status := &PluginStatus{Plugin: p, CheckedAt: now}
	if p.State == entity.PluginStateRunning && p.LastStartedAt != nil {
		status.UptimeSeconds = int64(now.Sub(*p.LastStartedAt) / time.Second)
	}
	return status, nil
}

func (s *PluginService) Uninstall(ctx context.Context, pluginID string) (*entity.Plugin, error) {
	unlock := s.locks.Lock(pluginID)
	defer unlock()

	p, err := s.findPlugin(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, p.ID); err != nil {
		return nil, mapRepositoryError(err)
	}

	oldState := p.State
	p.State = entity.PluginStateUninstalled
	p.UpdatedAt = s.clock.Now().UTC()
	s.record(ctx, p, events.PluginUninstalled, statusPtr(oldState), nil)
	return p, nil
}

// Execute runs one declared function of a plugin. Executions beyond the
// global limit are rejected, never queued. A timeout fails the plugin and is
// returned as ErrTimeout; other execution errors fail the plugin and are
// reported in the result.
func (s *PluginService) Execute(ctx context.Context, pluginID string, req executePluginRequest) (*ExecutionResult, error) {
	return s.execute(ctx, pluginID, req, nil)
}

// execute runs the function with overrides laid over the plugin config. A
// nil result means the call was never admitted.
func (s *PluginService) execute(ctx context.Context, pluginID string, req executePluginRequest, overrides map[string]interface{}) (*ExecutionResult, error) {
	p, fn, params, err := s.prepareExecution(ctx, pluginID, req)
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		p.Config = mergeConfig(p.Config, overrides)
	}

	if !s.gate.TryAcquire(1) {
		return nil, fmt.Errorf("%w: %d executions in flight", ErrCapacity, s.cfg.MaxConcurrent)
	}

	timeout := s.executionTimeout(p, req.GetTimeoutMs())
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := &ExecutionResult{
		ExecutionID: uuid.NewString(),
		PluginID:    p.ID,
		Function:    fn.Name,
	}
	startedAt := s.clock.Now()
	output, execErr := s.invokeWithinDeadline(execCtx, &plugin.Request{
		ExecutionID: result.ExecutionID,
		Plugin:      p,
		Function:    fn.Name,
		Params:      params,
	}, p.Settings.RetryCount)
	finishedAt := s.clock.Now()

	result.DurationMs = finishedAt.Sub(startedAt).Milliseconds()
	result.Timestamp = finishedAt.UTC()
	timedOut := execErr != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	if execErr == nil {
		result.Success = true
		result.Result = output
	} else if timedOut {
		result.Error = fmt.Sprintf("execution exceeded %s", timeout)
	} else {
		result.Error = execErr.Error()
	}

	if err := s.recordExecution(context.WithoutCancel(ctx), p.ID, result); err != nil {
		s.logger.WithError(err).WithField("plugin_id", p.ID).Warn("plugin execution not recorded")
	}

	if timedOut {
		return result, fmt.Errorf("%w: %s", ErrTimeout, result.Error)
	}
	return result, nil
}

func (s *PluginService) prepareExecution(ctx context.Context, pluginID string, req executePluginRequest) (*entity.Plugin, entity.PluginFunction, map[string]interface{}, error) {
	unlock := s.locks.Lock(pluginID)
	defer unlock()

	p, err := s.findPlugin(ctx, pluginID)
	if err != nil {
		return nil, entity.PluginFunction{}, nil, err
	}

	fn, ok := p.Function(strings.TrimSpace(req.GetFunction()))
	if !ok {
		return nil, entity.PluginFunction{}, nil, fmt.Errorf("%w: plugin %s has no function %q", ErrValidation, p.ID, req.GetFunction())
	}
	params, err := plugin.ValidateValues(fn.Parameters, req.GetParameters())
	if err != nil {
		return nil, entity.PluginFunction{}, nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	switch {
	case p.State == entity.PluginStateRunning:
	case p.State == entity.PluginStateConfigured && p.Settings.AutoStart:
		if err := s.start(ctx, p); err != nil {
			return nil, entity.PluginFunction{}, nil, err
		}
	default:
		return nil, entity.PluginFunction{}, nil, fmt.Errorf("%w: plugin %s is %s", ErrNotRunning, p.ID, p.State)
	}

	return p, fn, params, nil
}

type invocation struct {
	output interface{}
	err    error
}

// invokeWithinDeadline returns when the deadline passes even if the executor
// keeps running. The gate slot taken by Execute is released only once the
// executor returns, so in-flight work never exceeds maxConcurrent.
func (s *PluginService) invokeWithinDeadline(ctx context.Context, req *plugin.Request, retries int) (interface{}, error) {
	done := make(chan invocation, 1)
	go func() {
		defer s.gate.Release(1)
		output, err := s.invoke(ctx, req, retries)
		done <- invocation{output: output, err: err}
	}()

	select {
	case out := <-done:
		return out.output, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// invoke retries transport failures up to retries times while the deadline
// allows. Errors reported by the plugin itself are not retried.
func (s *PluginService) invoke(ctx context.Context, req *plugin.Request, retries int) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		output, err := s.executor.Execute(ctx, req)
		if err == nil {
			return output, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, plugin.ErrRemote) ||
			errors.Is(err, plugin.ErrUnknownFunction) || errors.Is(err, plugin.ErrUnknownExecutor) {
			break
		}
	}
	return nil, lastErr
}

func (s *PluginService) recordExecution(ctx context.Context, pluginID string, result *ExecutionResult) error {
	unlock := s.locks.Lock(pluginID)
	defer unlock()

	p, err := s.findPlugin(ctx, pluginID)
	if err != nil {
		return err
	}

	executedAt := result.Timestamp
	p.Metrics.ExecutionCount++
	p.Metrics.TotalDurationMs += result.DurationMs
	p.Metrics.LastExecutedAt = &executedAt
	p.UpdatedAt = executedAt

	oldState := p.State
	if result.Success {
		p.Metrics.SuccessCount++
		p.Health = entity.PluginHealthHealthy
		if p.Metrics.ExecutionCount >= warningMinExecutions && p.Metrics.SuccessRate() < warningSuccessRate {
			p.Health = entity.PluginHealthWarning
		}
	} else {
		p.Metrics.FailureCount++
		p.Health = entity.PluginHealthError
		msg := truncate(result.Error, 1024)
		p.LastError = &msg
		if p.State.CanTransitionTo(entity.PluginStateFailed) {
			p.State = entity.PluginStateFailed
		}
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return mapRepositoryError(err)
	}

	payload := map[string]interface{}{
		"executionId": result.ExecutionID,
		"function":    result.Function,
		"success":     result.Success,
		"durationMs":  result.DurationMs,
	}
	if result.Success {
		s.record(ctx, p, events.FunctionExecuted, statusPtr(oldState), payload)
	} else {
		payload["error"] = result.Error
		s.record(ctx, p, events.PluginError, statusPtr(oldState), payload)
	}
	return nil
}

// start moves a configured plugin to running. Callers hold the plugin lock.
func (s *PluginService) start(ctx context.Context, p *entity.Plugin) error {
	if !p.Settings.Enabled {
		return fmt.Errorf("%w: plugin %s is disabled", ErrInvalidState, p.ID)
	}
	if !p.State.CanTransitionTo(entity.PluginStateRunning) {
		return fmt.Errorf("%w: plugin %s is %s", ErrInvalidState, p.ID, p.State)
	}

	now := s.clock.Now().UTC()
	oldState := p.State
	p.State = entity.PluginStateRunning
	p.LastStartedAt = &now
	p.UpdatedAt = now
	if err := s.repo.Update(ctx, p); err != nil {
		return mapRepositoryError(err)
	}

	s.record(ctx, p, events.PluginStarted, statusPtr(oldState), nil)
	return nil
}

func (s *PluginService) findPlugin(ctx context.Context, pluginID string) (*entity.Plugin, error) {
	pluginID = strings.TrimSpace(pluginID)
	if pluginID == "" {
		return nil, fmt.Errorf("%w: pluginId is required", ErrValidation)
	}
	p, err := s.repo.FindByID(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: plugin %s is not installed", ErrNotFound, pluginID)
	}
	return p, nil
}

func (s *PluginService) settings(req *types.PluginSettingsRequest) entity.PluginSettings {
	defaults := s.cfg.Defaults
	settings := entity.PluginSettings{
		Enabled:    defaults.Enabled,
		AutoStart:  defaults.AutoStart,
		Priority:   defaults.Priority,
		Timeout:    defaults.Timeout,
		RetryCount: defaults.RetryCount,
	}
	if req == nil {
		return settings
	}
	if req.Enabled != nil {
		settings.Enabled = *req.Enabled
	}
	if req.AutoStart != nil {
		settings.AutoStart = *req.AutoStart
	}
	if req.Priority != nil {
		settings.Priority = *req.Priority
	}
	if req.TimeoutMs != nil {
		settings.Timeout = time.Duration(*req.TimeoutMs) * time.Millisecond
	}
	if req.RetryCount != nil {
		settings.RetryCount = *req.RetryCount
	}
	return settings
}

func (s *PluginService) executionTimeout(p *entity.Plugin, requestedMs int64) time.Duration {
	if requestedMs > 0 {
		requested := time.Duration(requestedMs) * time.Millisecond
		if s.cfg.ProtocolTimeout > 0 && requested > s.cfg.ProtocolTimeout {
			return s.cfg.ProtocolTimeout
		}
		return requested
	}
	if p.Settings.Timeout > 0 {
		return p.Settings.Timeout
	}
	if s.cfg.DefaultTimeout > 0 {
		return s.cfg.DefaultTimeout
	}
	return 15 * time.Second
}

func (s *PluginService) record(ctx context.Context, p *entity.Plugin, eventType string, oldState *string, payload interface{}) {
	now := s.clock.Now().UTC()
	if s.statusChanges != nil {
		change := &entity.StatusChange{
			AggregateType: entity.AggregatePlugin,
			AggregateID:   p.ID,
			EventType:     eventType,
			OldStatus:     oldState,
			NewStatus:     string(p.State),
			CreatedAt:     now,
		}
		if err := s.statusChanges.Create(ctx, change); err != nil {
			s.logger.WithError(err).WithField("plugin_id", p.ID).Warn("status change not recorded")
		}
	}

	event, err := events.New(eventType, entity.AggregatePlugin, p.ID, payload, now)
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Warn("event not published")
	}
}
