package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/events"
	"github.com/vibast-solutions/ms-go-integrations/app/plugin"
)

type connectPluginRequest interface {
	GetUserId() string
	GetPluginId() string
	GetConfig() map[string]interface{}
}

type exchangeRequest interface {
	GetConnectionId() string
	GetAction() string
	GetPayload() map[string]interface{}
	GetTimeoutMs() int64
}

// ExchangeResult is the outcome of one exchange. MessageID also keys the
// exchange log entry.
type ExchangeResult struct {
	MessageID    string
	ConnectionID string
	Action       string
	Execution    *ExecutionResult
}

// functionCall adapts an exchange to the plugin execution path.
type functionCall struct {
	function   string
	parameters map[string]interface{}
	timeoutMs  int64
}

func (c functionCall) GetFunction() string                   { return c.function }
func (c functionCall) GetParameters() map[string]interface{} { return c.parameters }
func (c functionCall) GetTimeoutMs() int64                   { return c.timeoutMs }

// Connect opens a connection between a user and an installed, enabled plugin.
// The config overrides must leave the plugin config valid.
func (s *PluginService) Connect(ctx context.Context, req connectPluginRequest) (*entity.PluginConnection, error) {
	userID := strings.TrimSpace(req.GetUserId())
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}

	p, err := s.findPlugin(ctx, req.GetPluginId())
	if err != nil {
		return nil, err
	}
	if !p.Settings.Enabled {
		return nil, fmt.Errorf("%w: plugin %s is disabled", ErrInvalidState, p.ID)
	}

	overrides := mergeConfig(nil, req.GetConfig())
	if _, err := plugin.ValidateValues(p.ConfigSchema, mergeConfig(p.Config, overrides)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	now := s.clock.Now().UTC()
	conn := &entity.PluginConnection{
		ID:        "conn_" + ulid.Make().String(),
		UserID:    userID,
		PluginID:  p.ID,
		Config:    overrides,
		Status:    entity.ConnectionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.connections.Create(ctx, conn); err != nil {
		return nil, err
	}

	s.recordConnection(ctx, conn, events.ConnectionOpened, nil)
	return conn, nil
}

// Disconnect deactivates a connection. Disconnecting an inactive connection
// returns it unchanged.
func (s *PluginService) Disconnect(ctx context.Context, connectionID string) (*entity.PluginConnection, error) {
	unlock := s.connectionLocks.Lock(connectionID)
	defer unlock()

	conn, err := s.findConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.Active() {
		return conn, nil
	}

	conn.Status = entity.ConnectionStatusInactive
	conn.UpdatedAt = s.clock.Now().UTC()
	if err := s.connections.Update(ctx, conn); err != nil {
		return nil, mapRepositoryError(err)
	}

	s.recordConnection(ctx, conn, events.ConnectionClosed, statusPtr(entity.ConnectionStatusActive))
	return conn, nil
}

func (s *PluginService) ListConnections(ctx context.Context, userID string) ([]*entity.PluginConnection, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	return s.connections.ListActiveByUser(ctx, userID)
}

// Exchange runs action as a function of the connected plugin, with the
// connection config laid over the plugin config. It shares the execution
// limit and timeout of Execute. Every admitted exchange is logged and marks
// the connection as used.
func (s *PluginService) Exchange(ctx context.Context, req exchangeRequest) (*ExchangeResult, error) {
	action := strings.TrimSpace(req.GetAction())
	if action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrValidation)
	}
	conn, err := s.findConnection(ctx, req.GetConnectionId())
	if err != nil {
		return nil, err
	}
	if !conn.Active() {
		return nil, fmt.Errorf("%w: connection %s is inactive", ErrNotFound, conn.ID)
	}

	payload := req.GetPayload()
	if payload == nil {
		payload = map[string]interface{}{}
	}
	execution, execErr := s.execute(ctx, conn.PluginID, functionCall{
		function:   action,
		parameters: payload,
		timeoutMs:  req.GetTimeoutMs(),
	}, conn.Config)
	if execution == nil {
		return nil, execErr
	}

	result := &ExchangeResult{
		MessageID:    "msg_" + ulid.Make().String(),
		ConnectionID: conn.ID,
		Action:       action,
		Execution:    execution,
	}
	bg := context.WithoutCancel(ctx)
	s.logExchange(bg, conn, result, payload)
	s.touchConnection(bg, conn.ID, execution.Timestamp)
	return result, execErr
}

func (s *PluginService) logExchange(ctx context.Context, conn *entity.PluginConnection, result *ExchangeResult, payload map[string]interface{}) {
	execution := result.Execution
	entry := &entity.PluginExchange{
		ID:           result.MessageID,
		ConnectionID: conn.ID,
		PluginID:     conn.PluginID,
		Action:       result.Action,
		RequestJSON:  "{}",
		Success:      execution.Success,
		DurationMs:   execution.DurationMs,
		CreatedAt:    execution.Timestamp,
	}
	if raw, err := json.Marshal(payload); err == nil {
		entry.RequestJSON = string(raw)
	}
	if execution.Success {
		if raw, err := json.Marshal(execution.Result); err == nil {
			encoded := string(raw)
			entry.ResponseJSON = &encoded
		}
	} else {
		msg := truncate(execution.Error, 1024)
		entry.Error = &msg
	}

	if err := s.exchanges.Create(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("connection_id", conn.ID).Warn("exchange not logged")
	}
}

func (s *PluginService) touchConnection(ctx context.Context, connectionID string, usedAt time.Time) {
	unlock := s.connectionLocks.Lock(connectionID)
	defer unlock()

	conn, err := s.findConnection(ctx, connectionID)
	if err == nil {
		conn.LastUsedAt = &usedAt
		conn.UpdatedAt = usedAt
		err = s.connections.Update(ctx, conn)
	}
	if err != nil {
		s.logger.WithError(err).WithField("connection_id", connectionID).Warn("connection last use not recorded")
	}
}

func (s *PluginService) findConnection(ctx context.Context, connectionID string) (*entity.PluginConnection, error) {
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return nil, fmt.Errorf("%w: connectionId is required", ErrValidation)
	}
	conn, err := s.connections.FindByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: connection %s", ErrNotFound, connectionID)
	}
	return conn, nil
}

func (s *PluginService) recordConnection(ctx context.Context, conn *entity.PluginConnection, eventType string, oldStatus *string) {
	now := s.clock.Now().UTC()
	if s.statusChanges != nil {
		change := &entity.StatusChange{
			AggregateType: entity.AggregateConnection,
			AggregateID:   conn.ID,
			EventType:     eventType,
			OldStatus:     oldStatus,
			NewStatus:     string(conn.Status),
			CreatedAt:     now,
		}
		if err := s.statusChanges.Create(ctx, change); err != nil {
			s.logger.WithError(err).WithField("connection_id", conn.ID).Warn("status change not recorded")
		}
	}

	event, err := events.New(eventType, entity.AggregateConnection, conn.ID, map[string]interface{}{
		"userId":   conn.UserID,
		"pluginId": conn.PluginID,
	}, now)
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Warn("event not published")
	}
}

func mergeConfig(base, overrides map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
