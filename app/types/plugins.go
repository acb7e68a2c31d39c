package types

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
)

type PluginSettingsRequest struct {
	Enabled    *bool  `json:"enabled"`
	AutoStart  *bool  `json:"autoStart"`
	Priority   *int   `json:"priority" validate:"omitempty,min=1,max=10"`
	TimeoutMs  *int64 `json:"timeoutMs" validate:"omitempty,min=100,max=600000"`
	RetryCount *int   `json:"retryCount" validate:"omitempty,min=0,max=10"`
}

type InstallPluginRequest struct {
	PluginId string                 `json:"pluginId" validate:"required,max=128"`
	Source   string                 `json:"source" validate:"omitempty,oneof=registry url local"`
	Location string                 `json:"location" validate:"max=2048"`
	Config   map[string]interface{} `json:"config"`
	Settings *PluginSettingsRequest `json:"settings"`
}

func (r *InstallPluginRequest) GetPluginId() string                 { return r.PluginId }
func (r *InstallPluginRequest) GetSource() string                   { return r.Source }
func (r *InstallPluginRequest) GetLocation() string                 { return r.Location }
func (r *InstallPluginRequest) GetConfig() map[string]interface{}   { return r.Config }
func (r *InstallPluginRequest) GetSettings() *PluginSettingsRequest { return r.Settings }

func NewInstallPluginRequestFromContext(ctx echo.Context) (*InstallPluginRequest, error) {
	var body InstallPluginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.PluginId = strings.TrimSpace(body.PluginId)
	body.Source = strings.ToLower(strings.TrimSpace(body.Source))
	body.Location = strings.TrimSpace(body.Location)
	if body.Source == "" {
		body.Source = "registry"
	}
	return &body, nil
}

func (r *InstallPluginRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.Source != "registry" && r.Location == "" {
		return errors.New("location is required for " + r.Source + " sources")
	}
	return nil
}

type PluginIDRequest struct {
	PluginId string `validate:"required,max=128"`
}

func NewPluginIDRequestFromContext(ctx echo.Context) (*PluginIDRequest, error) {
	return &PluginIDRequest{PluginId: strings.TrimSpace(ctx.Param("pluginId"))}, nil
}

func (r *PluginIDRequest) Validate() error {
	return validateStruct(r)
}

type ConfigurePluginRequest struct {
	PluginId string                 `json:"-" validate:"required,max=128"`
	Config   map[string]interface{} `json:"config" validate:"required"`
}

func NewConfigurePluginRequestFromContext(ctx echo.Context) (*ConfigurePluginRequest, error) {
	var body ConfigurePluginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.PluginId = strings.TrimSpace(ctx.Param("pluginId"))
	return &body, nil
}

func (r *ConfigurePluginRequest) Validate() error {
	return validateStruct(r)
}

type ExecutePluginRequest struct {
	PluginId   string                 `json:"-" validate:"required,max=128"`
	Function   string                 `json:"function" validate:"required,max=128"`
	Parameters map[string]interface{} `json:"parameters"`
	TimeoutMs  int64                  `json:"timeoutMs" validate:"gte=0"`
}

func (r *ExecutePluginRequest) GetFunction() string                   { return r.Function }
func (r *ExecutePluginRequest) GetParameters() map[string]interface{} { return r.Parameters }
func (r *ExecutePluginRequest) GetTimeoutMs() int64                   { return r.TimeoutMs }

func NewExecutePluginRequestFromContext(ctx echo.Context) (*ExecutePluginRequest, error) {
	var body ExecutePluginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.PluginId = strings.TrimSpace(ctx.Param("pluginId"))
	body.Function = strings.TrimSpace(body.Function)
	if body.Parameters == nil {
		body.Parameters = map[string]interface{}{}
	}
	return &body, nil
}

func (r *ExecutePluginRequest) Validate() error {
	return validateStruct(r)
}

type ConnectPluginRequest struct {
	UserId   string                 `json:"userId" validate:"required,max=255"`
	PluginId string                 `json:"pluginId" validate:"required,max=128"`
	Config   map[string]interface{} `json:"config"`
}

func (r *ConnectPluginRequest) GetUserId() string                 { return r.UserId }
func (r *ConnectPluginRequest) GetPluginId() string               { return r.PluginId }
func (r *ConnectPluginRequest) GetConfig() map[string]interface{} { return r.Config }

func NewConnectPluginRequestFromContext(ctx echo.Context) (*ConnectPluginRequest, error) {
	var body ConnectPluginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.UserId = strings.TrimSpace(body.UserId)
	if body.UserId == "" {
		body.UserId = strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID))
	}
	body.PluginId = strings.TrimSpace(body.PluginId)
	return &body, nil
}

func (r *ConnectPluginRequest) Validate() error {
	return validateStruct(r)
}

type ConnectionIDRequest struct {
	ConnectionId string `validate:"required,max=64"`
}

func NewConnectionIDRequestFromContext(ctx echo.Context) (*ConnectionIDRequest, error) {
	return &ConnectionIDRequest{ConnectionId: strings.TrimSpace(ctx.Param("connectionId"))}, nil
}

func (r *ConnectionIDRequest) Validate() error {
	return validateStruct(r)
}

type ListConnectionsRequest struct {
	UserId string `validate:"required,max=255"`
}

func NewListConnectionsRequestFromContext(ctx echo.Context) (*ListConnectionsRequest, error) {
	req := &ListConnectionsRequest{UserId: strings.TrimSpace(ctx.QueryParam("userId"))}
	if req.UserId == "" {
		req.UserId = strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID))
	}
	return req, nil
}

func (r *ListConnectionsRequest) Validate() error {
	return validateStruct(r)
}

type ExchangeRequest struct {
	ConnectionId string                 `json:"connectionId" validate:"required,max=64"`
	Action       string                 `json:"action" validate:"required,max=128"`
	Payload      map[string]interface{} `json:"payload"`
	TimeoutMs    int64                  `json:"timeoutMs" validate:"gte=0"`
}

func (r *ExchangeRequest) GetConnectionId() string            { return r.ConnectionId }
func (r *ExchangeRequest) GetAction() string                  { return r.Action }
func (r *ExchangeRequest) GetPayload() map[string]interface{} { return r.Payload }
func (r *ExchangeRequest) GetTimeoutMs() int64                { return r.TimeoutMs }

func NewExchangeRequestFromContext(ctx echo.Context) (*ExchangeRequest, error) {
	var body ExchangeRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.ConnectionId = strings.TrimSpace(body.ConnectionId)
	body.Action = strings.TrimSpace(body.Action)
	if body.Payload == nil {
		body.Payload = map[string]interface{}{}
	}
	return &body, nil
}

func (r *ExchangeRequest) Validate() error {
	return validateStruct(r)
}
