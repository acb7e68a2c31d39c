package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-integrations/app/mapper"
	"github.com/vibast-solutions/ms-go-integrations/app/service"
	"github.com/vibast-solutions/ms-go-integrations/app/types"
	"github.com/zoobzio/clockz"
)

type PluginController struct {
	pluginService *service.PluginService
	responder
}

func NewPluginController(pluginService *service.PluginService, clock clockz.Clock) *PluginController {
	return &PluginController{
		pluginService: pluginService,
		responder:     newResponder("plugin-controller", clock),
	}
}

func (c *PluginController) ListPlugins(ctx echo.Context) error {
	registry, err := c.pluginService.ListPlugins(ctx.Request().Context())
	if err != nil {
		return c.writeServiceError(ctx, err, "List plugins")
	}

	return c.writeSuccess(ctx, http.StatusOK, &types.PluginRegistryResponse{
		Plugins:    mapper.PluginsToResponse(registry.Plugins),
		Total:      registry.Total,
		Categories: registry.Categories,
		Featured:   registry.Featured,
	}, "Plugins retrieved")
}

func (c *PluginController) Install(ctx echo.Context) error {
	req, err := types.NewInstallPluginRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	item, err := c.pluginService.Install(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Install plugin")
	}

	return c.writeSuccess(ctx, http.StatusCreated, mapper.PluginToResponse(item), "Plugin installed")
}

func (c *PluginController) Configure(ctx echo.Context) error {
	req, err := types.NewConfigurePluginRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	item, err := c.pluginService.Configure(ctx.Request().Context(), req.PluginId, req.Config)
	if err != nil {
		return c.writeServiceError(ctx, err, "Configure plugin")
	}

	return c.writeSuccess(ctx, http.StatusOK, mapper.PluginToResponse(item), "Plugin configured")
}

func (c *PluginController) Start(ctx echo.Context) error {
	req, ok := c.pluginID(ctx)
	if !ok {
		return nil
	}

	item, err := c.pluginService.Start(ctx.Request().Context(), req.PluginId)
	if err != nil {
		return c.writeServiceError(ctx, err, "Start plugin")
	}

	return c.writeSuccess(ctx, http.StatusOK, mapper.PluginToResponse(item), "Plugin started")
}

func (c *PluginController) Stop(ctx echo.Context) error {
	req, ok := c.pluginID(ctx)
	if !ok {
		return nil
	}

	item, err := c.pluginService.Stop(ctx.Request().Context(), req.PluginId)
	if err != nil {
		return c.writeServiceError(ctx, err, "Stop plugin")
	}

	return c.writeSuccess(ctx, http.StatusOK, mapper.PluginToResponse(item), "Plugin stopped")
}

func (c *PluginController) Status(ctx echo.Context) error {
	req, ok := c.pluginID(ctx)
	if !ok {
		return nil
	}

	status, err := c.pluginService.Status(ctx.Request().Context(), req.PluginId)
	if err != nil {
		return c.writeServiceError(ctx, err, "Plugin status")
	}

	return c.writeSuccess(ctx, http.StatusOK, &types.PluginStatusResponse{
		Plugin:        mapper.PluginToResponse(status.Plugin),
		UptimeSeconds: status.UptimeSeconds,
		CheckedAt:     status.CheckedAt.UTC(),
	}, "Plugin status retrieved")
}

func (c *PluginController) Uninstall(ctx echo.Context) error {
	req, ok := c.pluginID(ctx)
	if !ok {
		return nil
	}

	item, err := c.pluginService.Uninstall(ctx.Request().Context(), req.PluginId)
	if err != nil {
		return c.writeServiceError(ctx, err, "Uninstall plugin")
	}

	return c.writeSuccess(ctx, http.StatusOK, mapper.PluginToResponse(item), "Plugin uninstalled")
}

// Execute reports a failed function call as a successful request whose
// result has success=false; only admission and lookup problems are errors.
func (c *PluginController) Execute(ctx echo.Context) error {
	req, err := types.NewExecutePluginRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	result, err := c.pluginService.Execute(ctx.Request().Context(), req.PluginId, req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Execute plugin function")
	}

	message := "Function executed"
	if !result.Success {
		message = "Function execution failed"
	}
	return c.writeSuccess(ctx, http.StatusOK, executionResponse(result), message)
}

func (c *PluginController) Connect(ctx echo.Context) error {
	req, err := types.NewConnectPluginRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	conn, err := c.pluginService.Connect(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Connect plugin")
	}

	return c.writeSuccess(ctx, http.StatusCreated, mapper.ConnectionToResponse(conn), "Plugin connected")
}

func (c *PluginController) Disconnect(ctx echo.Context) error {
	req, _ := types.NewConnectionIDRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	conn, err := c.pluginService.Disconnect(ctx.Request().Context(), req.ConnectionId)
	if err != nil {
		return c.writeServiceError(ctx, err, "Disconnect plugin")
	}

	return c.writeSuccess(ctx, http.StatusOK, mapper.ConnectionToResponse(conn), "Plugin disconnected")
}

func (c *PluginController) ListConnections(ctx echo.Context) error {
	req, _ := types.NewListConnectionsRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	items, err := c.pluginService.ListConnections(ctx.Request().Context(), req.UserId)
	if err != nil {
		return c.writeServiceError(ctx, err, "List connections")
	}

	return c.writeSuccess(ctx, http.StatusOK, &types.ConnectionListResponse{
		Connections: mapper.ConnectionsToResponse(items),
		Total:       len(items),
	}, "Connections retrieved")
}

// Exchange answers like Execute: a failed action is a successful request
// whose execution has success=false.
func (c *PluginController) Exchange(ctx echo.Context) error {
	req, err := types.NewExchangeRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	result, err := c.pluginService.Exchange(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Exchange data")
	}

	message := "Exchange completed"
	if !result.Execution.Success {
		message = "Exchange failed"
	}
	return c.writeSuccess(ctx, http.StatusOK, &types.ExchangeResponse{
		MessageID:    result.MessageID,
		ConnectionID: result.ConnectionID,
		Action:       result.Action,
		Execution:    executionResponse(result.Execution),
	}, message)
}

func executionResponse(result *service.ExecutionResult) *types.ExecutionResponse {
	return &types.ExecutionResponse{
		ExecutionID: result.ExecutionID,
		PluginID:    result.PluginID,
		Function:    result.Function,
		Success:     result.Success,
		Result:      result.Result,
		Error:       result.Error,
		DurationMs:  result.DurationMs,
		Timestamp:   result.Timestamp.UTC(),
	}
}

func (c *PluginController) pluginID(ctx echo.Context) (*types.PluginIDRequest, bool) {
	req, _ := types.NewPluginIDRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		_ = c.writeValidationError(ctx, err.Error())
		return nil, false
	}
	return req, true
}
