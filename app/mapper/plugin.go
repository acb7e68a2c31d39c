package mapper

import (
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/types"
)

func PluginToResponse(item *entity.Plugin) *types.PluginResponse {
	if item == nil {
		return nil
	}

	functions := make([]types.PluginFunctionResponse, 0, len(item.Functions))
	for _, fn := range item.Functions {
		params := make(map[string]types.PluginParameterResponse, len(fn.Parameters))
		for name, spec := range fn.Parameters {
			params[name] = types.PluginParameterResponse{
				Type:        spec.Type,
				Required:    spec.Required,
				Description: spec.Description,
				Default:     spec.Default,
			}
		}
		functions = append(functions, types.PluginFunctionResponse{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  params,
		})
	}

	capabilities := make([]string, len(item.Capabilities))
	copy(capabilities, item.Capabilities)

	resp := &types.PluginResponse{
		ID:           item.ID,
		Name:         item.Name,
		Version:      item.Version,
		Description:  item.Description,
		Author:       item.Author,
		Category:     item.Category,
		Capabilities: capabilities,
		Functions:    functions,
		State:        string(item.State),
		Installed:    item.State != entity.PluginStateUninstalled,
		Source:       string(item.Source),
		Location:     item.Location,
		Health:       string(item.Health),
		LastError:    derefString(item.LastError),
		Settings: types.PluginSettingsResponse{
			Enabled:    item.Settings.Enabled,
			AutoStart:  item.Settings.AutoStart,
			Priority:   item.Settings.Priority,
			TimeoutMs:  item.Settings.Timeout.Milliseconds(),
			RetryCount: item.Settings.RetryCount,
		},
		Config: cloneConfig(item.Config),
		Stats: types.PluginStatsResponse{
			Executions:      item.Metrics.ExecutionCount,
			Successes:       item.Metrics.SuccessCount,
			Failures:        item.Metrics.FailureCount,
			SuccessRate:     item.Metrics.SuccessRate(),
			AvgDurationMs:   item.Metrics.AverageDurationMs(),
			LastExecutionAt: utcPtr(item.Metrics.LastExecutedAt),
		},
		StartedAt: utcPtr(item.LastStartedAt),
	}
	if resp.Installed && !item.InstalledAt.IsZero() {
		installedAt := item.InstalledAt.UTC()
		resp.InstalledAt = &installedAt
	}
	return resp
}

func PluginsToResponse(items []*entity.Plugin) []*types.PluginResponse {
	result := make([]*types.PluginResponse, 0, len(items))
	for _, item := range items {
		result = append(result, PluginToResponse(item))
	}
	return result
}

func cloneConfig(src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func ConnectionToResponse(item *entity.PluginConnection) *types.ConnectionResponse {
	if item == nil {
		return nil
	}
	return &types.ConnectionResponse{
		ID:         item.ID,
		UserID:     item.UserID,
		PluginID:   item.PluginID,
		Status:     string(item.Status),
		Config:     cloneConfig(item.Config),
		CreatedAt:  item.CreatedAt.UTC(),
		UpdatedAt:  item.UpdatedAt.UTC(),
		LastUsedAt: utcPtr(item.LastUsedAt),
	}
}

func ConnectionsToResponse(items []*entity.PluginConnection) []*types.ConnectionResponse {
	result := make([]*types.ConnectionResponse, 0, len(items))
	for _, item := range items {
		result = append(result, ConnectionToResponse(item))
	}
	return result
}
