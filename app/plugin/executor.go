package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
)

var (
	ErrUnknownExecutor = errors.New("unknown plugin executor")
	ErrUnknownFunction = errors.New("plugin function is not registered")
	ErrRemote          = errors.New("plugin returned an error")
)

type Request struct {
	ExecutionID string
	Plugin      *entity.Plugin
	Function    string
	Params      map[string]interface{}
}

type Executor interface {
	Execute(ctx context.Context, req *Request) (interface{}, error)
}

// Executors routes a request to the executor named by the plugin.
type Executors map[string]Executor

func (e Executors) Execute(ctx context.Context, req *Request) (interface{}, error) {
	executor, ok := e[req.Plugin.Executor]
	if !ok || executor == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExecutor, req.Plugin.Executor)
	}
	return executor.Execute(ctx, req)
}
