package plugin

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

type BuiltinFunc func(ctx context.Context, config, params map[string]interface{}) (interface{}, error)

// Builtin runs Go functions registered under "<pluginId>/<function>".
type Builtin struct {
	mu    sync.RWMutex
	funcs map[string]BuiltinFunc
}

func NewBuiltin() *Builtin {
	return &Builtin{funcs: make(map[string]BuiltinFunc)}
}

func (b *Builtin) Register(pluginID, function string, fn BuiltinFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.funcs[pluginID+"/"+function] = fn
}

func (b *Builtin) Execute(ctx context.Context, req *Request) (interface{}, error) {
	b.mu.RLock()
	fn, ok := b.funcs[req.Plugin.ID+"/"+req.Function]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownFunction, req.Plugin.ID, req.Function)
	}

	value, err := fn(ctx, req.Plugin.Config, req.Params)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return value, err
}

// RegisterDefaults installs the functions backing the builtin catalog
// plugins.
func RegisterDefaults(b *Builtin) {
	b.Register("echo", "echo", func(_ context.Context, _, params map[string]interface{}) (interface{}, error) {
		return params, nil
	})

	b.Register("text-tools", "transform", func(_ context.Context, config, params map[string]interface{}) (interface{}, error) {
		text, _ := params["text"].(string)
		mode, _ := params["mode"].(string)
		if mode == "" {
			mode, _ = config["defaultMode"].(string)
		}
		switch mode {
		case "upper":
			return map[string]interface{}{"text": strings.ToUpper(text)}, nil
		case "lower":
			return map[string]interface{}{"text": strings.ToLower(text)}, nil
		case "title":
			words := strings.Fields(text)
			for i, w := range words {
				first, size := utf8.DecodeRuneInString(w)
				words[i] = string(unicode.ToTitle(first)) + strings.ToLower(w[size:])
			}
			return map[string]interface{}{"text": strings.Join(words, " ")}, nil
		default:
			return nil, fmt.Errorf("unsupported mode %q", mode)
		}
	})

	b.Register("data-analyzer", "summarize", func(_ context.Context, _, params map[string]interface{}) (interface{}, error) {
		raw, _ := params["values"].([]interface{})
		if len(raw) == 0 {
			return nil, fmt.Errorf("values must not be empty")
		}
		sum := 0.0
		minV, maxV := math.Inf(1), math.Inf(-1)
		for i, item := range raw {
			v, ok := asFloat(item)
			if !ok {
				return nil, fmt.Errorf("values[%d] is not a number", i)
			}
			sum += v
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}
		return map[string]interface{}{
			"count": len(raw),
			"sum":   sum,
			"min":   minV,
			"max":   maxV,
			"mean":  sum / float64(len(raw)),
		}, nil
	})
}
