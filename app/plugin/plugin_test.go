package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
)

const testCatalog = `
plugins:
  - id: weather
    name: Weather
    version: 1.0.0
    category: integrations
    location: http://localhost/mcp
    configSchema:
      apiKey:
        type: string
        required: true
        rules: min=8
      units:
        type: string
        rules: oneof=metric imperial
        default: metric
    functions:
      - name: forecast
        parameters:
          days:
            type: integer
            rules: min=1,max=14
  - id: echo
    name: Echo
    category: utilities
    executor: builtin
    functions:
      - name: echo
`

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(testCatalog))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, ok := catalog.Get("weather")
	if !ok {
		t.Fatal("expected weather entry")
	}
	if entry.Executor != entity.ExecutorHTTP {
		t.Fatalf("expected default http executor, got %s", entry.Executor)
	}
	if entry.ConfigSchema["apiKey"].Rules != "min=8" {
		t.Fatalf("unexpected schema: %+v", entry.ConfigSchema)
	}
	if got := catalog.Categories(); len(got) != 2 || got[0] != "integrations" || got[1] != "utilities" {
		t.Fatalf("unexpected categories: %v", got)
	}

	p := entry.NewPlugin()
	if p.State != entity.PluginStateUninstalled || p.Source != entity.PluginSourceRegistry {
		t.Fatalf("unexpected plugin: %+v", p)
	}
}

func TestParseCatalogRejectsDuplicates(t *testing.T) {
	_, err := ParseCatalog([]byte("plugins:\n  - id: a\n  - id: a\n"))
	if err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestParseCatalogRejectsUnknownExecutor(t *testing.T) {
	_, err := ParseCatalog([]byte("plugins:\n  - id: a\n    executor: wasm\n"))
	if err == nil {
		t.Fatal("expected executor error")
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	catalog, err := LoadCatalog(t.TempDir() + "/missing.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(catalog.Entries()) != 0 {
		t.Fatal("expected empty catalog")
	}
}

func TestValidateValues(t *testing.T) {
	schema := map[string]entity.FieldSpec{
		"apiKey": {Type: "string", Required: true, Rules: "min=8"},
		"units":  {Type: "string", Rules: "oneof=metric imperial", Default: "metric"},
		"days":   {Type: "integer", Rules: "min=1,max=14"},
	}

	out, err := ValidateValues(schema, map[string]interface{}{"apiKey": "abcdefgh", "days": float64(3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["units"] != "metric" {
		t.Fatalf("expected default units, got %v", out["units"])
	}

	cases := []map[string]interface{}{
		{},
		{"apiKey": "short"},
		{"apiKey": "abcdefgh", "units": "kelvin"},
		{"apiKey": "abcdefgh", "days": 2.5},
		{"apiKey": "abcdefgh", "days": float64(30)},
		{"apiKey": 12345678},
		{"apiKey": "abcdefgh", "extra": true},
	}
	for i, values := range cases {
		if _, err := ValidateValues(schema, values); !errors.Is(err, ErrInvalidValues) {
			t.Fatalf("case %d: expected ErrInvalidValues, got %v", i, err)
		}
	}
}

func TestBuiltinExecute(t *testing.T) {
	builtin := NewBuiltin()
	RegisterDefaults(builtin)
	executors := Executors{entity.ExecutorBuiltin: builtin}

	out, err := executors.Execute(context.Background(), &Request{
		Plugin:   &entity.Plugin{ID: "data-analyzer", Executor: entity.ExecutorBuiltin},
		Function: "summarize",
		Params:   map[string]interface{}{"values": []interface{}{float64(1), float64(2), float64(6)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	summary := out.(map[string]interface{})
	if summary["mean"] != float64(3) || summary["max"] != float64(6) {
		t.Fatalf("unexpected summary: %v", summary)
	}

	out, err = executors.Execute(context.Background(), &Request{
		Plugin:   &entity.Plugin{ID: "text-tools", Executor: entity.ExecutorBuiltin, Config: map[string]interface{}{"defaultMode": "title"}},
		Function: "transform",
		Params:   map[string]interface{}{"text": "hello wide WORLD"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(map[string]interface{})["text"] != "Hello Wide World" {
		t.Fatalf("unexpected transform: %v", out)
	}

	out, err = executors.Execute(context.Background(), &Request{
		Plugin:   &entity.Plugin{ID: "text-tools", Executor: entity.ExecutorBuiltin},
		Function: "transform",
		Params:   map[string]interface{}{"text": "élan ÜBER ǆungla", "mode": "title"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(map[string]interface{})["text"] != "Élan Über ǅungla" {
		t.Fatalf("unexpected multibyte transform: %v", out)
	}

	_, err = executors.Execute(context.Background(), &Request{
		Plugin:   &entity.Plugin{ID: "echo", Executor: entity.ExecutorBuiltin},
		Function: "missing",
	})
	if !errors.Is(err, ErrUnknownFunction) {
		t.Fatalf("expected ErrUnknownFunction, got %v", err)
	}

	_, err = executors.Execute(context.Background(), &Request{Plugin: &entity.Plugin{ID: "x", Executor: "wasm"}})
	if !errors.Is(err, ErrUnknownExecutor) {
		t.Fatalf("expected ErrUnknownExecutor, got %v", err)
	}
}

func TestBuiltinExecuteDiscardsLateResult(t *testing.T) {
	builtin := NewBuiltin()
	builtin.Register("slow", "wait", func(ctx context.Context, _, _ map[string]interface{}) (interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return "late", nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := builtin.Execute(ctx, &Request{Plugin: &entity.Plugin{ID: "slow"}, Function: "wait"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestHTTPExecutorToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("MCP-Protocol-Version") != "1.0.0" {
			t.Errorf("missing protocol header")
		}
		var req struct {
			JSONRPC string `json:"jsonrpc"`
			ID      int64  `json:"id"`
			Method  string `json:"method"`
			Params  struct {
				Name      string                 `json:"name"`
				Arguments map[string]interface{} `json:"arguments"`
			} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Method != "tools/call" || req.Params.Name != "forecast" || req.Params.Arguments["city"] != "Lisbon" {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"content": []map[string]string{{"type": "text", "text": `{"temp":21}`}},
			},
		})
	}))
	defer srv.Close()

	executor := NewHTTPExecutor(srv.Client(), "1.0.0")
	out, err := executor.Execute(context.Background(), &Request{
		Plugin:   &entity.Plugin{ID: "weather", Location: srv.URL},
		Function: "forecast",
		Params:   map[string]interface{}{"city": "Lisbon"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(map[string]interface{})["temp"] != float64(21) {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestHTTPExecutorToolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"city unknown"}],"isError":true}}`))
	}))
	defer srv.Close()

	executor := NewHTTPExecutor(srv.Client(), "")
	_, err := executor.Execute(context.Background(), &Request{
		Plugin:   &entity.Plugin{ID: "weather", Location: srv.URL},
		Function: "forecast",
	})
	if !errors.Is(err, ErrRemote) || !strings.Contains(err.Error(), "city unknown") {
		t.Fatalf("expected remote tool error, got %v", err)
	}
}

func TestHTTPExecutorRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
	}))
	defer srv.Close()

	executor := NewHTTPExecutor(srv.Client(), "")
	_, err := executor.Execute(context.Background(), &Request{
		Plugin:   &entity.Plugin{ID: "weather", Location: srv.URL},
		Function: "forecast",
	})
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}
