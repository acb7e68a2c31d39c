package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
)

// HTTPExecutor calls MCP servers with JSON-RPC 2.0 "tools/call" requests
// posted to the plugin location.
type HTTPExecutor struct {
	client          *http.Client
	protocolVersion string
	nextID          atomic.Int64
}

func NewHTTPExecutor(client *http.Client, protocolVersion string) *HTTPExecutor {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPExecutor{client: client, protocolVersion: protocolVersion}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type toolCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

func (e *HTTPExecutor) Execute(ctx context.Context, req *Request) (interface{}, error) {
	location := strings.TrimSpace(req.Plugin.Location)
	if location == "" {
		return nil, fmt.Errorf("plugin %s has no location", req.Plugin.ID)
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      e.nextID.Add(1),
		Method:  "tools/call",
		Params: map[string]interface{}{
			"name":      req.Function,
			"arguments": req.Params,
			"_meta": map[string]interface{}{
				"executionId": req.ExecutionID,
				"config":      req.Plugin.Config,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, location, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if e.protocolVersion != "" {
		httpReq.Header.Set("MCP-Protocol-Version", e.protocolVersion)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: http status %d", ErrRemote, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: rpc error %d: %s", ErrRemote, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	var result toolCallResult
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return nil, fmt.Errorf("unmarshal tool result: %w", err)
	}
	if result.IsError {
		message := "tool error"
		if len(result.Content) > 0 {
			message = result.Content[0].Text
		}
		return nil, fmt.Errorf("%w: %s", ErrRemote, message)
	}

	return decodeToolOutput(result), nil
}

func decodeToolOutput(result toolCallResult) interface{} {
	if len(result.StructuredContent) > 0 {
		var value interface{}
		if json.Unmarshal(result.StructuredContent, &value) == nil {
			return value
		}
	}

	texts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		if c.Type == "" || c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}
	if len(texts) == 1 {
		var value interface{}
		if json.Unmarshal([]byte(texts[0]), &value) == nil {
			return value
		}
		return texts[0]
	}
	return texts
}
