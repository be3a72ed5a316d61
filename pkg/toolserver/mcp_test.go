package toolserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mcpResponse struct {
	ID     int                    `json:"id"`
	Result map[string]interface{} `json:"result"`
	Error  map[string]interface{} `json:"error"`
}

func mcpPost(t *testing.T, handler http.Handler, id int, method string, params interface{}, headers map[string]string) mcpResponse {
	t.Helper()

	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/site-content-server/mcp", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp mcpResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func newMCPHandler(t *testing.T) http.Handler {
	t.Helper()

	cfg := testConfig(allTools...)
	cfg.Transports = []TransportKind{TransportMCP}
	_, handler := newServingServer(t, cfg)

	resp := mcpPost(t, handler, 1, "initialize", map[string]interface{}{
		"protocolVersion": "2025-03-26",
		"capabilities":    map[string]interface{}{},
		"clientInfo":      map[string]interface{}{"name": "abilityd-test", "version": "1.0.0"},
	}, nil)
	require.Nil(t, resp.Error)

	return handler
}

func TestMCP_ToolsList(t *testing.T) {
	handler := newMCPHandler(t)

	resp := mcpPost(t, handler, 2, "tools/list", map[string]interface{}{}, nil)
	require.Nil(t, resp.Error)

	tools := resp.Result["tools"].([]interface{})
	require.Len(t, tools, len(allTools))

	names := make([]string, 0, len(tools))
	for _, raw := range tools {
		tool := raw.(map[string]interface{})
		names = append(names, tool["name"].(string))
		if tool["name"] == "wpv/create-post" {
			input := tool["inputSchema"].(map[string]interface{})
			assert.Equal(t, "object", input["type"])
			assert.Contains(t, input["properties"], "status")
		}
	}
	assert.ElementsMatch(t, allTools, names)
}

func TestMCP_ToolsCall(t *testing.T) {
	handler := newMCPHandler(t)

	resp := mcpPost(t, handler, 3, "tools/call", map[string]interface{}{
		"name":      "wpv/create-post",
		"arguments": map[string]interface{}{"title": "T", "content": "C", "status": "publish"},
	}, nil)
	require.Nil(t, resp.Error)

	assert.NotEqual(t, true, resp.Result["isError"])
	assert.Equal(t, map[string]interface{}{"success": true, "url": "https://example/1"}, resp.Result["structuredContent"])
}

func TestMCP_ToolsCallFailures(t *testing.T) {
	handler := newMCPHandler(t)

	resp := mcpPost(t, handler, 4, "tools/call", map[string]interface{}{
		"name":      "wpv/locked",
		"arguments": map[string]interface{}{"title": "T", "content": "C"},
	}, nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, true, resp.Result["isError"])
	structured := resp.Result["structuredContent"].(map[string]interface{})
	assert.Equal(t, "permission_denied", structured["code"])

	resp = mcpPost(t, handler, 5, "tools/call", map[string]interface{}{
		"name":      "wpv/locked",
		"arguments": map[string]interface{}{"title": "T", "content": "C"},
	}, map[string]string{HeaderCapabilities: "publish_posts"})
	require.Nil(t, resp.Error)
	assert.NotEqual(t, true, resp.Result["isError"])
}
