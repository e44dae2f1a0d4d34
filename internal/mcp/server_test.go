package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msomdec/user-service-mcp/internal/mcp"
	"github.com/msomdec/user-service-mcp/internal/repository/sqlite"
	"github.com/msomdec/user-service-mcp/internal/service"
	"github.com/msomdec/user-service-mcp/internal/tools"
)

// testResponse keeps Result raw so each test can decode the shape it expects.
type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type callResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent"`
	IsError           bool            `json:"isError"`
}

func newTestServer(t *testing.T) *mcp.Server {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, sqlite.Options{URL: filepath.Join(t.TempDir(), "users.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.EnsureSchema(ctx))

	reg, err := tools.NewRegistry(service.NewUserToolService(db.Sessions()))
	require.NoError(t, err)
	return mcp.NewServer(reg, mcp.WithVersion("test"))
}

func handle(t *testing.T, srv *mcp.Server, msg string) testResponse {
	t.Helper()
	out, ok := srv.Handle(context.Background(), []byte(msg))
	require.True(t, ok, "expected a response for %s", msg)
	var resp testResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func callTool(t *testing.T, srv *mcp.Server, name, args string) callResult {
	t.Helper()
	resp := handle(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"`+name+`","arguments":`+args+`}}`)
	require.Nil(t, resp.Error)
	var result callResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.NotEmpty(t, result.Content)
	return result
}

func TestHandle_Initialize(t *testing.T) {
	srv := newTestServer(t)

	resp := handle(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test-client"}}}`)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, "1", string(resp.ID))

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		Capabilities    struct {
			Tools *json.RawMessage `json:"tools"`
		} `json:"capabilities"`
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, mcp.ProtocolVersion, result.ProtocolVersion)
	assert.NotNil(t, result.Capabilities.Tools)
	assert.Equal(t, "UserManagement", result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
}

func TestHandle_Ping(t *testing.T) {
	srv := newTestServer(t)

	resp := handle(t, srv, `{"jsonrpc":"2.0","id":"abc","method":"ping"}`)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `"abc"`, string(resp.ID))
	assert.JSONEq(t, `{}`, string(resp.Result))
}

func TestHandle_Notification(t *testing.T) {
	srv := newTestServer(t)

	out, ok := srv.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.False(t, ok)
	assert.Nil(t, out)
}

func TestHandle_Errors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		msg  string
		code int
	}{
		{"parse error", `{not json`, -32700},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, -32600},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, -32600},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, -32601},
		{"missing call params", `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`, -32602},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"drop_database"}}`, -32602},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := handle(t, srv, tt.msg)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Nil(t, resp.Result)
		})
	}
}

func TestHandle_ToolsList(t *testing.T) {
	srv := newTestServer(t)

	resp := handle(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Nil(t, resp.Error)

	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
			Annotations struct {
				ReadOnlyHint    *bool `json:"readOnlyHint"`
				DestructiveHint *bool `json:"destructiveHint"`
			} `json:"annotations"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 6)

	byName := map[string]int{}
	for i, tool := range result.Tools {
		byName[tool.Name] = i
		assert.NotEmpty(t, tool.Description)
		assert.NotEmpty(t, tool.InputSchema)
	}

	del := result.Tools[byName["delete_user"]]
	require.NotNil(t, del.Annotations.DestructiveHint)
	assert.True(t, *del.Annotations.DestructiveHint)

	get := result.Tools[byName["get_user_by_email"]]
	require.NotNil(t, get.Annotations.ReadOnlyHint)
	assert.True(t, *get.Annotations.ReadOnlyHint)
}

func TestHandle_ToolsCall_TextResult(t *testing.T) {
	srv := newTestServer(t)

	result := callTool(t, srv, "create_user", `{"name":"Alice","email":"a@x.io","age":30}`)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.Equal(t, "User Alice created successfully with ID 1", result.Content[0].Text)
	assert.Nil(t, result.StructuredContent)
}

func TestHandle_ToolsCall_ObjectResult(t *testing.T) {
	srv := newTestServer(t)
	callTool(t, srv, "create_user", `{"name":"Alice","email":"a@x.io","age":30}`)

	result := callTool(t, srv, "get_user_by_email", `{"email":"a@x.io"}`)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"name":"Alice","age":30}`, result.Content[0].Text)
	assert.JSONEq(t, `{"name":"Alice","age":30}`, string(result.StructuredContent))

	missing := callTool(t, srv, "get_user_by_email", `{"email":"b@x.io"}`)
	assert.False(t, missing.IsError)
	assert.JSONEq(t, `{"error":"User not found"}`, missing.Content[0].Text)
}

func TestHandle_ToolsCall_ArrayResult(t *testing.T) {
	srv := newTestServer(t)

	empty := callTool(t, srv, "list_users_by_name", `{"name":"John"}`)
	assert.False(t, empty.IsError)
	assert.Equal(t, "[]", empty.Content[0].Text)
	assert.JSONEq(t, `{"result":[]}`, string(empty.StructuredContent))

	callTool(t, srv, "create_user", `{"name":"John","email":"j@x.io","age":41}`)
	result := callTool(t, srv, "list_users_by_age", `{"age":41}`)
	assert.JSONEq(t, `[{"id":1,"name":"John","email":"j@x.io","age":41}]`, result.Content[0].Text)
	assert.JSONEq(t, `{"result":[{"id":1,"name":"John","email":"j@x.io","age":41}]}`, string(result.StructuredContent))
}

func TestHandle_ToolsCall_InvalidArguments(t *testing.T) {
	srv := newTestServer(t)

	result := callTool(t, srv, "delete_user", `{"user_id":"one"}`)
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(result.Content[0].Text, "Error executing tool delete_user"), result.Content[0].Text)
}

func TestServeStdio(t *testing.T) {
	srv := newTestServer(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"cli"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"create_user","arguments":{"name":"Bob","email":"b@x.io","age":40}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, srv.ServeStdio(context.Background(), strings.NewReader(input), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var ids []string
	for _, line := range lines {
		var resp testResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		assert.Nil(t, resp.Error)
		ids = append(ids, string(resp.ID))
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Contains(t, lines[1], "User Bob created successfully with ID 1")
}

func TestServeStdio_CanceledContext(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := srv.ServeStdio(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}
