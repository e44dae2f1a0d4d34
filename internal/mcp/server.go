package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/msomdec/user-service-mcp/internal/tools"
)

const maxMessageSize = 1 << 20

// Server answers MCP requests using a tool registry. It keeps no per-client
// state outside the SSE session table and is safe for concurrent use.
type Server struct {
	registry *tools.Registry
	logger   *slog.Logger
	version  string

	mu       sync.Mutex
	sessions map[string]*sseSession
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger used for tool faults and transport errors.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported in serverInfo.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		if version != "" {
			s.version = version
		}
	}
}

// NewServer creates a Server for the given registry.
func NewServer(registry *tools.Registry, opts ...ServerOption) *Server {
	s := &Server{
		registry: registry,
		logger:   slog.Default(),
		version:  "dev",
		sessions: make(map[string]*sseSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle processes one JSON-RPC message and returns the encoded response.
// The boolean is false when the message was a notification and nothing
// must be sent back.
func (s *Server) Handle(ctx context.Context, raw []byte) ([]byte, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		return encode(errorResponse(nil, codeInvalidRequest, "batch requests are not supported")), true
	}

	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return encode(errorResponse(nil, codeParseError, "parse error: "+err.Error())), true
	}

	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		if req.isNotification() {
			return nil, false
		}
		return encode(errorResponse(req.ID, codeInvalidRequest, "invalid JSON-RPC 2.0 request")), true
	}

	// Notifications such as notifications/initialized need no reply.
	if req.isNotification() {
		return nil, false
	}

	return encode(s.dispatch(ctx, &req)), true
}

func (s *Server) dispatch(ctx context.Context, req *request) response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleInitialize(req *request) response {
	if len(req.Params) > 0 {
		var params initializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "invalid initialize params: "+err.Error())
		}
		s.logger.Debug("client initialized",
			"client", params.ClientInfo.Name,
			"client_version", params.ClientInfo.Version,
			"protocol_version", params.ProtocolVersion,
		)
	}

	return resultResponse(req.ID, initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: serverCapabilities{
			Tools: &toolCapability{},
		},
		ServerInfo: serverInfo{
			Name:    ServerName,
			Version: s.version,
		},
	})
}

func (s *Server) handleToolsList(req *request) response {
	defs := s.registry.Definitions()
	descriptions := make([]toolDescription, 0, len(defs))
	for _, def := range defs {
		descriptions = append(descriptions, toolDescription{
			Name:        def.Name,
			Title:       def.Title,
			Description: def.Description,
			InputSchema: def.InputSchema,
			Annotations: &toolAnnotations{
				Title:           def.Title,
				ReadOnlyHint:    boolPtr(def.ReadOnly),
				DestructiveHint: boolPtr(def.Destructive),
				IdempotentHint:  boolPtr(def.Idempotent),
				OpenWorldHint:   boolPtr(false),
			},
		})
	}
	return resultResponse(req.ID, toolsListResult{Tools: descriptions})
}

func (s *Server) handleToolsCall(ctx context.Context, req *request) response {
	if len(req.Params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, "params required for tools/call")
	}

	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	out, err := s.registry.Call(ctx, params.Name, params.Arguments)
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return errorResponse(req.ID, codeInvalidParams, "unknown tool: "+params.Name)
	case errors.Is(err, tools.ErrInvalidArguments):
		return resultResponse(req.ID, errorResult(fmt.Sprintf("Error executing tool %s: %v", params.Name, err)))
	case err != nil:
		s.logger.ErrorContext(ctx, "tool call failed", "tool", params.Name, "error", err)
		return resultResponse(req.ID, errorResult(fmt.Sprintf("Error executing tool %s: %v", params.Name, err)))
	}

	result, err := buildToolResult(out)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode tool result", "tool", params.Name, "error", err)
		return errorResponse(req.ID, codeInternalError, "encode tool result: "+err.Error())
	}
	return resultResponse(req.ID, result)
}

// buildToolResult renders a tool's return value. Strings become a single
// text block. Anything else is JSON encoded into a text block and echoed as
// structuredContent; arrays are wrapped in {"result": ...} since
// structuredContent must be an object.
func buildToolResult(out any) (toolsCallResult, error) {
	if text, ok := out.(string); ok {
		return toolsCallResult{Content: []contentBlock{{Type: "text", Text: text}}}, nil
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return toolsCallResult{}, err
	}

	var structured any = json.RawMessage(encoded)
	if len(encoded) > 0 && encoded[0] == '[' {
		structured = map[string]json.RawMessage{"result": encoded}
	}

	return toolsCallResult{
		Content:           []contentBlock{{Type: "text", Text: string(encoded)}},
		StructuredContent: structured,
	}, nil
}

func errorResult(message string) toolsCallResult {
	return toolsCallResult{
		Content: []contentBlock{{Type: "text", Text: message}},
		IsError: true,
	}
}

// ServeStdio reads newline-delimited messages from in and writes each
// response as one line to out. It returns nil when in reaches EOF.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	w := bufio.NewWriter(out)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		resp, ok := s.Handle(ctx, line)
		if !ok {
			continue
		}
		if _, err := w.Write(append(resp, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

func resultResponse(id json.RawMessage, result any) response {
	return response{JSONRPC: jsonrpcVersion, ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return response{JSONRPC: jsonrpcVersion, ID: id, Error: &rpcError{Code: code, Message: message}}
}

func encode(resp response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		b, _ = json.Marshal(errorResponse(resp.ID, codeInternalError, "encode response: "+err.Error()))
	}
	return b
}
