// Package mcp serves the tool registry over the Model Context Protocol.
//
// The protocol layer is JSON-RPC 2.0 and supports initialize, ping,
// tools/list and tools/call. Server.Handle processes a single message and is
// shared by three transports: newline-delimited stdio, streamable HTTP
// (POST /mcp) and the legacy SSE transport (GET /sse with POST /messages/).
package mcp
