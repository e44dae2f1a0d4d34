package handler

import (
	"log/slog"
	"net/http"

	"github.com/msomdec/user-service-mcp/internal/mcp"
	"github.com/msomdec/user-service-mcp/internal/service"
	"github.com/msomdec/user-service-mcp/internal/tools"
)

// Deps are the components the HTTP surface is built from.
type Deps struct {
	Registry *tools.Registry
	Users    *service.UserToolService
	MCP      *mcp.Server

	// Limiter throttles the MCP endpoints per client. Nil disables it.
	Limiter *service.RateLimiter
}

// RegisterRoutes sets up all HTTP routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, deps Deps) {
	toolsHandler := NewToolsHandler(deps.Registry)
	consoleHandler := NewConsoleHandler(deps.Users)

	mux.HandleFunc("GET /healthz", HandleHealthz)
	mux.Handle("GET /", Compress(http.HandlerFunc(toolsHandler.HandleHome)))
	mux.Handle("GET /tools", Compress(http.HandlerFunc(toolsHandler.HandleCatalog)))
	mux.Handle("GET /console", Compress(http.HandlerFunc(consoleHandler.HandlePage)))
	mux.HandleFunc("GET /console/search", consoleHandler.HandleSearch)

	mux.Handle("POST /mcp", RateLimit(deps.Limiter, deps.MCP.HTTPHandler()))
	mux.Handle("GET /sse", deps.MCP.SSEHandler())
	mux.Handle("POST "+mcp.MessagesPath, RateLimit(deps.Limiter, deps.MCP.MessagesHandler()))
}

// NewRouter returns the full HTTP handler with request logging and
// security headers applied.
func NewRouter(logger *slog.Logger, deps Deps) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)
	return LogRequests(logger, SecurityHeaders(mux))
}
