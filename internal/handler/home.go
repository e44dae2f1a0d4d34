package handler

import (
	"log/slog"
	"net/http"

	"github.com/msomdec/user-service-mcp/internal/mcp"
	"github.com/msomdec/user-service-mcp/internal/tools"
	"github.com/msomdec/user-service-mcp/internal/view"
)

// ToolsHandler serves the human and JSON views of the tool registry.
type ToolsHandler struct {
	registry *tools.Registry
}

// NewToolsHandler creates a new ToolsHandler.
func NewToolsHandler(registry *tools.Registry) *ToolsHandler {
	return &ToolsHandler{registry: registry}
}

// HandleHome renders the home page. Any path other than "/" is a 404.
func (h *ToolsHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	defs := h.registry.Definitions()
	summaries := make([]view.ToolSummary, 0, len(defs))
	for _, def := range defs {
		summaries = append(summaries, view.ToolSummary{
			Name:        def.Name,
			Title:       def.Title,
			Description: def.Description,
			ReadOnly:    def.ReadOnly,
			Destructive: def.Destructive,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := view.HomePage(mcp.ServerName, summaries).Render(r.Context(), w); err != nil {
		slog.Error("render home page", "error", err)
	}
}

// HandleCatalog returns the tool definitions as JSON.
func (h *ToolsHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"server": mcp.ServerName,
		"tools":  h.registry.Definitions(),
	})
}
