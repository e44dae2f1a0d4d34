package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/msomdec/user-service-mcp/internal/service"
	"github.com/msomdec/user-service-mcp/internal/view"
)

// ConsoleHandler serves the operator search console.
type ConsoleHandler struct {
	users *service.UserToolService
}

// NewConsoleHandler creates a new ConsoleHandler.
func NewConsoleHandler(users *service.UserToolService) *ConsoleHandler {
	return &ConsoleHandler{users: users}
}

type consoleSignals struct {
	Query string `json:"query"`
}

// HandlePage renders the console page.
func (h *ConsoleHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := view.ConsolePage().Render(r.Context(), w); err != nil {
		slog.Error("render console page", "error", err)
	}
}

// HandleSearch ranks users by the query signal and patches the results
// table over SSE.
func (h *ConsoleHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var signals consoleSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		writeError(w, http.StatusBadRequest, "invalid signals")
		return
	}

	query := strings.TrimSpace(signals.Query)
	var users []service.ScoredUser
	if query != "" {
		var err error
		users, err = h.users.ListUsersByName(r.Context(), service.ListUsersByNameRequest{Name: query})
		if err != nil {
			slog.Error("console search", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}

	sse := datastar.NewSSE(w, r)
	if err := sse.PatchElementTempl(
		view.SearchResults(query, users),
		datastar.WithSelectorID(view.SearchResultsID),
	); err != nil {
		slog.Warn("patch search results", "error", err)
	}
}
