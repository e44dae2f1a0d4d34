package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/msomdec/user-service-mcp/internal/handler"
	"github.com/msomdec/user-service-mcp/internal/mcp"
	"github.com/msomdec/user-service-mcp/internal/repository/sqlite"
	"github.com/msomdec/user-service-mcp/internal/service"
	"github.com/msomdec/user-service-mcp/internal/tools"
)

func newTestDeps(t *testing.T) handler.Deps {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.Open(ctx, sqlite.Options{URL: dbPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := service.NewUserToolService(db.Sessions())
	registry, err := tools.NewRegistry(users)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return handler.Deps{
		Registry: registry,
		Users:    users,
		MCP:      mcp.NewServer(registry),
	}
}

func newTestMux(t *testing.T, deps handler.Deps) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, deps)
	return mux
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
