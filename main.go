package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/msomdec/user-service-mcp/internal/config"
	"github.com/msomdec/user-service-mcp/internal/domain"
	"github.com/msomdec/user-service-mcp/internal/fuzzy"
	"github.com/msomdec/user-service-mcp/internal/handler"
	"github.com/msomdec/user-service-mcp/internal/mcp"
	"github.com/msomdec/user-service-mcp/internal/repository/sqlite"
	"github.com/msomdec/user-service-mcp/internal/service"
	"github.com/msomdec/user-service-mcp/internal/tools"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// newLogger writes text to stdout and JSON to stderr. On the stdio
// transport stdout carries protocol messages, so only stderr is used.
func newLogger(cfg config.Config) *slog.Logger {
	level, _ := cfg.Level()
	logOpts := &slog.HandlerOptions{Level: level}
	if cfg.Transport == config.TransportStdio {
		return slog.New(slog.NewJSONHandler(os.Stderr, logOpts))
	}
	return slog.New(slog.NewMultiHandler(
		slog.NewTextHandler(os.Stdout, logOpts),
		slog.NewJSONHandler(os.Stderr, logOpts),
	))
}

func run(cfg config.Config, logger *slog.Logger) error {
	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(ctx, sqlite.Options{
		URL:                  cfg.DatabaseURL,
		MaxOpenConns:         cfg.DBMaxOpenConns,
		SlowSessionThreshold: cfg.SlowSessionThreshold,
		Logger:               logger,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	var store domain.Database = db
	defer closeStore(store)

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("database schema ready")

	scorer, err := fuzzy.ScorerByName(cfg.FuzzyMetric)
	if err != nil {
		return err
	}
	users := service.NewUserToolService(db.Sessions(),
		service.WithScorer(scorer),
		service.WithSearchLimit(cfg.SearchLimit),
	)

	registry, err := tools.NewRegistry(users)
	if err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	mcpServer := mcp.NewServer(registry, mcp.WithLogger(logger), mcp.WithVersion(version))

	if cfg.Transport == config.TransportStdio {
		return serveStdio(ctx, mcpServer, os.Stdin, os.Stdout)
	}

	var limiter *service.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = service.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer limiter.Stop()
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: handler.NewRouter(logger, handler.Deps{
			Registry: registry,
			Users:    users,
			MCP:      mcpServer,
			Limiter:  limiter,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	srv.RegisterOnShutdown(mcpServer.CloseSessions)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "transport", cfg.Transport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func closeStore(store domain.Database) {
	if err := store.Close(); err != nil {
		slog.Error("close database", "error", err)
	}
}

// serveStdio runs the stdio transport until stdin closes or ctx is done.
func serveStdio(ctx context.Context, srv *mcp.Server, in io.Reader, out io.Writer) error {
	slog.Info("server starting", "transport", config.TransportStdio)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio(ctx, in, out) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("server stopped")
	return nil
}
