package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/msomdec/user-service-mcp/internal/domain"
)

const tracerName = "github.com/msomdec/user-service-mcp/internal/repository/sqlite"

// SessionManager implements domain.SessionManager with one SQLite
// transaction per session.
type SessionManager struct {
	db            *sqlx.DB
	logger        *slog.Logger
	tracer        trace.Tracer
	slowThreshold time.Duration
}

func newSessionManager(db *sqlx.DB, logger *slog.Logger, slowThreshold time.Duration) *SessionManager {
	return &SessionManager{
		db:            db,
		logger:        logger,
		tracer:        otel.Tracer(tracerName),
		slowThreshold: slowThreshold,
	}
}

// WithSession begins a transaction, runs work against a repository bound to
// it and commits if work returns nil. On error or panic the transaction is
// rolled back; a panic is re-raised after the rollback. No two calls share a
// transaction.
func (m *SessionManager) WithSession(ctx context.Context, work func(users domain.UserRepository) error) (err error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "sqlite.session")
	defer span.End()

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		m.observe(ctx, span, time.Since(start), err)
		return fmt.Errorf("begin session: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			span.SetStatus(codes.Error, "panic")
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
		m.observe(ctx, span, time.Since(start), err)
	}()

	if err = work(newUserRepository(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (m *SessionManager) observe(ctx context.Context, span trace.Span, elapsed time.Duration, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.LogAttrs(ctx, slog.LevelError, "session failed",
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		return
	}

	if m.slowThreshold > 0 && elapsed > m.slowThreshold {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "slow session", slog.Duration("duration", elapsed))
	}
}
