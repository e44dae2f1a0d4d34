package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/msomdec/user-service-mcp/internal/repository/sqlite/schema"
)

// ErrUnsupportedDatabase is returned by Open for connection URLs that do not
// point at SQLite.
var ErrUnsupportedDatabase = errors.New("unsupported database url")

const memoryPath = ":memory:"

// Pragmas applied to every connection in the pool. busy_timeout comes first
// so the pragmas after it wait for locks held by other connections.
var connectionPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

// Options configures Open.
type Options struct {
	// URL is the connection string. See ParseURL for the accepted forms.
	URL string

	// MaxOpenConns bounds the pool. Values below 1 mean 1. In-memory
	// databases always use a single connection.
	MaxOpenConns int

	// SlowSessionThreshold is the duration above which a session is logged
	// as slow. Zero disables slow-session logging.
	SlowSessionThreshold time.Duration

	// Logger receives session diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// DB owns the connection pool and the session manager built on it.
type DB struct {
	SqlDB    *sqlx.DB
	sessions *SessionManager
}

// Open parses the connection URL, opens the pool and verifies it can reach
// the database. The caller must call Close.
func Open(ctx context.Context, opts Options) (*DB, error) {
	path, err := ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite", dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen < 1 || path == memoryPath {
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	// An in-memory database lives only as long as its connection.
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	xdb := sqlx.NewDb(sqlDB, "sqlite3")
	return &DB{
		SqlDB:    xdb,
		sessions: newSessionManager(xdb, logger, opts.SlowSessionThreshold),
	}, nil
}

// EnsureSchema creates the users table and its indexes if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	return schema.Ensure(ctx, db.SqlDB.DB)
}

// Close drains the pool. Sessions in flight finish before their connections
// are closed.
func (db *DB) Close() error {
	return db.SqlDB.Close()
}

// Sessions returns the per-call unit of work factory.
func (db *DB) Sessions() *SessionManager {
	return db.sessions
}

// ParseURL converts a connection string into a SQLite path. It accepts the
// SQLAlchemy forms used by DATABASE_URL:
//
//	sqlite:///relative/users.db
//	sqlite:////absolute/users.db
//	sqlite:///:memory:   (or sqlite://)
//
// as well as file: URIs and bare paths. Any other scheme is rejected.
func ParseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty connection string", ErrUnsupportedDatabase)
	}

	switch {
	case raw == memoryPath:
		return memoryPath, nil
	case strings.HasPrefix(raw, "file:"):
		return raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		rest := strings.TrimPrefix(raw, "sqlite://")
		if i := strings.IndexByte(rest, '?'); i >= 0 {
			rest = rest[:i]
		}
		// The host part is always empty for SQLite, so the path starts
		// after the third slash.
		rest = strings.TrimPrefix(rest, "/")
		if rest == "" || rest == memoryPath {
			return memoryPath, nil
		}
		return rest, nil
	case strings.Contains(raw, "://"):
		scheme, _, _ := strings.Cut(raw, "://")
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedDatabase, scheme)
	default:
		return raw, nil
	}
}

// dataSourceName builds a modernc.org/sqlite DSN that applies the standard
// pragmas on every new connection. Transactions begin IMMEDIATE so a session
// takes the write lock up front and waits out busy_timeout instead of failing
// when a read lock cannot be upgraded.
func dataSourceName(path string) string {
	params := url.Values{}
	for _, p := range connectionPragmas {
		params.Add("_pragma", p)
	}
	params.Set("_txlock", "immediate")
	query := params.Encode()

	if path == memoryPath {
		return "file::memory:?" + query
	}
	if strings.HasPrefix(path, "file:") {
		if strings.Contains(path, "?") {
			return path + "&" + query
		}
		return path + "?" + query
	}
	return "file:" + path + "?" + query
}
