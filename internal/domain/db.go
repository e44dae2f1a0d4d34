package domain

import "context"

// Database defines lifecycle operations for the underlying record store.
// The store owns its schema files and creates missing tables on startup;
// there is no migration history.
type Database interface {
	EnsureSchema(ctx context.Context) error
	Close() error
}
