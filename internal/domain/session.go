package domain

import "context"

// SessionManager hands out one unit of work per call. The repository passed
// to work is only valid until work returns. Changes made through it are
// committed when work returns nil and discarded otherwise; the underlying
// connection is released on every exit path, including panics.
type SessionManager interface {
	WithSession(ctx context.Context, work func(users UserRepository) error) error
}
