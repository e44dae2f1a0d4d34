package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/msomdec/user-service-mcp/internal/domain"
	"github.com/msomdec/user-service-mcp/internal/repository/sqlite"
)

func TestSessionManager_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var created domain.User
	err := db.Sessions().WithSession(ctx, func(users domain.UserRepository) error {
		created = domain.User{Name: "Committed", Email: "commit@example.com", Age: 30}
		return users.Create(ctx, &created)
	})
	if err != nil {
		t.Fatalf("WithSession: %v", err)
	}

	found, err := sqlite.NewUserRepository(db).GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID after commit: %v", err)
	}
	if found.Name != "Committed" {
		t.Fatalf("expected Committed, got %q", found.Name)
	}
}

func TestSessionManager_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := db.Sessions().WithSession(ctx, func(users domain.UserRepository) error {
		if err := users.Create(ctx, &domain.User{Name: "Ghost", Email: "ghost@example.com", Age: 1}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}

	users, err := sqlite.NewUserRepository(db).ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected rollback to discard the insert, found %d users", len(users))
	}
}

func TestSessionManager_ReleasesOnPanic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	func() {
		defer func() {
			if p := recover(); p == nil {
				t.Fatal("expected the panic to propagate")
			}
		}()
		_ = db.Sessions().WithSession(ctx, func(users domain.UserRepository) error {
			if err := users.Create(ctx, &domain.User{Name: "Panic", Email: "panic@example.com", Age: 1}); err != nil {
				return err
			}
			panic("fault in work")
		})
	}()

	// The pool holds a single connection; if the panicking session had
	// leaked it this session would block forever.
	err := db.Sessions().WithSession(ctx, func(users domain.UserRepository) error {
		all, err := users.ListAll(ctx)
		if err != nil {
			return err
		}
		if len(all) != 0 {
			t.Errorf("expected rollback after panic, found %d users", len(all))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithSession after panic: %v", err)
	}
}

func TestSessionManager_ConcurrentSessions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- db.Sessions().WithSession(ctx, func(users domain.UserRepository) error {
				return users.Create(ctx, &domain.User{Name: "Worker", Email: "worker@example.com", Age: i + 1})
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent WithSession: %v", err)
		}
	}

	users, err := sqlite.NewUserRepository(db).ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(users) != workers {
		t.Fatalf("expected %d users, got %d", workers, len(users))
	}
}

func TestSessionManager_CanceledContext(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := db.Sessions().WithSession(ctx, func(users domain.UserRepository) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected an error for a canceled context")
	}
	if called {
		t.Fatal("work must not run when the session cannot begin")
	}
}

func TestSessionManager_ConcurrentUpdatesWithPool(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, sqlite.Options{
		URL:          filepath.Join(t.TempDir(), "pool.db"),
		MaxOpenConns: 4,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	user := createUser(t, sqlite.NewUserRepository(db), "Racer", "racer@example.com", 1)

	const workers = 64
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(age int) {
			defer wg.Done()
			// Update reads the row before writing it, so each session needs
			// its read lock upgraded to a write lock.
			errs <- db.Sessions().WithSession(ctx, func(users domain.UserRepository) error {
				_, err := users.Update(ctx, user.ID, domain.UserUpdate{Age: age})
				return err
			})
		}(i + 2)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}

	found, err := sqlite.NewUserRepository(db).GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if found.Age < 2 || found.Age > workers+1 {
		t.Fatalf("expected age written by one of the sessions, got %d", found.Age)
	}
}
