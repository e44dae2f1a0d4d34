package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/msomdec/user-service-mcp/internal/domain"
)

var userColumns = []string{"id", "name", "email", "age"}

// executor is satisfied by both *sqlx.DB and *sqlx.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// UserRepository implements domain.UserRepository using SQLite. Repositories
// are handed out by SessionManager and run inside the session's transaction.
type UserRepository struct {
	db executor
}

func newUserRepository(db executor) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query, args, err := sq.Insert("users").
		Columns("name", "email", "age").
		Values(user.Name, user.Email, user.Age).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	user.ID = id
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, "query user by id", sq.Eq{"id": id})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "query user by email", sq.Eq{"email": email})
}

func (r *UserRepository) ListAll(ctx context.Context) ([]domain.User, error) {
	return r.list(ctx, "list users", nil)
}

func (r *UserRepository) ListByAge(ctx context.Context, age int) ([]domain.User, error) {
	return r.list(ctx, "list users by age", sq.Eq{"age": age})
}

func (r *UserRepository) Update(ctx context.Context, id int64, update domain.UserUpdate) (*domain.User, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return current, nil
	}

	set := make(map[string]any, 3)
	if update.Name != "" {
		set["name"] = update.Name
	}
	if update.Email != "" {
		set["email"] = update.Email
	}
	if update.Age != 0 {
		set["age"] = update.Age
	}

	query, args, err := sq.Update("users").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update user: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	return r.GetByID(ctx, id)
}

func (r *UserRepository) Delete(ctx context.Context, id int64) (bool, error) {
	query, args, err := sq.Delete("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete user: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *UserRepository) getOne(ctx context.Context, op string, where sq.Eq) (*domain.User, error) {
	query, args, err := sq.Select(userColumns...).
		From("users").
		Where(where).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}

	user := &domain.User{}
	if err := r.db.GetContext(ctx, user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (r *UserRepository) list(ctx context.Context, op string, where sq.Sqlizer) ([]domain.User, error) {
	builder := sq.Select(userColumns...).From("users").OrderBy("id")
	if where != nil {
		builder = builder.Where(where)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}

	users := []domain.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}
