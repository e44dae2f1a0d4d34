package domain

import "context"

// User is a stored user record. ID is assigned by the store on creation and
// never changes afterwards.
type User struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Email string `db:"email"`
	Age   int    `db:"age"`
}

// UserUpdate carries the fields of a partial update. A field holding its zero
// value ("" or 0) is left unchanged, so an age of 0 can never be written
// through an update.
type UserUpdate struct {
	Name  string
	Email string
	Age   int
}

// IsEmpty reports whether the update would not change any field.
func (u UserUpdate) IsEmpty() bool {
	return u.Name == "" && u.Email == "" && u.Age == 0
}

// UserRepository defines persistence operations for users. Implementations
// are bound to a single unit of work handed out by a SessionManager.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	// GetByEmail matches case-sensitively. Email is not unique; when several
	// users share an address the one with the lowest ID is returned.
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListAll(ctx context.Context) ([]User, error)
	ListByAge(ctx context.Context, age int) ([]User, error)
	// Update applies the non-zero fields of update and returns the stored
	// user afterwards. Returns ErrNotFound if no user has the given id.
	Update(ctx context.Context, id int64, update UserUpdate) (*User, error)
	// Delete removes the user and reports whether a row existed.
	Delete(ctx context.Context, id int64) (bool, error)
}
