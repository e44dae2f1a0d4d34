package sqlite

// NewUserRepository returns a repository that autocommits each statement,
// for inspecting the store outside a session.
func NewUserRepository(db *DB) *UserRepository {
	return newUserRepository(db.SqlDB)
}
