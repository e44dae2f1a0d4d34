package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/msomdec/user-service-mcp/internal/domain"
	"github.com/msomdec/user-service-mcp/internal/fuzzy"
)

// DefaultSearchLimit is the number of matches ListUsersByName returns.
const DefaultSearchLimit = 5

// UserNotFound is the error text returned by GetUserByEmail.
const UserNotFound = "User not found"

// CreateUserRequest is the input of create_user.
type CreateUserRequest struct {
	Name  string `json:"name" jsonschema:"description=Full name of the user."`
	Email string `json:"email" jsonschema:"description=Email address of the user."`
	Age   int    `json:"age" jsonschema:"description=Age of the user in years."`
}

// GetUserByEmailRequest is the input of get_user_by_email.
type GetUserByEmailRequest struct {
	Email string `json:"email" jsonschema:"description=Exact email address to look up (case-sensitive)."`
}

// DeleteUserRequest is the input of delete_user.
type DeleteUserRequest struct {
	UserID int64 `json:"user_id" jsonschema:"description=ID of the user to delete."`
}

// UpdateUserRequest is the input of update_user. Omitted fields, empty
// strings and an age of 0 leave the stored value unchanged.
type UpdateUserRequest struct {
	UserID int64   `json:"user_id" jsonschema:"description=ID of the user to update."`
	Name   *string `json:"name,omitempty" jsonschema:"description=New name. Empty keeps the current name."`
	Email  *string `json:"email,omitempty" jsonschema:"description=New email address. Empty keeps the current email."`
	Age    *int    `json:"age,omitempty" jsonschema:"description=New age. 0 keeps the current age."`
}

// ListUsersByNameRequest is the input of list_users_by_name.
type ListUsersByNameRequest struct {
	Name string `json:"name" jsonschema:"description=Name to search for. Spelling mistakes are tolerated."`
}

// ListUsersByAgeRequest is the input of list_users_by_age.
type ListUsersByAgeRequest struct {
	Age int `json:"age" jsonschema:"description=Exact age to match."`
}

// UserProfile is the public part of a user returned by get_user_by_email.
type UserProfile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// UserLookup is the result of get_user_by_email: either the profile fields
// or a single error field.
type UserLookup struct {
	*UserProfile
	Error string `json:"error,omitempty"`
}

// UserRecord is a full user as returned by list_users_by_age.
type UserRecord struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}

// ScoredUser is one list_users_by_name match.
type ScoredUser struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Age        int     `json:"age"`
	MatchScore float64 `json:"match_score"`
}

// UserToolService implements the user management tools. Each operation runs
// in its own session. Not-found conditions are reported in the result;
// the returned error is reserved for store faults.
type UserToolService struct {
	sessions    domain.SessionManager
	scorer      fuzzy.Scorer
	searchLimit int
}

// Option configures a UserToolService.
type Option func(*UserToolService)

// WithScorer sets the similarity metric used by ListUsersByName.
func WithScorer(scorer fuzzy.Scorer) Option {
	return func(s *UserToolService) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

// WithSearchLimit sets how many matches ListUsersByName returns.
func WithSearchLimit(limit int) Option {
	return func(s *UserToolService) {
		if limit > 0 {
			s.searchLimit = limit
		}
	}
}

// NewUserToolService creates a new UserToolService.
func NewUserToolService(sessions domain.SessionManager, opts ...Option) *UserToolService {
	s := &UserToolService{
		sessions:    sessions,
		scorer:      fuzzy.Ratio,
		searchLimit: DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser inserts a new user. Calling it twice with the same arguments
// creates two users.
func (s *UserToolService) CreateUser(ctx context.Context, req CreateUserRequest) (string, error) {
	user := &domain.User{Name: req.Name, Email: req.Email, Age: req.Age}
	err := s.sessions.WithSession(ctx, func(users domain.UserRepository) error {
		return users.Create(ctx, user)
	})
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return fmt.Sprintf("User %s created successfully with ID %d", user.Name, user.ID), nil
}

// GetUserByEmail returns the name and age of the user with the given email.
func (s *UserToolService) GetUserByEmail(ctx context.Context, req GetUserByEmailRequest) (UserLookup, error) {
	var lookup UserLookup
	err := s.sessions.WithSession(ctx, func(users domain.UserRepository) error {
		user, err := users.GetByEmail(ctx, req.Email)
		if errors.Is(err, domain.ErrNotFound) {
			lookup.Error = UserNotFound
			return nil
		}
		if err != nil {
			return err
		}
		lookup.UserProfile = &UserProfile{Name: user.Name, Age: user.Age}
		return nil
	})
	if err != nil {
		return UserLookup{}, fmt.Errorf("get user by email: %w", err)
	}
	return lookup, nil
}

// DeleteUser removes the user with the given id.
func (s *UserToolService) DeleteUser(ctx context.Context, req DeleteUserRequest) (string, error) {
	var deleted bool
	err := s.sessions.WithSession(ctx, func(users domain.UserRepository) error {
		var err error
		deleted, err = users.Delete(ctx, req.UserID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("delete user: %w", err)
	}
	if !deleted {
		return userIDNotFound(req.UserID), nil
	}
	return fmt.Sprintf("User with ID %d deleted successfully", req.UserID), nil
}

// UpdateUser applies the supplied fields to the user with the given id.
func (s *UserToolService) UpdateUser(ctx context.Context, req UpdateUserRequest) (string, error) {
	update := domain.UserUpdate{}
	if req.Name != nil {
		update.Name = *req.Name
	}
	if req.Email != nil {
		update.Email = *req.Email
	}
	if req.Age != nil {
		update.Age = *req.Age
	}

	found := true
	err := s.sessions.WithSession(ctx, func(users domain.UserRepository) error {
		_, err := users.Update(ctx, req.UserID, update)
		if errors.Is(err, domain.ErrNotFound) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("update user: %w", err)
	}
	if !found {
		return userIDNotFound(req.UserID), nil
	}
	return fmt.Sprintf("User with ID %d updated successfully", req.UserID), nil
}

// ListUsersByName ranks every stored user by name similarity and returns the
// best matches, highest score first.
func (s *UserToolService) ListUsersByName(ctx context.Context, req ListUsersByNameRequest) ([]ScoredUser, error) {
	var all []domain.User
	err := s.sessions.WithSession(ctx, func(users domain.UserRepository) error {
		var err error
		all, err = users.ListAll(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list users by name: %w", err)
	}

	names := make([]string, len(all))
	for i, u := range all {
		names[i] = u.Name
	}

	matches := fuzzy.Rank(req.Name, names, s.searchLimit, s.scorer)
	result := make([]ScoredUser, 0, len(matches))
	for _, m := range matches {
		u := all[m.Index]
		result = append(result, ScoredUser{
			ID:         u.ID,
			Name:       u.Name,
			Email:      u.Email,
			Age:        u.Age,
			MatchScore: m.Score,
		})
	}
	return result, nil
}

// ListUsersByAge returns every user whose age equals the given age. The
// order is the store's and is not part of the contract.
func (s *UserToolService) ListUsersByAge(ctx context.Context, req ListUsersByAgeRequest) ([]UserRecord, error) {
	var matched []domain.User
	err := s.sessions.WithSession(ctx, func(users domain.UserRepository) error {
		var err error
		matched, err = users.ListByAge(ctx, req.Age)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list users by age: %w", err)
	}

	result := make([]UserRecord, 0, len(matched))
	for _, u := range matched {
		result = append(result, UserRecord{ID: u.ID, Name: u.Name, Email: u.Email, Age: u.Age})
	}
	return result, nil
}

func userIDNotFound(id int64) string {
	return fmt.Sprintf("Error: User with ID %d not found", id)
}
