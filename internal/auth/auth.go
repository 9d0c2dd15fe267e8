// Package auth covers local credentials: password hashing and strength
// checks, verification codes, and username/password authentication.
package auth

import (
	"context"
	"errors"

	"github.com/pysugar/strava-sync/internal/db/models"
	"github.com/pysugar/strava-sync/internal/store"
)

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong
	// password so callers cannot probe which of the two failed.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	// ErrNotVerified is returned when the password is right but the email
	// was never verified.
	ErrNotVerified = errors.New("account not verified")
)

// Service authenticates users against the credential store.
type Service struct {
	users *store.UserStore
}

// NewService creates a Service.
func NewService(users *store.UserStore) *Service {
	return &Service{users: users}
}

// Authenticate verifies the username/password pair and the verification
// state, returning the user on success.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(user.HashedPassword, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, ErrNotVerified
	}
	return user, nil
}
