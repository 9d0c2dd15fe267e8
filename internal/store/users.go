// Package store wraps gorm access behind small repositories so handlers and
// services never touch query building directly.
package store

import (
	"context"
	"errors"

	"github.com/pysugar/strava-sync/internal/db/models"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateEmail is returned when a registration reuses an email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
)

// UserStore persists user identity, credentials and the Strava token triple.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore creates a UserStore.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new user, failing with ErrDuplicateEmail when the email
// is already registered.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", user.Email).First(&existing).Error
	if err == nil {
		return ErrDuplicateEmail
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Create(user).Error
}

// ByUsername looks a user up by username.
func (s *UserStore) ByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.first(ctx, "username = ?", username)
}

// ByEmail looks a user up by email.
func (s *UserStore) ByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", email)
}

// ByID looks a user up by primary key.
func (s *UserStore) ByID(ctx context.Context, id uint) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) first(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// MarkVerified flips the verification flags and clears the one-time code.
func (s *UserStore) MarkVerified(ctx context.Context, user *models.User) error {
	user.IsVerified = true
	user.IsActive = true
	user.VerificationCode = nil
	return s.db.WithContext(ctx).Save(user).Error
}

// SaveStravaTokens overwrites the complete token triple in one write.
func (s *UserStore) SaveStravaTokens(ctx context.Context, user *models.User, access, refresh string, expiresAt int64) error {
	user.StravaAccessToken = &access
	user.StravaRefreshToken = &refresh
	user.StravaTokenExpiresAt = &expiresAt
	return s.db.WithContext(ctx).Save(user).Error
}

// ClearStravaTokens nulls the token triple, transitioning back to unlinked.
func (s *UserStore) ClearStravaTokens(ctx context.Context, user *models.User) error {
	user.StravaAccessToken = nil
	user.StravaRefreshToken = nil
	user.StravaTokenExpiresAt = nil
	return s.db.WithContext(ctx).Save(user).Error
}
