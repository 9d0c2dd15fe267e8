package models

import "time"

// User stores local credentials plus the linked Strava token triple.
// The three Strava fields are either all nil (unlinked) or all set (linked).
type User struct {
	ID               uint   `gorm:"primaryKey"`
	Username         string `gorm:"uniqueIndex"`
	Email            string `gorm:"uniqueIndex"`
	HashedPassword   string
	IsVerified       bool    `gorm:"default:false"`
	IsActive         bool    `gorm:"default:false"`
	VerificationCode *string // cleared once the email is verified

	StravaAccessToken    *string
	StravaRefreshToken   *string
	StravaTokenExpiresAt *int64 // epoch seconds

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StravaLinked reports whether the user holds a complete token triple.
func (u *User) StravaLinked() bool {
	return u.StravaAccessToken != nil && u.StravaRefreshToken != nil && u.StravaTokenExpiresAt != nil
}
