package store

import (
	"context"
	"errors"
	"time"

	"github.com/pysugar/strava-sync/internal/db/models"
	"gorm.io/gorm"
)

// ErrActivityNotFound is returned when an activity is absent or belongs to a
// different user. The two cases are deliberately indistinguishable.
var ErrActivityNotFound = errors.New("activity not found")

// ActivityStore persists synchronized activities. Rows are insert-only.
type ActivityStore struct {
	db *gorm.DB
}

// NewActivityStore creates an ActivityStore.
func NewActivityStore(db *gorm.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// InsertNew stores every activity whose StravaID is not present yet, in a
// single transaction. Re-running with the same input inserts nothing.
// Returns the number of rows created.
func (s *ActivityStore) InsertNew(ctx context.Context, activities []models.Activity) (int, error) {
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range activities {
			var count int64
			if err := tx.Model(&models.Activity{}).
				Where("strava_id = ?", activities[i].StravaID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if err := tx.Create(&activities[i]).Error; err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListForUserBetween returns the user's activities with a start date inside
// [from, to), ordered by start date.
func (s *ActivityStore) ListForUserBetween(ctx context.Context, userID uint, from, to time.Time) ([]models.Activity, error) {
	var activities []models.Activity
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND start_date >= ? AND start_date < ?", userID, from, to).
		Order("start_date").
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}

// ByIDForUser fetches one activity scoped to its owner.
func (s *ActivityStore) ByIDForUser(ctx context.Context, id, userID uint) (*models.Activity, error) {
	var activity models.Activity
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&activity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	return &activity, nil
}
