package models

import "time"

// Activity is a synchronized Strava activity. StravaID is the external
// identifier used for deduplication; rows are insert-only.
type Activity struct {
	ID                 uint   `gorm:"primaryKey"`
	StravaID           string `gorm:"uniqueIndex"`
	UserID             uint   `gorm:"index"`
	Name               string
	Type               string
	StartDate          time.Time
	Distance           float64
	MovingTime         int
	ElapsedTime        int
	TotalElevationGain float64
	AverageSpeed       float64
	MaxSpeed           float64
	CreatedAt          time.Time
}
