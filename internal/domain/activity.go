// Package domain defines the business logic for the shoe wear tracker.
package domain

import "time"

// ActivityType classifies a recorded activity.
type ActivityType string

const (
	ActivityWalk  ActivityType = "walk"
	ActivityRun   ActivityType = "run"
	ActivityTrail ActivityType = "trail"
	ActivityHike  ActivityType = "hike"
)

// SportTypes maps Strava sport types to local activity types. Sport types
// absent from this map are not tracked and are dropped during import.
var SportTypes = map[string]ActivityType{
	"Run":        ActivityRun,
	"VirtualRun": ActivityRun,
	"TrailRun":   ActivityTrail,
	"Walk":       ActivityWalk,
}

// Activity is the canonical workout record stored in PostgreSQL.
// ExternalID is the Strava activity id and is unique per user; it is the
// idempotency key for webhook-driven synchronization.
type Activity struct {
	ID                 string
	UserID             int64
	Type               ActivityType
	ShoeID             string
	Name               string
	DistanceMeters     float64
	DurationSec        int
	ExternalID         string
	ShoeDistanceMeters float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Shoe is a pair of shoes owned by a user. A retired shoe no longer accepts
// imported activities.
type Shoe struct {
	ID             string
	UserID         int64
	ExternalID     string
	Name           string
	DistanceMeters float64
	RetiredAt      *time.Time
	CreatedAt      time.Time
}

// Retired reports whether the shoe has been taken out of rotation.
func (s *Shoe) Retired() bool {
	return s.RetiredAt != nil
}

// ExternalActivity is the transient representation of an activity decoded
// from a Strava API response. It is never persisted directly.
type ExternalActivity struct {
	ID             string
	Name           string
	DistanceMeters float64
	DurationSec    int
	SportType      string
	GearID         string
	StartedAt      time.Time
}

// Cursor models the pagination token for activity listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
