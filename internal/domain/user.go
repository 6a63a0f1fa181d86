package domain

import "time"

// MeasurementUnit selects how distances are presented to a user.
type MeasurementUnit string

const (
	MeasurementMetric   MeasurementUnit = "metric"
	MeasurementImperial MeasurementUnit = "imperial"
)

// User is a local account that may be linked to a Strava athlete.
type User struct {
	ID              int64
	Username        string
	MeasurementUnit MeasurementUnit
	CreatedAt       time.Time
}

// DistanceUnit returns the display unit for distances.
func (u *User) DistanceUnit() string {
	if u.MeasurementUnit == MeasurementImperial {
		return "miles"
	}
	return "km"
}

// Credential holds the OAuth token state linking a user to Strava.
// ExpiresAt is epoch seconds as issued by the token endpoint.
type Credential struct {
	UserID       int64
	AthleteID    int64
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	UpdatedAt    time.Time
}
