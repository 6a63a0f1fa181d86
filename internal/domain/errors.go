package domain

import "errors"

var (
	// ErrInvalidState indicates the authorization state does not resolve to a
	// user that can be connected (unknown user, or already linked to Strava).
	ErrInvalidState = errors.New("invalid authorization state")
	// ErrInvalidCode indicates the provider rejected the authorization code.
	ErrInvalidCode = errors.New("invalid authorization code")
	// ErrNotConnected is returned when a user has no stored Strava credential.
	ErrNotConnected = errors.New("user is not connected to strava")
	// ErrUnsupportedSportType indicates the fetched activity has a sport type
	// outside the tracked mapping.
	ErrUnsupportedSportType = errors.New("unsupported sport type")
	// ErrShoeNotMapped indicates no active shoe matches the activity's gear.
	ErrShoeNotMapped = errors.New("gear does not map to an active shoe")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
)
