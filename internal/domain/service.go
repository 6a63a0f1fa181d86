package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository captures persistence operations used by the sync workflows.
type Repository interface {
	UserByID(ctx context.Context, id int64) (*User, error)
	UserByAthleteID(ctx context.Context, athleteID int64) (*User, error)

	ActiveShoeByGearID(ctx context.Context, userID int64, gearID string) (*Shoe, error)
	ActiveShoes(ctx context.Context, userID int64) ([]Shoe, error)

	ActivityByExternalID(ctx context.Context, userID int64, externalID string) (*Activity, error)
	UpsertActivity(ctx context.Context, activity Activity) (*Activity, error)
	DeleteActivityByExternalID(ctx context.Context, userID int64, externalID string) error
	ListActivities(ctx context.Context, userID int64, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	ExternalIDsSince(ctx context.Context, userID int64, after time.Time) (map[string]struct{}, error)
}

// ActivitySource fetches activity data from the provider on behalf of a user.
type ActivitySource interface {
	Activity(ctx context.Context, userID int64, externalID string) (*ExternalActivity, error)
	Activities(ctx context.Context, userID int64, after time.Time) ([]ExternalActivity, error)
}

// Service orchestrates activity synchronization between Strava and the
// local store.
type Service struct {
	repo   Repository
	source ActivitySource
}

// NewService constructs a Service.
func NewService(repo Repository, source ActivitySource) *Service {
	return &Service{repo: repo, source: source}
}

// SynchronizeActivity fetches the activity identified by externalID from the
// provider and upserts it for the user. The upsert is keyed on
// (user, external id) so redelivery of the same event never creates a
// duplicate. Gear is resolved from the freshly fetched payload, not from
// whatever triggered the sync.
func (s *Service) SynchronizeActivity(ctx context.Context, user *User, externalID string) (*Activity, error) {
	external, err := s.source.Activity(ctx, user.ID, externalID)
	if err != nil {
		return nil, err
	}

	activityType, ok := SportTypes[external.SportType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSportType, external.SportType)
	}

	shoe, err := s.repo.ActiveShoeByGearID(ctx, user.ID, external.GearID)
	if err != nil {
		return nil, err
	}
	if shoe == nil {
		return nil, fmt.Errorf("%w: gear %q", ErrShoeNotMapped, external.GearID)
	}

	now := time.Now().UTC()
	activity := Activity{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Type:           activityType,
		ShoeID:         shoe.ID,
		Name:           external.Name,
		DistanceMeters: external.DistanceMeters,
		DurationSec:    external.DurationSec,
		ExternalID:     external.ID,
		CreatedAt:      external.StartedAt.UTC(),
		UpdatedAt:      now,
	}

	return s.repo.UpsertActivity(ctx, activity)
}

// DeleteActivity removes the local activity matching the Strava id. Deleting
// an activity that was never imported is an error, not a no-op.
func (s *Service) DeleteActivity(ctx context.Context, user *User, externalID string) error {
	existing, err := s.repo.ActivityByExternalID(ctx, user.ID, externalID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: strava id %s", ErrActivityNotFound, externalID)
	}
	return s.repo.DeleteActivityByExternalID(ctx, user.ID, externalID)
}

// UnregisteredActivity pairs a provider activity with the local shoe it
// would be imported against.
type UnregisteredActivity struct {
	External ExternalActivity
	Shoe     Shoe
}

// UnregisteredActivities lists provider activities from the last `days` days
// that have not been imported yet and whose gear maps to an active shoe.
func (s *Service) UnregisteredActivities(ctx context.Context, user *User, days int) ([]UnregisteredActivity, error) {
	after := time.Now().UTC().AddDate(0, 0, -days)

	registered, err := s.repo.ExternalIDsSince(ctx, user.ID, after)
	if err != nil {
		return nil, err
	}

	shoes, err := s.repo.ActiveShoes(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	byGear := make(map[string]Shoe, len(shoes))
	for _, shoe := range shoes {
		if shoe.ExternalID != "" {
			byGear[shoe.ExternalID] = shoe
		}
	}

	externals, err := s.source.Activities(ctx, user.ID, after)
	if err != nil {
		return nil, err
	}

	var out []UnregisteredActivity
	for _, external := range externals {
		if _, ok := registered[external.ID]; ok {
			continue
		}
		shoe, ok := byGear[external.GearID]
		if !ok {
			continue
		}
		out = append(out, UnregisteredActivity{External: external, Shoe: shoe})
	}
	return out, nil
}

// ListActivities fetches stored activities with cursor pagination, most
// recent first.
func (s *Service) ListActivities(ctx context.Context, userID int64, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.repo.ListActivities(ctx, userID, cursor, limit)
}
