package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	shoes      map[string]*Shoe
	activities map[string]*Activity
	registered map[string]struct{}

	upserted []Activity
	deleted  []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		shoes:      make(map[string]*Shoe),
		activities: make(map[string]*Activity),
		registered: make(map[string]struct{}),
	}
}

func (r *fakeRepo) UserByID(_ context.Context, _ int64) (*User, error)        { return nil, nil }
func (r *fakeRepo) UserByAthleteID(_ context.Context, _ int64) (*User, error) { return nil, nil }

func (r *fakeRepo) ActiveShoeByGearID(_ context.Context, _ int64, gearID string) (*Shoe, error) {
	return r.shoes[gearID], nil
}

func (r *fakeRepo) ActiveShoes(_ context.Context, _ int64) ([]Shoe, error) {
	out := make([]Shoe, 0, len(r.shoes))
	for _, shoe := range r.shoes {
		out = append(out, *shoe)
	}
	return out, nil
}

func (r *fakeRepo) ActivityByExternalID(_ context.Context, _ int64, externalID string) (*Activity, error) {
	return r.activities[externalID], nil
}

func (r *fakeRepo) UpsertActivity(_ context.Context, activity Activity) (*Activity, error) {
	r.upserted = append(r.upserted, activity)
	if existing, ok := r.activities[activity.ExternalID]; ok {
		activity.ID = existing.ID
	}
	r.activities[activity.ExternalID] = &activity
	return &activity, nil
}

func (r *fakeRepo) DeleteActivityByExternalID(_ context.Context, _ int64, externalID string) error {
	if _, ok := r.activities[externalID]; !ok {
		return ErrActivityNotFound
	}
	delete(r.activities, externalID)
	r.deleted = append(r.deleted, externalID)
	return nil
}

func (r *fakeRepo) ListActivities(_ context.Context, _ int64, _ *Cursor, _ int) ([]Activity, *Cursor, error) {
	return nil, nil, nil
}

func (r *fakeRepo) ExternalIDsSince(_ context.Context, _ int64, _ time.Time) (map[string]struct{}, error) {
	return r.registered, nil
}

type fakeSource struct {
	byID   map[string]*ExternalActivity
	recent []ExternalActivity
}

func (s *fakeSource) Activity(_ context.Context, _ int64, externalID string) (*ExternalActivity, error) {
	return s.byID[externalID], nil
}

func (s *fakeSource) Activities(_ context.Context, _ int64, _ time.Time) ([]ExternalActivity, error) {
	return s.recent, nil
}

func TestSynchronizeActivityImportsRun(t *testing.T) {
	repo := newFakeRepo()
	repo.shoes["g1"] = &Shoe{ID: "shoe-1", UserID: 7, ExternalID: "g1"}

	started := time.Date(2026, time.March, 1, 9, 30, 0, 0, time.UTC)
	source := &fakeSource{byID: map[string]*ExternalActivity{
		"123": {ID: "123", Name: "Sunday run", SportType: "Run", GearID: "g1",
			DistanceMeters: 10000, DurationSec: 3000, StartedAt: started},
	}}

	service := NewService(repo, source)
	activity, err := service.SynchronizeActivity(context.Background(), &User{ID: 7}, "123")
	require.NoError(t, err)

	require.NotEmpty(t, activity.ID)
	require.Equal(t, int64(7), activity.UserID)
	require.Equal(t, ActivityRun, activity.Type)
	require.Equal(t, "shoe-1", activity.ShoeID)
	require.Equal(t, "123", activity.ExternalID)
	require.Equal(t, started, activity.CreatedAt)
}

func TestSynchronizeActivityIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	repo.shoes["g1"] = &Shoe{ID: "shoe-1", UserID: 7, ExternalID: "g1"}
	source := &fakeSource{byID: map[string]*ExternalActivity{
		"123": {ID: "123", SportType: "TrailRun", GearID: "g1", StartedAt: time.Now()},
	}}

	service := NewService(repo, source)
	first, err := service.SynchronizeActivity(context.Background(), &User{ID: 7}, "123")
	require.NoError(t, err)
	second, err := service.SynchronizeActivity(context.Background(), &User{ID: 7}, "123")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID, "redelivery must update the same row")
	require.Len(t, repo.activities, 1)
}

func TestSynchronizeActivityRejectsUnsupportedSport(t *testing.T) {
	repo := newFakeRepo()
	source := &fakeSource{byID: map[string]*ExternalActivity{
		"200": {ID: "200", SportType: "Ride", GearID: "b1", StartedAt: time.Now()},
	}}

	service := NewService(repo, source)
	_, err := service.SynchronizeActivity(context.Background(), &User{ID: 7}, "200")
	require.ErrorIs(t, err, ErrUnsupportedSportType)
	require.Empty(t, repo.upserted)
}

func TestSynchronizeActivityRejectsUnmappedGear(t *testing.T) {
	repo := newFakeRepo()
	source := &fakeSource{byID: map[string]*ExternalActivity{
		"201": {ID: "201", SportType: "Walk", GearID: "g-unknown", StartedAt: time.Now()},
	}}

	service := NewService(repo, source)
	_, err := service.SynchronizeActivity(context.Background(), &User{ID: 7}, "201")
	require.ErrorIs(t, err, ErrShoeNotMapped)
	require.Empty(t, repo.upserted)
}

func TestDeleteActivityRemovesImportedRow(t *testing.T) {
	repo := newFakeRepo()
	repo.activities["55"] = &Activity{ID: "local-55", UserID: 7, ExternalID: "55"}

	service := NewService(repo, &fakeSource{})
	require.NoError(t, service.DeleteActivity(context.Background(), &User{ID: 7}, "55"))
	require.Equal(t, []string{"55"}, repo.deleted)
}

func TestDeleteActivityMissingIsAnError(t *testing.T) {
	service := NewService(newFakeRepo(), &fakeSource{})

	err := service.DeleteActivity(context.Background(), &User{ID: 7}, "999")
	require.ErrorIs(t, err, ErrActivityNotFound)
}

func TestUnregisteredActivitiesDiffsAgainstStore(t *testing.T) {
	repo := newFakeRepo()
	repo.shoes["g1"] = &Shoe{ID: "shoe-1", UserID: 7, ExternalID: "g1"}
	repo.registered["1"] = struct{}{}

	source := &fakeSource{recent: []ExternalActivity{
		{ID: "1", SportType: "Run", GearID: "g1"},       // already imported
		{ID: "2", SportType: "Run", GearID: "g1"},       // new, gear mapped
		{ID: "3", SportType: "Run", GearID: "g-orphan"}, // new, gear not mapped
	}}

	service := NewService(repo, source)
	unregistered, err := service.UnregisteredActivities(context.Background(), &User{ID: 7}, 21)
	require.NoError(t, err)

	require.Len(t, unregistered, 1)
	require.Equal(t, "2", unregistered[0].External.ID)
	require.Equal(t, "shoe-1", unregistered[0].Shoe.ID)
}
