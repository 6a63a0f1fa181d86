package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chromium7/shoe-wear-tracker/internal/domain"
	"github.com/chromium7/shoe-wear-tracker/internal/observability"
)

// Repository provides Postgres-backed persistence for users, credentials,
// shoes and activities. Every mutation runs inside a transaction scoped to
// the calling request; lookups that find nothing return (nil, nil).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, measurement_unit, created`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(&user.ID, &user.Username, &user.MeasurementUnit, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// UserByID fetches a user by primary key.
func (r *Repository) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

// UserByAthleteID resolves the user linked to a Strava athlete id.
func (r *Repository) UserByAthleteID(ctx context.Context, athleteID int64) (*domain.User, error) {
	const query = `SELECT u.id, u.username, u.measurement_unit, u.created
        FROM users u JOIN strava_credentials c ON c.user_id = u.id
        WHERE c.athlete_id=$1`
	row := r.pool.QueryRow(ctx, query, athleteID)
	return scanUser(row)
}

// Credential fetches the stored OAuth credential for a user.
func (r *Repository) Credential(ctx context.Context, userID int64) (*domain.Credential, error) {
	const query = `SELECT user_id, athlete_id, access_token, refresh_token, expires_at, updated
        FROM strava_credentials WHERE user_id=$1`

	var cred domain.Credential
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&cred.UserID, &cred.AthleteID, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

// SaveCredential persists a refreshed token triple. Concurrent refreshes
// resolve last-writer-wins.
func (r *Repository) SaveCredential(ctx context.Context, cred domain.Credential) error {
	const stmt = `INSERT INTO strava_credentials (user_id, athlete_id, access_token, refresh_token, expires_at, updated)
        VALUES ($1,$2,$3,$4,$5,now())
        ON CONFLICT (user_id) DO UPDATE
        SET access_token=EXCLUDED.access_token,
            refresh_token=EXCLUDED.refresh_token,
            expires_at=EXCLUDED.expires_at,
            updated=now()`

	_, err := r.pool.Exec(ctx, stmt, cred.UserID, cred.AthleteID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt)
	return err
}

// BindCredential stores a newly authorized credential together with the
// measurement unit derived from the athlete profile, in one transaction.
func (r *Repository) BindCredential(ctx context.Context, cred domain.Credential, unit domain.MeasurementUnit) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insert = `INSERT INTO strava_credentials (user_id, athlete_id, access_token, refresh_token, expires_at, updated)
        VALUES ($1,$2,$3,$4,$5,now())`
	if _, err := tx.Exec(ctx, insert, cred.UserID, cred.AthleteID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET measurement_unit=$2 WHERE id=$1`, cred.UserID, unit); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const shoeColumns = `id, user_id, strava_id, name, distance_covered, retired_at, created`

func scanShoe(row pgx.Row) (*domain.Shoe, error) {
	var shoe domain.Shoe
	if err := row.Scan(&shoe.ID, &shoe.UserID, &shoe.ExternalID, &shoe.Name, &shoe.DistanceMeters, &shoe.RetiredAt, &shoe.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &shoe, nil
}

// ActiveShoeByGearID resolves a non-retired shoe by its Strava gear id.
func (r *Repository) ActiveShoeByGearID(ctx context.Context, userID int64, gearID string) (*domain.Shoe, error) {
	if gearID == "" {
		return nil, nil
	}
	const query = `SELECT ` + shoeColumns + ` FROM shoes
        WHERE user_id=$1 AND strava_id=$2 AND retired_at IS NULL`
	row := r.pool.QueryRow(ctx, query, userID, gearID)
	return scanShoe(row)
}

// ActiveShoes lists the user's non-retired shoes.
func (r *Repository) ActiveShoes(ctx context.Context, userID int64) ([]domain.Shoe, error) {
	const query = `SELECT ` + shoeColumns + ` FROM shoes
        WHERE user_id=$1 AND retired_at IS NULL ORDER BY created`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Shoe
	for rows.Next() {
		shoe, err := scanShoe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *shoe)
	}
	return out, rows.Err()
}

const activityColumns = `id, user_id, type, shoe_id, name, distance, duration, strava_id, shoe_distance, created, updated`

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var activity domain.Activity
	err := row.Scan(&activity.ID, &activity.UserID, &activity.Type, &activity.ShoeID, &activity.Name,
		&activity.DistanceMeters, &activity.DurationSec, &activity.ExternalID, &activity.ShoeDistanceMeters,
		&activity.CreatedAt, &activity.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &activity, nil
}

// ActivityByExternalID fetches a user's activity by its Strava id.
func (r *Repository) ActivityByExternalID(ctx context.Context, userID int64, externalID string) (*domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1 AND strava_id=$2`
	row := r.pool.QueryRow(ctx, query, userID, externalID)
	return scanActivity(row)
}

// UpsertActivity creates or updates an activity keyed on (user, strava id)
// and recomputes the affected shoes' cumulative distances, all in a single
// transaction.
func (r *Repository) UpsertActivity(ctx context.Context, activity domain.Activity) (*domain.Activity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var previousShoeID string
	err = tx.QueryRow(ctx, `SELECT shoe_id FROM activities WHERE user_id=$1 AND strava_id=$2`,
		activity.UserID, activity.ExternalID).Scan(&previousShoeID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	const upsert = `INSERT INTO activities (id, user_id, type, shoe_id, name, distance, duration, strava_id, shoe_distance, created, updated)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9,$10)
        ON CONFLICT (user_id, strava_id) DO UPDATE
        SET type=EXCLUDED.type,
            shoe_id=EXCLUDED.shoe_id,
            name=EXCLUDED.name,
            distance=EXCLUDED.distance,
            duration=EXCLUDED.duration,
            created=EXCLUDED.created,
            updated=EXCLUDED.updated
        RETURNING id`

	var storedID string
	err = tx.QueryRow(ctx, upsert,
		activity.ID,
		activity.UserID,
		activity.Type,
		activity.ShoeID,
		activity.Name,
		activity.DistanceMeters,
		activity.DurationSec,
		activity.ExternalID,
		activity.CreatedAt,
		activity.UpdatedAt,
	).Scan(&storedID)
	if err != nil {
		return nil, err
	}

	if err := recalcShoeDistance(ctx, tx, activity.ShoeID); err != nil {
		return nil, err
	}
	if previousShoeID != "" && previousShoeID != activity.ShoeID {
		if err := recalcShoeDistance(ctx, tx, previousShoeID); err != nil {
			return nil, err
		}
	}

	stored, err := scanActivity(tx.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=$1`, storedID))
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("activity %s disappeared during upsert", storedID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	observability.RecordActivitySynced(stored.UpdatedAt)
	return stored, nil
}

// DeleteActivityByExternalID removes a user's activity and recomputes the
// shoe's cumulative distance in the same transaction.
func (r *Repository) DeleteActivityByExternalID(ctx context.Context, userID int64, externalID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var shoeID string
	err = tx.QueryRow(ctx, `DELETE FROM activities WHERE user_id=$1 AND strava_id=$2 RETURNING shoe_id`,
		userID, externalID).Scan(&shoeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: strava id %s", domain.ErrActivityNotFound, externalID)
		}
		return err
	}

	if err := recalcShoeDistance(ctx, tx, shoeID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// recalcShoeDistance recomputes the running per-activity totals and the
// shoe's total distance from scratch. Recomputing by aggregate keeps the
// bookkeeping idempotent regardless of delivery order.
func recalcShoeDistance(ctx context.Context, tx pgx.Tx, shoeID string) error {
	const perActivity = `UPDATE activities a SET shoe_distance = c.cumulative
        FROM (SELECT id, SUM(distance) OVER (ORDER BY created, id) AS cumulative
              FROM activities WHERE shoe_id=$1) c
        WHERE a.id = c.id`
	if _, err := tx.Exec(ctx, perActivity, shoeID); err != nil {
		return err
	}

	const total = `UPDATE shoes
        SET distance_covered = (SELECT COALESCE(SUM(distance), 0) FROM activities WHERE shoe_id=$1)
        WHERE id=$1`
	_, err := tx.Exec(ctx, total, shoeID)
	return err
}

// ListActivities returns activities for a user ordered by time, most recent
// first, with keyset pagination.
func (r *Repository) ListActivities(ctx context.Context, userID int64, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (created, id) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *activity)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	return results, nextCursor, nil
}

// ExternalIDsSince returns the set of Strava ids already imported for a
// user after the given time.
func (r *Repository) ExternalIDsSince(ctx context.Context, userID int64, after time.Time) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT strava_id FROM activities WHERE user_id=$1 AND created >= $2`, userID, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}
