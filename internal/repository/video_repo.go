package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/videarn/backend/internal/models"
)

const videoColumns = `id, title, media_url, duration_seconds, is_active, created_at, updated_at`

type VideoRepo struct {
	pool *pgxpool.Pool
}

func NewVideoRepo(pool *pgxpool.Pool) *VideoRepo {
	return &VideoRepo{pool: pool}
}

func (r *VideoRepo) Create(ctx context.Context, v *models.Video) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO videos (id, title, media_url, duration_seconds, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, v.ID, v.Title, v.MediaURL, v.DurationSeconds, v.IsActive).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *VideoRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	var v models.Video
	err := r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id).
		Scan(&v.ID, &v.Title, &v.MediaURL, &v.DurationSeconds, &v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VideoRepo) List(ctx context.Context) ([]*models.Video, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVideos(rows)
}

func (r *VideoRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE videos SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SelectDaily picks up to limit active videos the account has not watched on
// the given business day: never-rewarded videos first, then cross-day
// repeats as backfill, random within each group. Selection order is
// deliberately unspecified beyond that.
func (r *VideoRepo) SelectDaily(ctx context.Context, accountID uuid.UUID, day time.Time, limit int) ([]*models.Video, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+videoColumns+` FROM videos v
		WHERE v.is_active
		  AND NOT EXISTS (
			SELECT 1 FROM video_watches w
			WHERE w.account_id = $1 AND w.video_id = v.id AND w.business_day = $2
		  )
		ORDER BY EXISTS (
			SELECT 1 FROM video_watches w WHERE w.account_id = $1 AND w.video_id = v.id
		), random()
		LIMIT $3
	`, accountID, day, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVideos(rows)
}

// CountWatches returns the size of the account's daily watch set for the
// given business day, read under the caller's transaction so the quota check
// is serialized with the row lock on the account.
func (r *VideoRepo) CountWatches(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, day time.Time) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM video_watches WHERE account_id = $1 AND business_day = $2
	`, accountID, day).Scan(&n)
	return n, err
}

// CountWatchesToday is the read-side variant used outside a transaction.
func (r *VideoRepo) CountWatchesToday(ctx context.Context, accountID uuid.UUID, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM video_watches WHERE account_id = $1 AND business_day = $2
	`, accountID, day).Scan(&n)
	return n, err
}

func (r *VideoRepo) WatchExists(ctx context.Context, tx pgx.Tx, accountID, videoID uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM video_watches WHERE account_id = $1 AND video_id = $2 AND business_day = $3
		)
	`, accountID, videoID, day).Scan(&exists)
	return exists, err
}

// ClearDay empties the account's watch set for one business day. Called on
// plan purchase so the new plan starts with its full daily quota; reward
// history lives in the ledger, these rows are quota bookkeeping only.
func (r *VideoRepo) ClearDay(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, day time.Time) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM video_watches WHERE account_id = $1 AND business_day = $2
	`, accountID, day)
	return err
}

func (r *VideoRepo) InsertWatch(ctx context.Context, tx pgx.Tx, w *models.VideoWatch) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO video_watches (account_id, video_id, business_day, rewarded_at)
		VALUES ($1, $2, $3, $4)
	`, w.AccountID, w.VideoID, w.BusinessDay, w.RewardedAt)
	return err
}

func scanVideos(rows pgx.Rows) ([]*models.Video, error) {
	var list []*models.Video
	for rows.Next() {
		var v models.Video
		if err := rows.Scan(&v.ID, &v.Title, &v.MediaURL, &v.DurationSeconds, &v.IsActive, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &v)
	}
	return list, rows.Err()
}
