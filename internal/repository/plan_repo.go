package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/videarn/backend/internal/models"
)

const planColumns = `id, name, price, daily_quota, duration_days, reward_per_video, total_reward, is_active, created_at, updated_at`

type PlanRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *PlanRepo {
	return &PlanRepo{pool: pool}
}

func (r *PlanRepo) Create(ctx context.Context, p *models.Plan) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO plans (id, name, price, daily_quota, duration_days, reward_per_video, total_reward, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Price, p.DailyQuota, p.DurationDays, p.RewardPerVideo, p.TotalReward, p.IsActive).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

// Update edits a catalog entry. Running subscriptions are unaffected: they
// carry their own snapshot of the terms.
func (r *PlanRepo) Update(ctx context.Context, p *models.Plan) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE plans SET name = $2, price = $3, daily_quota = $4, duration_days = $5,
			reward_per_video = $6, total_reward = $7, is_active = $8, updated_at = now()
		WHERE id = $1
	`, p.ID, p.Name, p.Price, p.DailyQuota, p.DurationDays, p.RewardPerVideo, p.TotalReward, p.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PlanRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var p models.Plan
	err := r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.DailyQuota, &p.DurationDays, &p.RewardPerVideo, &p.TotalReward, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlanRepo) List(ctx context.Context, activeOnly bool) ([]*models.Plan, error) {
	q := `SELECT ` + planColumns + ` FROM plans ORDER BY price ASC`
	if activeOnly {
		q = `SELECT ` + planColumns + ` FROM plans WHERE is_active ORDER BY price ASC`
	}
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Plan
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.DailyQuota, &p.DurationDays, &p.RewardPerVideo, &p.TotalReward, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}
