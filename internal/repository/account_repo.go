package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/videarn/backend/internal/models"
)

const accountColumns = `id, username, email, password_hash, role, is_blocked, balance, referral_code, referred_by,
	plan_id, plan_name, plan_price, plan_daily_quota, plan_reward_per_video, plan_activated_at, plan_expires_at,
	created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create inserts the account inside the given transaction so the signup
// bonus ledger entry lands atomically with the new row.
func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *models.Account) error {
	return tx.QueryRow(ctx, `
		INSERT INTO accounts (id, username, email, password_hash, role, balance, referral_code, referred_by)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		RETURNING created_at, updated_at
	`, a.ID, a.Username, a.Email, a.PasswordHash, a.Role, a.ReferralCode, a.ReferredBy).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (r *AccountRepo) GetByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1`, code))
}

// GetByIDForUpdate locks the account row. Every money-mutating flow starts
// here: the row lock serializes concurrent operations on the same account so
// read-modify-write races cannot double-spend.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// AddBalance credits amount (>= 0) and returns the new balance.
func (r *AccountRepo) AddBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING balance
	`, amount, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, ErrNotFound
	}
	return balance, err
}

// DeductBalance debits amount (>= 0) only if the balance stays non-negative.
// The WHERE clause is the authoritative balance guard: no row updated means
// insufficient funds, surfaced to the caller as pgx.ErrNoRows for the ledger
// service to translate.
func (r *AccountRepo) DeductBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $1, updated_at = now()
		WHERE id = $2 AND balance >= $1
		RETURNING balance
	`, amount, id).Scan(&balance)
	return balance, err
}

// SetSubscription writes the plan snapshot taken at purchase time.
func (r *AccountRepo) SetSubscription(ctx context.Context, tx pgx.Tx, id uuid.UUID, sub *models.Subscription) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts SET plan_id = $2, plan_name = $3, plan_price = $4, plan_daily_quota = $5,
			plan_reward_per_video = $6, plan_activated_at = $7, plan_expires_at = $8, updated_at = now()
		WHERE id = $1
	`, id, sub.PlanID, sub.PlanName, sub.Price, sub.DailyQuota, sub.RewardPerVideo, sub.ActivatedAt, sub.ExpiresAt)
	return err
}

// SetBlocked soft-blocks or unblocks an account. Accounts are never deleted.
func (r *AccountRepo) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET is_blocked = $2, updated_at = now() WHERE id = $1`, id, blocked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountRepo) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var planID *uuid.UUID
	var planName *string
	var planPrice, planReward decimal.NullDecimal
	var planQuota *int
	var activatedAt, expiresAt *time.Time
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &a.IsBlocked, &a.Balance,
		&a.ReferralCode, &a.ReferredBy,
		&planID, &planName, &planPrice, &planQuota, &planReward, &activatedAt, &expiresAt,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if planID != nil {
		a.Plan = &models.Subscription{
			PlanID:         *planID,
			PlanName:       *planName,
			Price:          planPrice.Decimal,
			DailyQuota:     *planQuota,
			RewardPerVideo: planReward.Decimal,
			ActivatedAt:    *activatedAt,
			ExpiresAt:      *expiresAt,
		}
	}
	return &a, nil
}
