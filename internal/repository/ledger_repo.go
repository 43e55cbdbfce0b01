package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/videarn/backend/internal/models"
)

const entryColumns = `id, account_id, amount, kind, status, description, ref, created_at`

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Insert appends an entry. Entries are never updated except for resolving a
// pending status; corrections are new offsetting entries.
func (r *LedgerRepo) Insert(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, account_id, amount, kind, status, description, ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.AccountID, e.Amount, e.Kind, e.Status, e.Description, e.Ref).Scan(&e.CreatedAt)
}

// GetForUpdate locks an entry row while a pending deposit/withdrawal is
// being resolved.
func (r *LedgerRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, id).
		Scan(&e.ID, &e.AccountID, &e.Amount, &e.Kind, &e.Status, &e.Description, &e.Ref, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SetStatus resolves a pending entry. Amount, kind and account are immutable.
func (r *LedgerRepo) SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	tag, err := tx.Exec(ctx, `UPDATE ledger_entries SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *LedgerRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Kind, &e.Status, &e.Description, &e.Ref, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

// SumCompleted returns the sum of completed entry amounts for an account.
// The reconciliation invariant is that this always equals accounts.balance.
func (r *LedgerRepo) SumCompleted(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1 AND status = 'completed'
	`, accountID).Scan(&sum)
	return sum, err
}
