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

const requestColumns = `id, account_id, kind, amount, channel, proof, status, reason, ledger_entry_id, resolved_by, resolved_at, created_at`

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, req *models.WalletRequest) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallet_requests (id, account_id, kind, amount, channel, proof, status, ledger_entry_id)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		RETURNING created_at
	`, req.ID, req.AccountID, req.Kind, req.Amount, req.Channel, req.Proof, req.LedgerEntryID).Scan(&req.CreatedAt)
}

// GetForUpdate locks the request row so two admins resolving the same
// request serialize; the second sees the terminal status.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.WalletRequest, error) {
	return scanRequest(tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM wallet_requests WHERE id = $1 FOR UPDATE`, id))
}

func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WalletRequest, error) {
	return scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM wallet_requests WHERE id = $1`, id))
}

// Resolve moves a pending request to its terminal status.
func (r *WalletRepo) Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, reason string, adminID uuid.UUID, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE wallet_requests SET status = $2, reason = $3, resolved_by = $4, resolved_at = $5
		WHERE id = $1 AND status = 'pending'
	`, id, status, reason, adminID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *WalletRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.WalletRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM wallet_requests WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *WalletRepo) ListByStatus(ctx context.Context, kind, status string) ([]*models.WalletRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM wallet_requests WHERE kind = $1 AND status = $2 ORDER BY created_at ASC
	`, kind, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func scanRequest(row pgx.Row) (*models.WalletRequest, error) {
	var req models.WalletRequest
	err := row.Scan(&req.ID, &req.AccountID, &req.Kind, &req.Amount, &req.Channel, &req.Proof,
		&req.Status, &req.Reason, &req.LedgerEntryID, &req.ResolvedBy, &req.ResolvedAt, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func scanRequests(rows pgx.Rows) ([]*models.WalletRequest, error) {
	var list []*models.WalletRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, req)
	}
	return list, rows.Err()
}
