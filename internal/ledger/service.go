// Package ledger is the single authority over account balances. Every
// balance change in the system routes through Service.Post or the pending
// entry lifecycle, inside the caller's transaction, so a balance mutation
// and the entry justifying it are never observable apart.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/videarn/backend/internal/models"
)

var (
	// ErrInsufficientFunds is returned when a debit would drive the balance
	// negative. This is the authoritative guard; callers may pre-check but
	// this check decides.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrEntryResolved is returned when completing or failing an entry that
	// is no longer pending.
	ErrEntryResolved = errors.New("ledger entry already resolved")

	// ErrPendingKind is returned when a pending entry is requested for a
	// kind that never goes through reconciliation.
	ErrPendingKind = errors.New("only deposit and withdrawal entries may be pending")
)

// AccountStore is the balance side of the ledger. DeductBalance must refuse
// (with pgx.ErrNoRows) any debit that would leave the balance negative.
type AccountStore interface {
	AddBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	DeductBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}

// EntryStore is the append-only entry log.
type EntryStore interface {
	Insert(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.LedgerEntry, error)
	SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
	SumCompleted(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
}

type Service struct {
	accounts AccountStore
	entries  EntryStore
}

func NewService(accounts AccountStore, entries EntryStore) *Service {
	return &Service{accounts: accounts, entries: entries}
}

// Post applies a signed amount to the account balance and appends the
// completed entry justifying it, both inside the caller's transaction.
// Negative amounts fail with ErrInsufficientFunds if the balance would go
// below zero; no partial state survives (the caller rolls back).
func (s *Service) Post(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal, kind, description string, ref *uuid.UUID) (*models.LedgerEntry, error) {
	if err := s.apply(ctx, tx, accountID, amount); err != nil {
		return nil, err
	}
	e := &models.LedgerEntry{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      amount,
		Kind:        kind,
		Status:      models.EntryCompleted,
		Description: description,
		Ref:         ref,
	}
	if err := s.entries.Insert(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return e, nil
}

// PostPending appends an entry awaiting admin reconciliation. It has no
// balance effect until Complete is called. Only deposit and withdrawal
// entries may ever be pending.
func (s *Service) PostPending(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal, kind, description string, ref *uuid.UUID) (*models.LedgerEntry, error) {
	if kind != models.EntryDeposit && kind != models.EntryWithdrawal {
		return nil, ErrPendingKind
	}
	e := &models.LedgerEntry{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      amount,
		Kind:        kind,
		Status:      models.EntryPending,
		Description: description,
		Ref:         ref,
	}
	if err := s.entries.Insert(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("append pending ledger entry: %w", err)
	}
	return e, nil
}

// Complete applies a pending entry's balance effect and marks it completed.
// A pending withdrawal that no longer fits the balance fails with
// ErrInsufficientFunds and stays pending (the caller decides what to do).
func (s *Service) Complete(ctx context.Context, tx pgx.Tx, entryID uuid.UUID) (*models.LedgerEntry, error) {
	e, err := s.entries.GetForUpdate(ctx, tx, entryID)
	if err != nil {
		return nil, err
	}
	if e.Status != models.EntryPending {
		return nil, ErrEntryResolved
	}
	if err := s.apply(ctx, tx, e.AccountID, e.Amount); err != nil {
		return nil, err
	}
	if err := s.entries.SetStatus(ctx, tx, entryID, models.EntryCompleted); err != nil {
		return nil, err
	}
	e.Status = models.EntryCompleted
	return e, nil
}

// Fail marks a pending entry failed with no balance effect.
func (s *Service) Fail(ctx context.Context, tx pgx.Tx, entryID uuid.UUID) error {
	e, err := s.entries.GetForUpdate(ctx, tx, entryID)
	if err != nil {
		return err
	}
	if e.Status != models.EntryPending {
		return ErrEntryResolved
	}
	return s.entries.SetStatus(ctx, tx, entryID, models.EntryFailed)
}

// History lists an account's entries, newest first.
func (s *Service) History(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.entries.ListByAccount(ctx, accountID)
}

// CompletedSum is the reconciliation read: it must equal the account balance
// at every point in time.
func (s *Service) CompletedSum(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return s.entries.SumCompleted(ctx, accountID)
}

func (s *Service) apply(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		if _, err := s.accounts.DeductBalance(ctx, tx, accountID, amount.Neg()); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInsufficientFunds
			}
			return err
		}
		return nil
	}
	_, err := s.accounts.AddBalance(ctx, tx, accountID, amount)
	return err
}
