// Package wallet drives the deposit/withdrawal reconciliation workflow.
// Requests are pending until an admin resolves them; approved and rejected
// are terminal. Balance effects are deferred: a deposit credits on approval,
// a withdrawal debits on approval after a final balance re-check. The
// deferred discipline keeps the reconciliation invariant (balance equals the
// sum of completed entries) true at every instant.
package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/videarn/backend/internal/ledger"
	"github.com/videarn/backend/internal/models"
	"github.com/videarn/backend/internal/notify"
)

var (
	// ErrAlreadyProcessed is returned when resolving a request that is no
	// longer pending. No ledger entry is ever produced in that case.
	ErrAlreadyProcessed = errors.New("request already processed")

	// ErrInvalidAmount is returned for non-positive request amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// insufficientAtApproval is recorded on withdrawals auto-rejected because
// the balance dropped between request and approval.
const insufficientAtApproval = "insufficient balance at approval time"

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type AccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
}

type RequestRepo interface {
	Create(ctx context.Context, tx pgx.Tx, req *models.WalletRequest) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.WalletRequest, error)
	Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, reason string, adminID uuid.UUID, at time.Time) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.WalletRequest, error)
	ListByStatus(ctx context.Context, kind, status string) ([]*models.WalletRequest, error)
}

// Ledger is the slice of the ledger service used by reconciliation.
type Ledger interface {
	Post(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal, kind, description string, ref *uuid.UUID) (*models.LedgerEntry, error)
	PostPending(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal, kind, description string, ref *uuid.UUID) (*models.LedgerEntry, error)
	Complete(ctx context.Context, tx pgx.Tx, entryID uuid.UUID) (*models.LedgerEntry, error)
	Fail(ctx context.Context, tx pgx.Tx, entryID uuid.UUID) error
	History(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
}

type Service struct {
	db       TxBeginner
	accounts AccountRepo
	requests RequestRepo
	ledger   Ledger

	enqueueEmail notify.InsertTxFunc
	log          *slog.Logger

	now func() time.Time
}

func NewService(db TxBeginner, accounts AccountRepo, requests RequestRepo, ledger Ledger, enqueueEmail notify.InsertTxFunc, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:           db,
		accounts:     accounts,
		requests:     requests,
		ledger:       ledger,
		enqueueEmail: enqueueEmail,
		log:          log,
		now:          time.Now,
	}
}

// RequestDeposit records a deposit claim with its proof of payment. No
// balance effect until an admin approves it.
func (s *Service) RequestDeposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, channel, proof string) (*models.WalletRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	req := &models.WalletRequest{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      models.RequestDeposit,
		Amount:    amount,
		Channel:   channel,
		Proof:     proof,
		Status:    models.RequestPending,
	}
	entry, err := s.ledger.PostPending(ctx, tx, accountID, amount, models.EntryDeposit,
		"deposit via "+channel, &req.ID)
	if err != nil {
		return nil, err
	}
	req.LedgerEntryID = entry.ID
	if err := s.requests.Create(ctx, tx, req); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return req, nil
}

// RequestWithdrawal records a payout request. The balance must cover the
// amount at request time, but nothing is deducted until approval; the
// approval path re-checks.
func (s *Service) RequestWithdrawal(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, channel string) (*models.WalletRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	acc, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.Balance.LessThan(amount) {
		return nil, ledger.ErrInsufficientFunds
	}

	req := &models.WalletRequest{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      models.RequestWithdrawal,
		Amount:    amount,
		Channel:   channel,
		Status:    models.RequestPending,
	}
	entry, err := s.ledger.PostPending(ctx, tx, accountID, amount.Neg(), models.EntryWithdrawal,
		"withdrawal via "+channel, &req.ID)
	if err != nil {
		return nil, err
	}
	req.LedgerEntryID = entry.ID
	if err := s.requests.Create(ctx, tx, req); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return req, nil
}

// Approve resolves a pending request in the requester's favor. Deposits
// credit the balance. Withdrawals re-check funds and debit; a balance that
// no longer covers the amount auto-rejects with an explicit reason instead
// of failing silently. Resolving a non-pending request returns
// ErrAlreadyProcessed and produces no ledger entry.
func (s *Service) Approve(ctx context.Context, requestID, adminID uuid.UUID) (*models.WalletRequest, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	req, err := s.requests.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestPending {
		return nil, ErrAlreadyProcessed
	}

	now := s.now()
	status, reason := models.RequestApproved, ""

	// Lock the account row first so the balance effect serializes with any
	// concurrent spend.
	if _, err := s.accounts.GetByIDForUpdate(ctx, tx, req.AccountID); err != nil {
		return nil, err
	}

	_, err = s.ledger.Complete(ctx, tx, req.LedgerEntryID)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrInsufficientFunds) && req.Kind == models.RequestWithdrawal:
		if err := s.ledger.Fail(ctx, tx, req.LedgerEntryID); err != nil {
			return nil, err
		}
		status, reason = models.RequestRejected, insufficientAtApproval
	default:
		return nil, err
	}

	if err := s.requests.Resolve(ctx, tx, requestID, status, reason, adminID, now); err != nil {
		return nil, err
	}
	s.notifyResolved(ctx, tx, req, status, reason)

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	req.Status, req.Reason = status, reason
	req.ResolvedBy, req.ResolvedAt = &adminID, &now
	return req, nil
}

// Reject resolves a pending request against the requester. No balance
// effect for either kind; the pending entry is marked failed.
func (s *Service) Reject(ctx context.Context, requestID, adminID uuid.UUID, reason string) (*models.WalletRequest, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	req, err := s.requests.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestPending {
		return nil, ErrAlreadyProcessed
	}

	now := s.now()
	if err := s.ledger.Fail(ctx, tx, req.LedgerEntryID); err != nil {
		return nil, err
	}
	if err := s.requests.Resolve(ctx, tx, requestID, models.RequestRejected, reason, adminID, now); err != nil {
		return nil, err
	}
	s.notifyResolved(ctx, tx, req, models.RequestRejected, reason)

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	req.Status, req.Reason = models.RequestRejected, reason
	req.ResolvedBy, req.ResolvedAt = &adminID, &now
	return req, nil
}

// Adjust posts a manual admin correction through the ledger.
func (s *Service) Adjust(ctx context.Context, adminID, accountID uuid.UUID, amount decimal.Decimal, reason string) (*models.LedgerEntry, error) {
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	kind := models.EntryAdminCredit
	if amount.IsNegative() {
		kind = models.EntryAdminDebit
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID); err != nil {
		return nil, err
	}
	// ref stays free for entity correlation; the acting admin is part of
	// the entry's description like a resolution reason.
	description := "adjustment by " + adminID.String() + ": " + reason
	entry, err := s.ledger.Post(ctx, tx, accountID, amount, kind, description, nil)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// History lists the account's ledger entries.
func (s *Service) History(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.ledger.History(ctx, accountID)
}

// Requests lists the account's deposit/withdrawal requests.
func (s *Service) Requests(ctx context.Context, accountID uuid.UUID) ([]*models.WalletRequest, error) {
	return s.requests.ListByAccount(ctx, accountID)
}

// PendingRequests lists unresolved requests of a kind for the admin queue.
func (s *Service) PendingRequests(ctx context.Context, kind string) ([]*models.WalletRequest, error) {
	return s.requests.ListByStatus(ctx, kind, models.RequestPending)
}

func (s *Service) notifyResolved(ctx context.Context, tx pgx.Tx, req *models.WalletRequest, status, reason string) {
	if s.enqueueEmail == nil {
		return
	}
	acc, err := s.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		s.log.Error("lookup account for resolution email", "error", err, "account", req.AccountID)
		return
	}
	template := notify.TemplateDepositResolved
	if req.Kind == models.RequestWithdrawal {
		template = notify.TemplateWithdrawalResolved
	}
	err = s.enqueueEmail(ctx, tx, notify.EmailArgs{
		To:       acc.Email,
		Template: template,
		Params: map[string]string{
			"amount": req.Amount.StringFixed(2),
			"status": status,
			"reason": reason,
		},
	})
	if err != nil {
		s.log.Error("enqueue resolution email", "error", err, "request", req.ID)
	}
}
