package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet request kinds and statuses. Requests are user-submitted and
// admin-reconciled against externally-reported mobile-money transactions;
// approved/rejected are terminal.
const (
	RequestDeposit    = "deposit"
	RequestWithdrawal = "withdrawal"

	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// WalletRequest is a deposit or withdrawal awaiting admin reconciliation.
// LedgerEntryID points at the pending ledger entry created alongside the
// request; resolving the request resolves that entry in the same transaction.
type WalletRequest struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Kind          string          `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Channel       string          `json:"channel"`
	Proof         string          `json:"proof,omitempty"`
	Status        string          `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	LedgerEntryID uuid.UUID       `json:"ledger_entry_id"`
	ResolvedBy    *uuid.UUID      `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
