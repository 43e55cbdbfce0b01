package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger entry kinds. Every balance change is justified by exactly one entry
// of one of these kinds.
const (
	EntrySignupBonus        = "signup_bonus"
	EntryDeposit            = "deposit"
	EntryWithdrawal         = "withdrawal"
	EntryPlanPurchase       = "plan_purchase"
	EntryDailyReward        = "daily_reward"
	EntryReferralPlanBonus  = "referral_plan_bonus"
	EntryReferralDailyBonus = "referral_daily_bonus"
	EntryAdminCredit        = "admin_credit"
	EntryAdminDebit         = "admin_debit"
)

// Ledger entry statuses. Only deposit and withdrawal entries are ever
// pending; every other kind is written completed. The account balance is
// the sum of its completed entries at all times.
const (
	EntryPending   = "pending"
	EntryCompleted = "completed"
	EntryFailed    = "failed"
)

// LedgerEntry is append-only. Amount is signed: credits positive, debits
// negative. Status is the only field that ever changes (pending entries are
// resolved to completed or failed); corrections are new offsetting entries.
type LedgerEntry struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	Ref         *uuid.UUID      `json:"ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
