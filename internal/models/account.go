package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Subscription is the purchase-time snapshot of a plan's terms, embedded in
// the account. Admin edits to the plan catalog never change a running
// subscription: rewards and referral bonuses are always computed from this
// snapshot, not from the current catalog row.
type Subscription struct {
	PlanID         uuid.UUID       `json:"plan_id"`
	PlanName       string          `json:"plan_name"`
	Price          decimal.Decimal `json:"price"`
	DailyQuota     int             `json:"daily_quota"`
	RewardPerVideo decimal.Decimal `json:"reward_per_video"`
	ActivatedAt    time.Time       `json:"activated_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// Active reports whether the subscription is unexpired at t. Expiry is
// evaluated lazily; there is no background job flipping a status flag.
func (s *Subscription) Active(t time.Time) bool {
	return s != nil && s.ExpiresAt.After(t)
}

type Account struct {
	ID           uuid.UUID       `json:"id"`
	Username     string          `json:"username"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	Role         string          `json:"role"`
	IsBlocked    bool            `json:"is_blocked"`
	Balance      decimal.Decimal `json:"balance"`
	ReferralCode string          `json:"referral_code"`
	ReferredBy   *uuid.UUID      `json:"referred_by,omitempty"`
	Plan         *Subscription   `json:"plan,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
