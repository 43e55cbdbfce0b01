package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is an admin-authored catalog entry. TotalReward is derived
// (daily_quota * reward_per_video * duration_days) and recomputed on edit.
type Plan struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	DailyQuota     int             `json:"daily_quota"`
	DurationDays   int             `json:"duration_days"`
	RewardPerVideo decimal.Decimal `json:"reward_per_video"`
	TotalReward    decimal.Decimal `json:"total_reward"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ComputeTotalReward derives the headline payout of a plan over its lifetime.
func (p *Plan) ComputeTotalReward() decimal.Decimal {
	perDay := p.RewardPerVideo.Mul(decimal.NewFromInt(int64(p.DailyQuota)))
	return perDay.Mul(decimal.NewFromInt(int64(p.DurationDays)))
}
