// Package referral posts secondary bonuses to the account that referred the
// acting user. Bonuses ride in the same transaction as the primary operation
// so referee and referrer effects commit or roll back together, but a
// missing referrer never fails the primary operation.
package referral

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/videarn/backend/internal/models"
	"github.com/videarn/backend/internal/repository"
)

// Poster is the slice of the ledger service the referral engine needs.
type Poster interface {
	Post(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal, kind, description string, ref *uuid.UUID) (*models.LedgerEntry, error)
}

type Service struct {
	ledger    Poster
	planRate  decimal.Decimal
	videoRate decimal.Decimal
	log       *slog.Logger
}

// NewService creates the referral engine. planRate and videoRate are
// fractions (0.10 pays the referrer 10% of the plan price).
func NewService(ledger Poster, planRate, videoRate decimal.Decimal, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{ledger: ledger, planRate: planRate, videoRate: videoRate, log: log}
}

// OnPlanPurchase pays the buyer's referrer a share of the price actually
// paid, never of the plan's current catalog price.
func (s *Service) OnPlanPurchase(ctx context.Context, tx pgx.Tx, buyer *models.Account, price decimal.Decimal) error {
	return s.post(ctx, tx, buyer, price.Mul(s.planRate), models.EntryReferralPlanBonus,
		"referral bonus: plan purchase by "+buyer.Username)
}

// OnVideoReward pays the watcher's referrer a share of the per-video reward
// from the watcher's subscription snapshot.
func (s *Service) OnVideoReward(ctx context.Context, tx pgx.Tx, watcher *models.Account, reward decimal.Decimal) error {
	return s.post(ctx, tx, watcher, reward.Mul(s.videoRate), models.EntryReferralDailyBonus,
		"referral bonus: daily reward earned by "+watcher.Username)
}

func (s *Service) post(ctx context.Context, tx pgx.Tx, referee *models.Account, bonus decimal.Decimal, kind, description string) error {
	if referee.ReferredBy == nil {
		return nil
	}
	bonus = bonus.Round(2)
	if !bonus.IsPositive() {
		return nil
	}
	refereeID := referee.ID
	_, err := s.ledger.Post(ctx, tx, *referee.ReferredBy, bonus, kind, description, &refereeID)
	if errors.Is(err, repository.ErrNotFound) {
		// Referrer account is gone; the primary operation still succeeds.
		s.log.Warn("referrer missing, bonus skipped", "referee", referee.ID, "referrer", *referee.ReferredBy)
		return nil
	}
	return err
}
