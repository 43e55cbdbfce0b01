// Package entitlement owns the plan lifecycle and the daily watch quota.
// Plan expiry is evaluated lazily wherever it matters; the daily reset is a
// business-day predicate, not a stored set, so it is idempotent and safe
// under concurrent requests by construction.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/videarn/backend/internal/models"
	"github.com/videarn/backend/internal/notify"
	"github.com/videarn/backend/internal/repository"
)

var (
	// ErrNoActivePlan is returned when a quota-gated operation is attempted
	// without an unexpired subscription.
	ErrNoActivePlan = errors.New("no active plan")

	// ErrQuotaExhausted is returned when today's watch set already fills the
	// plan's daily quota.
	ErrQuotaExhausted = errors.New("daily quota exhausted")

	// ErrAlreadyCredited is returned when the video is already in today's
	// watch set.
	ErrAlreadyCredited = errors.New("video already credited today")

	// ErrPlanStillActive is returned when buying a plan while an unexpired
	// one is running.
	ErrPlanStillActive = errors.New("an active plan already exists")
)

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type AccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	SetSubscription(ctx context.Context, tx pgx.Tx, id uuid.UUID, sub *models.Subscription) error
}

type PlanRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type VideoRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	SelectDaily(ctx context.Context, accountID uuid.UUID, day time.Time, limit int) ([]*models.Video, error)
	CountWatches(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, day time.Time) (int, error)
	CountWatchesToday(ctx context.Context, accountID uuid.UUID, day time.Time) (int, error)
	WatchExists(ctx context.Context, tx pgx.Tx, accountID, videoID uuid.UUID, day time.Time) (bool, error)
	InsertWatch(ctx context.Context, tx pgx.Tx, w *models.VideoWatch) error
	ClearDay(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, day time.Time) error
}

// Ledger is the slice of the ledger service used here.
type Ledger interface {
	Post(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal, kind, description string, ref *uuid.UUID) (*models.LedgerEntry, error)
}

// Referral triggers secondary bonuses inside the primary transaction.
type Referral interface {
	OnPlanPurchase(ctx context.Context, tx pgx.Tx, buyer *models.Account, price decimal.Decimal) error
	OnVideoReward(ctx context.Context, tx pgx.Tx, watcher *models.Account, reward decimal.Decimal) error
}

type Service struct {
	db       TxBeginner
	accounts AccountRepo
	plans    PlanRepo
	videos   VideoRepo
	ledger   Ledger
	referral Referral

	enqueueEmail notify.InsertTxFunc
	businessTZ   *time.Location
	log          *slog.Logger

	now func() time.Time
}

func NewService(db TxBeginner, accounts AccountRepo, plans PlanRepo, videos VideoRepo, ledger Ledger, referral Referral, enqueueEmail notify.InsertTxFunc, businessTZ *time.Location, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:           db,
		accounts:     accounts,
		plans:        plans,
		videos:       videos,
		ledger:       ledger,
		referral:     referral,
		enqueueEmail: enqueueEmail,
		businessTZ:   businessTZ,
		log:          log,
		now:          time.Now,
	}
}

// businessDay truncates t to the calendar date in the platform timezone.
func (s *Service) businessDay(t time.Time) time.Time {
	y, m, d := t.In(s.businessTZ).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuyPlan purchases a plan, snapshotting its terms onto the account. The
// debit, the snapshot, and the referrer bonus commit in one transaction.
func (s *Service) BuyPlan(ctx context.Context, accountID, planID uuid.UUID) (*models.Subscription, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	acc, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if acc.Plan.Active(now) {
		return nil, ErrPlanStillActive
	}

	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, repository.ErrNotFound
	}

	ref := plan.ID
	if _, err := s.ledger.Post(ctx, tx, accountID, plan.Price.Neg(), models.EntryPlanPurchase,
		"plan purchase: "+plan.Name, &ref); err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		PlanID:         plan.ID,
		PlanName:       plan.Name,
		Price:          plan.Price,
		DailyQuota:     plan.DailyQuota,
		RewardPerVideo: plan.RewardPerVideo,
		ActivatedAt:    now,
		ExpiresAt:      now.AddDate(0, 0, plan.DurationDays),
	}
	if err := s.accounts.SetSubscription(ctx, tx, accountID, sub); err != nil {
		return nil, err
	}

	// A purchase starts with the full daily quota even when the previous
	// plan was exhausted earlier the same business day.
	if err := s.videos.ClearDay(ctx, tx, accountID, s.businessDay(now)); err != nil {
		return nil, err
	}

	if err := s.referral.OnPlanPurchase(ctx, tx, acc, plan.Price); err != nil {
		return nil, err
	}

	if s.enqueueEmail != nil {
		err := s.enqueueEmail(ctx, tx, notify.EmailArgs{
			To:       acc.Email,
			Template: notify.TemplatePlanPurchased,
			Params:   map[string]string{"plan": plan.Name, "expires_at": sub.ExpiresAt.Format(time.RFC3339)},
		})
		if err != nil {
			s.log.Error("enqueue plan purchase email", "error", err, "account", accountID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

// DailySelection is the result of DailyVideos. HasPlan false is a
// distinguished result, not an error, so the caller can upsell.
type DailySelection struct {
	HasPlan      bool            `json:"has_plan"`
	Videos       []*models.Video `json:"videos"`
	WatchedToday int             `json:"watched_today"`
	Quota        int             `json:"quota"`
}

// DailyVideos selects up to the remaining quota of watchable videos for the
// current business day.
func (s *Service) DailyVideos(ctx context.Context, accountID uuid.UUID) (*DailySelection, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !acc.Plan.Active(now) {
		return &DailySelection{HasPlan: false}, nil
	}

	day := s.businessDay(now)
	watched, err := s.videos.CountWatchesToday(ctx, accountID, day)
	if err != nil {
		return nil, err
	}
	sel := &DailySelection{HasPlan: true, WatchedToday: watched, Quota: acc.Plan.DailyQuota}
	remaining := acc.Plan.DailyQuota - watched
	if remaining <= 0 {
		return sel, nil
	}

	sel.Videos, err = s.videos.SelectDaily(ctx, accountID, day, remaining)
	if err != nil {
		return nil, err
	}
	return sel, nil
}

// RewardResult reports a successful watch credit.
type RewardResult struct {
	Reward       decimal.Decimal `json:"reward"`
	WatchedToday int             `json:"watched_today"`
	Quota        int             `json:"quota"`
}

// WatchVideo credits one daily reward for a video. Marking the video
// watched, posting the reward, and the referrer bonus are one transaction:
// a crash between them is never observable as a half-applied state.
func (s *Service) WatchVideo(ctx context.Context, accountID, videoID uuid.UUID) (*RewardResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	acc, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !acc.Plan.Active(now) {
		return nil, ErrNoActivePlan
	}

	day := s.businessDay(now)
	watched, err := s.videos.CountWatches(ctx, tx, accountID, day)
	if err != nil {
		return nil, err
	}
	if watched >= acc.Plan.DailyQuota {
		return nil, ErrQuotaExhausted
	}

	credited, err := s.videos.WatchExists(ctx, tx, accountID, videoID, day)
	if err != nil {
		return nil, err
	}
	if credited {
		return nil, ErrAlreadyCredited
	}

	video, err := s.videos.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if !video.IsActive {
		return nil, repository.ErrNotFound
	}

	if err := s.videos.InsertWatch(ctx, tx, &models.VideoWatch{
		AccountID:   accountID,
		VideoID:     videoID,
		BusinessDay: day,
		RewardedAt:  now,
	}); err != nil {
		return nil, err
	}

	reward := acc.Plan.RewardPerVideo
	ref := videoID
	if _, err := s.ledger.Post(ctx, tx, accountID, reward, models.EntryDailyReward,
		"daily reward: "+video.Title, &ref); err != nil {
		return nil, err
	}

	if err := s.referral.OnVideoReward(ctx, tx, acc, reward); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &RewardResult{Reward: reward, WatchedToday: watched + 1, Quota: acc.Plan.DailyQuota}, nil
}
