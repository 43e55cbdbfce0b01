package entitlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/videarn/backend/internal/ledger"
	"github.com/videarn/backend/internal/models"
	"github.com/videarn/backend/internal/referral"
	"github.com/videarn/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// In-memory repositories. The ledger and referral services are the real
// ones, so these tests exercise the actual money paths end to end.
// ---------------------------------------------------------------------------

type memAccounts struct {
	mu   sync.Mutex
	accs map[uuid.UUID]*models.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accs: make(map[uuid.UUID]*models.Account)}
}

func (m *memAccounts) add(a *models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accs[a.ID] = a
}

func (m *memAccounts) get(t *testing.T, id uuid.UUID) *models.Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accs[id]
	if !ok {
		t.Fatalf("account %s not found", id)
	}
	cp := *a
	return &cp
}

func (m *memAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return m.GetByID(ctx, id)
}

func (m *memAccounts) SetSubscription(_ context.Context, _ pgx.Tx, id uuid.UUID, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accs[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Plan = sub
	return nil
}

func (m *memAccounts) AddBalance(_ context.Context, _ pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accs[id]
	if !ok {
		return decimal.Decimal{}, repository.ErrNotFound
	}
	a.Balance = a.Balance.Add(amount)
	return a.Balance, nil
}

func (m *memAccounts) DeductBalance(_ context.Context, _ pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accs[id]
	if !ok || a.Balance.LessThan(amount) {
		return decimal.Decimal{}, pgx.ErrNoRows
	}
	a.Balance = a.Balance.Sub(amount)
	return a.Balance, nil
}

type memPlans struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*models.Plan
}

func newMemPlans() *memPlans { return &memPlans{plans: make(map[uuid.UUID]*models.Plan)} }

func (m *memPlans) add(p *models.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
}

func (m *memPlans) GetByID(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type watchKey struct {
	account uuid.UUID
	video   uuid.UUID
	day     string
}

type memVideos struct {
	mu      sync.Mutex
	order   []uuid.UUID
	videos  map[uuid.UUID]*models.Video
	watches map[watchKey]bool
}

func newMemVideos() *memVideos {
	return &memVideos{videos: make(map[uuid.UUID]*models.Video), watches: make(map[watchKey]bool)}
}

func (m *memVideos) add(v *models.Video) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = append(m.order, v.ID)
	m.videos[v.ID] = v
}

func dayKey(day time.Time) string { return day.Format("2006-01-02") }

func (m *memVideos) GetByID(_ context.Context, id uuid.UUID) (*models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memVideos) SelectDaily(_ context.Context, accountID uuid.UUID, day time.Time, limit int) ([]*models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Video
	for _, id := range m.order {
		if len(out) >= limit {
			break
		}
		v := m.videos[id]
		if !v.IsActive || m.watches[watchKey{accountID, id, dayKey(day)}] {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memVideos) countDay(accountID uuid.UUID, day time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.watches {
		if k.account == accountID && k.day == dayKey(day) {
			n++
		}
	}
	return n
}

func (m *memVideos) CountWatches(_ context.Context, _ pgx.Tx, accountID uuid.UUID, day time.Time) (int, error) {
	return m.countDay(accountID, day), nil
}

func (m *memVideos) CountWatchesToday(_ context.Context, accountID uuid.UUID, day time.Time) (int, error) {
	return m.countDay(accountID, day), nil
}

func (m *memVideos) WatchExists(_ context.Context, _ pgx.Tx, accountID, videoID uuid.UUID, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watches[watchKey{accountID, videoID, dayKey(day)}], nil
}

func (m *memVideos) InsertWatch(_ context.Context, _ pgx.Tx, w *models.VideoWatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches[watchKey{w.AccountID, w.VideoID, dayKey(w.BusinessDay)}] = true
	return nil
}

func (m *memVideos) ClearDay(_ context.Context, _ pgx.Tx, accountID uuid.UUID, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.watches {
		if k.account == accountID && k.day == dayKey(day) {
			delete(m.watches, k)
		}
	}
	return nil
}

type memEntries struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func (m *memEntries) Insert(_ context.Context, _ pgx.Tx, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memEntries) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memEntries) SetStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = status
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memEntries) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.AccountID == accountID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memEntries) SumCompleted(_ context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, e := range m.entries {
		if e.AccountID == accountID && e.Status == models.EntryCompleted {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (m *memEntries) countKind(accountID uuid.UUID, kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.AccountID == accountID && e.Kind == kind {
			n++
		}
	}
	return n
}

// --- noopTx satisfies pgx.Tx for test use; nothing here touches it. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type memDB struct{}

func (memDB) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	accounts *memAccounts
	plans    *memPlans
	videos   *memVideos
	entries  *memEntries
	ledger   *ledger.Service
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		accounts: newMemAccounts(),
		plans:    newMemPlans(),
		videos:   newMemVideos(),
		entries:  &memEntries{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.ledger = ledger.NewService(f.accounts, f.entries)
	refSvc := referral.NewService(f.ledger, decimal.NewFromFloat(0.10), decimal.NewFromFloat(0.05), log)
	f.svc = NewService(memDB{}, f.accounts, f.plans, f.videos, f.ledger, refSvc, nil, time.UTC, log)
	return f
}

func (f *fixture) at(t time.Time) { f.svc.now = func() time.Time { return t } }

// seedBalance funds an account through the ledger so the reconciliation
// invariant holds from the start.
func (f *fixture) seedBalance(t *testing.T, id uuid.UUID, amount string) {
	t.Helper()
	if amount == "0" {
		return
	}
	if _, err := f.ledger.Post(context.Background(), noopTx{}, id, dec(amount), models.EntryAdminCredit, "seed", nil); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
}

func (f *fixture) newAccount(t *testing.T, balance string, referredBy *uuid.UUID) *models.Account {
	t.Helper()
	a := &models.Account{ID: uuid.New(), Username: "u-" + uuid.NewString()[:8], Role: models.RoleUser, Balance: decimal.Zero, ReferredBy: referredBy}
	f.accounts.add(a)
	f.seedBalance(t, a.ID, balance)
	return a
}

func (f *fixture) newPlan(t *testing.T, price string, quota, days int, reward string) *models.Plan {
	t.Helper()
	p := &models.Plan{ID: uuid.New(), Name: "Starter", Price: dec(price), DailyQuota: quota, DurationDays: days, RewardPerVideo: dec(reward), IsActive: true}
	p.TotalReward = p.ComputeTotalReward()
	f.plans.add(p)
	return p
}

func (f *fixture) newVideo() *models.Video {
	v := &models.Video{ID: uuid.New(), Title: "clip", IsActive: true}
	f.videos.add(v)
	return v
}

func (f *fixture) assertReconciled(t *testing.T, id uuid.UUID) {
	t.Helper()
	sum, _ := f.entries.SumCompleted(context.Background(), id)
	if got := f.accounts.get(t, id).Balance; !got.Equal(sum) {
		t.Errorf("reconciliation invariant violated: balance %s, completed sum %s", got, sum)
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var baseTime = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// BuyPlan
// ---------------------------------------------------------------------------

func TestBuyPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	referrer := f.newAccount(t, "0", nil)
	buyer := f.newAccount(t, "200", &referrer.ID)
	plan := f.newPlan(t, "100", 3, 30, "5")

	sub, err := f.svc.BuyPlan(ctx, buyer.ID, plan.ID)
	if err != nil {
		t.Fatalf("BuyPlan: %v", err)
	}

	if !sub.ExpiresAt.Equal(baseTime.AddDate(0, 0, 30)) {
		t.Errorf("expiry: got %s, want %s", sub.ExpiresAt, baseTime.AddDate(0, 0, 30))
	}
	if got := f.accounts.get(t, buyer.ID).Balance; !got.Equal(dec("100")) {
		t.Errorf("buyer balance: got %s, want 100", got)
	}
	if got := f.accounts.get(t, referrer.ID).Balance; !got.Equal(dec("10")) {
		t.Errorf("referrer balance: got %s, want 10", got)
	}
	if n := f.entries.countKind(buyer.ID, models.EntryPlanPurchase); n != 1 {
		t.Errorf("plan purchase entries: got %d, want 1", n)
	}
	if n := f.entries.countKind(referrer.ID, models.EntryReferralPlanBonus); n != 1 {
		t.Errorf("referral bonus entries: got %d, want 1", n)
	}
	snap := f.accounts.get(t, buyer.ID).Plan
	if snap == nil || !snap.RewardPerVideo.Equal(dec("5")) || snap.DailyQuota != 3 {
		t.Errorf("subscription snapshot wrong: %+v", snap)
	}
	f.assertReconciled(t, buyer.ID)
	f.assertReconciled(t, referrer.ID)
}

func TestBuyPlan_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	buyer := f.newAccount(t, "50", nil)
	plan := f.newPlan(t, "100", 3, 30, "5")

	_, err := f.svc.BuyPlan(ctx, buyer.ID, plan.ID)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := f.accounts.get(t, buyer.ID).Balance; !got.Equal(dec("50")) {
		t.Errorf("balance: got %s, want 50", got)
	}
	if f.accounts.get(t, buyer.ID).Plan != nil {
		t.Error("subscription set despite failed purchase")
	}
}

func TestBuyPlan_WhileActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	buyer := f.newAccount(t, "500", nil)
	plan := f.newPlan(t, "100", 3, 30, "5")

	if _, err := f.svc.BuyPlan(ctx, buyer.ID, plan.ID); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	if _, err := f.svc.BuyPlan(ctx, buyer.ID, plan.ID); !errors.Is(err, ErrPlanStillActive) {
		t.Fatalf("expected ErrPlanStillActive, got %v", err)
	}
	// Only one debit went through.
	if got := f.accounts.get(t, buyer.ID).Balance; !got.Equal(dec("400")) {
		t.Errorf("balance: got %s, want 400", got)
	}
}

func TestBuyPlan_AfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	buyer := f.newAccount(t, "500", nil)
	plan := f.newPlan(t, "100", 3, 30, "5")

	if _, err := f.svc.BuyPlan(ctx, buyer.ID, plan.ID); err != nil {
		t.Fatalf("first purchase: %v", err)
	}

	f.at(baseTime.AddDate(0, 0, 31))
	if _, err := f.svc.BuyPlan(ctx, buyer.ID, plan.ID); err != nil {
		t.Fatalf("repurchase after expiry: %v", err)
	}
	if got := f.accounts.get(t, buyer.ID).Balance; !got.Equal(dec("300")) {
		t.Errorf("balance: got %s, want 300", got)
	}
}

func TestBuyPlan_ResetsDailyWatchSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	watcher := f.newAccount(t, "500", nil)
	plan := f.newPlan(t, "100", 3, 1, "5")
	if _, err := f.svc.BuyPlan(ctx, watcher.ID, plan.ID); err != nil {
		t.Fatalf("first purchase: %v", err)
	}

	// Next morning, still under the one-day plan: fill the quota.
	f.at(baseTime.Add(20 * time.Hour))
	video := f.newVideo()
	for _, v := range []*models.Video{video, f.newVideo(), f.newVideo()} {
		if _, err := f.svc.WatchVideo(ctx, watcher.ID, v.ID); err != nil {
			t.Fatalf("fill quota: %v", err)
		}
	}

	// The plan expires at noon; repurchase an hour later, same business day.
	f.at(baseTime.Add(25 * time.Hour))
	if _, err := f.svc.BuyPlan(ctx, watcher.ID, plan.ID); err != nil {
		t.Fatalf("repurchase: %v", err)
	}

	// The purchase reset the daily watch set: the full quota is available
	// and the morning's videos are creditable again.
	res, err := f.svc.WatchVideo(ctx, watcher.ID, video.ID)
	if err != nil {
		t.Fatalf("watch after repurchase: %v", err)
	}
	if res.WatchedToday != 1 || res.Quota != 3 {
		t.Errorf("fresh quota after repurchase: %+v", res)
	}
	f.assertReconciled(t, watcher.ID)
}

func TestBuyPlan_InactivePlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	buyer := f.newAccount(t, "500", nil)
	plan := f.newPlan(t, "100", 3, 30, "5")
	plan.IsActive = false
	f.plans.add(plan)

	if _, err := f.svc.BuyPlan(ctx, buyer.ID, plan.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for retired plan, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// WatchVideo
// ---------------------------------------------------------------------------

func buyStarter(t *testing.T, f *fixture, buyer *models.Account) *models.Plan {
	t.Helper()
	plan := f.newPlan(t, "100", 3, 30, "5")
	if _, err := f.svc.BuyPlan(context.Background(), buyer.ID, plan.ID); err != nil {
		t.Fatalf("BuyPlan: %v", err)
	}
	return plan
}

func TestWatchVideo_RewardAndReferral(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	referrer := f.newAccount(t, "0", nil)
	watcher := f.newAccount(t, "100", &referrer.ID)
	buyStarter(t, f, watcher)
	video := f.newVideo()

	res, err := f.svc.WatchVideo(ctx, watcher.ID, video.ID)
	if err != nil {
		t.Fatalf("WatchVideo: %v", err)
	}
	if !res.Reward.Equal(dec("5")) || res.WatchedToday != 1 || res.Quota != 3 {
		t.Errorf("result: %+v", res)
	}
	if got := f.accounts.get(t, watcher.ID).Balance; !got.Equal(dec("5")) {
		t.Errorf("watcher balance: got %s, want 5", got)
	}
	// Referrer got 10 from the purchase, then 5% of the 5 reward.
	if got := f.accounts.get(t, referrer.ID).Balance; !got.Equal(dec("10.25")) {
		t.Errorf("referrer balance: got %s, want 10.25", got)
	}
	if n := f.entries.countKind(referrer.ID, models.EntryReferralDailyBonus); n != 1 {
		t.Errorf("referral daily bonus entries: got %d, want 1", n)
	}
	f.assertReconciled(t, watcher.ID)
	f.assertReconciled(t, referrer.ID)
}

func TestWatchVideo_QuotaBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	watcher := f.newAccount(t, "100", nil)
	buyStarter(t, f, watcher)

	videos := []*models.Video{f.newVideo(), f.newVideo(), f.newVideo(), f.newVideo()}
	for i := 0; i < 3; i++ {
		if _, err := f.svc.WatchVideo(ctx, watcher.ID, videos[i].ID); err != nil {
			t.Fatalf("watch %d: %v", i, err)
		}
	}

	_, err := f.svc.WatchVideo(ctx, watcher.ID, videos[3].ID)
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
	if n := f.entries.countKind(watcher.ID, models.EntryDailyReward); n != 3 {
		t.Errorf("reward entries: got %d, want 3", n)
	}
	if got := f.accounts.get(t, watcher.ID).Balance; !got.Equal(dec("15")) {
		t.Errorf("balance: got %s, want 15", got)
	}
	f.assertReconciled(t, watcher.ID)
}

func TestWatchVideo_SameVideoTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	watcher := f.newAccount(t, "100", nil)
	buyStarter(t, f, watcher)
	video := f.newVideo()

	if _, err := f.svc.WatchVideo(ctx, watcher.ID, video.ID); err != nil {
		t.Fatalf("first watch: %v", err)
	}
	if _, err := f.svc.WatchVideo(ctx, watcher.ID, video.ID); !errors.Is(err, ErrAlreadyCredited) {
		t.Fatalf("expected ErrAlreadyCredited, got %v", err)
	}
	if n := f.entries.countKind(watcher.ID, models.EntryDailyReward); n != 1 {
		t.Errorf("reward entries: got %d, want 1", n)
	}
}

func TestWatchVideo_NoActivePlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	watcher := f.newAccount(t, "100", nil)
	video := f.newVideo()

	if _, err := f.svc.WatchVideo(ctx, watcher.ID, video.ID); !errors.Is(err, ErrNoActivePlan) {
		t.Fatalf("expected ErrNoActivePlan, got %v", err)
	}
}

func TestWatchVideo_InactiveVideo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	watcher := f.newAccount(t, "100", nil)
	buyStarter(t, f, watcher)
	video := f.newVideo()
	video.IsActive = false
	f.videos.add(video)

	if _, err := f.svc.WatchVideo(ctx, watcher.ID, video.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for retired video, got %v", err)
	}
}

func TestWatchVideo_QuotaResetsNextBusinessDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	watcher := f.newAccount(t, "100", nil)
	buyStarter(t, f, watcher)
	video := f.newVideo()

	videos := []*models.Video{video, f.newVideo(), f.newVideo()}
	for _, v := range videos {
		if _, err := f.svc.WatchVideo(ctx, watcher.ID, v.ID); err != nil {
			t.Fatalf("day 1 watch: %v", err)
		}
	}

	// Tomorrow the quota is fresh and yesterday's video is creditable again.
	f.at(baseTime.Add(24 * time.Hour))
	res, err := f.svc.WatchVideo(ctx, watcher.ID, video.ID)
	if err != nil {
		t.Fatalf("day 2 watch: %v", err)
	}
	if res.WatchedToday != 1 {
		t.Errorf("watched today: got %d, want 1", res.WatchedToday)
	}
	f.assertReconciled(t, watcher.ID)
}

func TestWatchVideo_BusinessDayFollowsPlatformTimezone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// Platform midnight is 22:00 UTC in a UTC+2 zone.
	f.svc.businessTZ = time.FixedZone("UTC+2", 2*3600)

	watcher := f.newAccount(t, "100", nil)
	f.at(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	buyStarter(t, f, watcher)
	video := f.newVideo()

	f.at(time.Date(2025, 6, 10, 21, 59, 0, 0, time.UTC))
	if _, err := f.svc.WatchVideo(ctx, watcher.ID, video.ID); err != nil {
		t.Fatalf("watch before platform midnight: %v", err)
	}

	// Two minutes later it is the next business day even though the UTC
	// date has not changed.
	f.at(time.Date(2025, 6, 10, 22, 1, 0, 0, time.UTC))
	if _, err := f.svc.WatchVideo(ctx, watcher.ID, video.ID); err != nil {
		t.Fatalf("watch after platform midnight: %v", err)
	}
	if n := f.entries.countKind(watcher.ID, models.EntryDailyReward); n != 2 {
		t.Errorf("reward entries: got %d, want 2", n)
	}
}

func TestWatchVideo_SnapshotShieldsCatalogEdits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	watcher := f.newAccount(t, "100", nil)
	plan := buyStarter(t, f, watcher)

	// An admin edit to the catalog must not change the running subscription.
	plan.RewardPerVideo = dec("999")
	f.plans.add(plan)

	res, err := f.svc.WatchVideo(ctx, watcher.ID, f.newVideo().ID)
	if err != nil {
		t.Fatalf("WatchVideo: %v", err)
	}
	if !res.Reward.Equal(dec("5")) {
		t.Errorf("reward: got %s, want the snapshotted 5", res.Reward)
	}
}

func TestWatchVideo_MissingReferrer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	ghost := uuid.New()
	watcher := f.newAccount(t, "100", &ghost)
	buyStarter(t, f, watcher)

	// The referrer account does not exist; the watch still succeeds.
	if _, err := f.svc.WatchVideo(ctx, watcher.ID, f.newVideo().ID); err != nil {
		t.Fatalf("WatchVideo with missing referrer: %v", err)
	}
	f.assertReconciled(t, watcher.ID)
}

// ---------------------------------------------------------------------------
// DailyVideos
// ---------------------------------------------------------------------------

func TestDailyVideos_NoPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	watcher := f.newAccount(t, "100", nil)
	f.newVideo()

	sel, err := f.svc.DailyVideos(ctx, watcher.ID)
	if err != nil {
		t.Fatalf("DailyVideos: %v", err)
	}
	if sel.HasPlan {
		t.Error("HasPlan true without a subscription")
	}
}

func TestDailyVideos_ExcludesWatchedAndCapsAtRemaining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	watcher := f.newAccount(t, "100", nil)
	buyStarter(t, f, watcher)

	watched := f.newVideo()
	for i := 0; i < 4; i++ {
		f.newVideo()
	}
	if _, err := f.svc.WatchVideo(ctx, watcher.ID, watched.ID); err != nil {
		t.Fatalf("WatchVideo: %v", err)
	}

	sel, err := f.svc.DailyVideos(ctx, watcher.ID)
	if err != nil {
		t.Fatalf("DailyVideos: %v", err)
	}
	if !sel.HasPlan || sel.WatchedToday != 1 || sel.Quota != 3 {
		t.Errorf("selection header: %+v", sel)
	}
	if len(sel.Videos) != 2 {
		t.Fatalf("videos: got %d, want remaining quota of 2", len(sel.Videos))
	}
	for _, v := range sel.Videos {
		if v.ID == watched.ID {
			t.Error("selection includes a video already watched today")
		}
	}
}

func TestDailyVideos_QuotaMet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.at(baseTime)

	watcher := f.newAccount(t, "100", nil)
	buyStarter(t, f, watcher)
	for i := 0; i < 3; i++ {
		if _, err := f.svc.WatchVideo(ctx, watcher.ID, f.newVideo().ID); err != nil {
			t.Fatalf("watch %d: %v", i, err)
		}
	}

	sel, err := f.svc.DailyVideos(ctx, watcher.ID)
	if err != nil {
		t.Fatalf("DailyVideos: %v", err)
	}
	if len(sel.Videos) != 0 || sel.WatchedToday != 3 {
		t.Errorf("expected empty selection at quota, got %+v", sel)
	}
}
