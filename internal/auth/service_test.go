package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/videarn/backend/internal/models"
	"github.com/videarn/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// In-memory account store. Uniqueness violations are reported the way
// Postgres does, as *pgconn.PgError with code 23505, so the constraint
// mapping in Register is exercised for real.
// ---------------------------------------------------------------------------

type memAccounts struct {
	mu   sync.Mutex
	accs map[uuid.UUID]*models.Account

	// codeCollisions makes the next n inserts fail on the referral code
	// unique constraint.
	codeCollisions int
	createCalls    int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accs: make(map[uuid.UUID]*models.Account)}
}

func (m *memAccounts) Create(_ context.Context, _ pgx.Tx, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	for _, existing := range m.accs {
		if existing.Email == a.Email {
			return &pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"}
		}
		if existing.Username == a.Username {
			return &pgconn.PgError{Code: "23505", ConstraintName: "accounts_username_key"}
		}
	}
	if m.codeCollisions > 0 {
		m.codeCollisions--
		return &pgconn.PgError{Code: "23505", ConstraintName: "accounts_referral_code_key"}
	}
	cp := *a
	m.accs[a.ID] = &cp
	return nil
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

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accs {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memAccounts) GetByReferralCode(_ context.Context, code string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accs {
		if a.ReferralCode == code {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memAccounts) setBlocked(id uuid.UUID, blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accs[id].IsBlocked = blocked
}

// memLedger records posted entries; auth only ever credits the signup bonus.
type memLedger struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func (m *memLedger) Post(_ context.Context, _ pgx.Tx, accountID uuid.UUID, amount decimal.Decimal, kind, description string, ref *uuid.UUID) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &models.LedgerEntry{ID: uuid.New(), AccountID: accountID, Amount: amount, Kind: kind, Status: models.EntryCompleted, Description: description, Ref: ref}
	m.entries = append(m.entries, e)
	return e, nil
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

func newTestService() (*Service, *memAccounts, *memLedger) {
	accounts := newMemAccounts()
	ledger := &memLedger{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(memDB{}, accounts, ledger, "test-secret", decimal.NewFromInt(50), nil, log)
	return svc, accounts, ledger
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRegister_SignupBonus(t *testing.T) {
	ctx := context.Background()
	svc, _, ledger := newTestService()

	acc, err := svc.Register(ctx, "alice", "alice@example.com", "hunter22", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acc.ReferralCode == "" {
		t.Error("no referral code assigned")
	}
	if !acc.Balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balance: got %s, want 50", acc.Balance)
	}
	if len(ledger.entries) != 1 || ledger.entries[0].Kind != models.EntrySignupBonus {
		t.Errorf("expected one signup_bonus entry, got %+v", ledger.entries)
	}
	if acc.PasswordHash == "hunter22" {
		t.Error("password stored in the clear")
	}
}

func TestRegister_ReferralCode(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	referrer, err := svc.Register(ctx, "alice", "alice@example.com", "hunter22", "")
	if err != nil {
		t.Fatalf("register referrer: %v", err)
	}

	referee, err := svc.Register(ctx, "bob", "bob@example.com", "hunter22", referrer.ReferralCode)
	if err != nil {
		t.Fatalf("register referee: %v", err)
	}
	if referee.ReferredBy == nil || *referee.ReferredBy != referrer.ID {
		t.Errorf("referred_by: got %v, want %s", referee.ReferredBy, referrer.ID)
	}
}

func TestRegister_UnknownReferralCode(t *testing.T) {
	ctx := context.Background()
	svc, _, ledger := newTestService()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "hunter22", "nope1234")
	if !errors.Is(err, ErrUnknownReferralCode) {
		t.Fatalf("expected ErrUnknownReferralCode, got %v", err)
	}
	if len(ledger.entries) != 0 {
		t.Error("bonus posted despite failed registration")
	}
}

func TestRegister_ReferralCodeCollisionRetries(t *testing.T) {
	ctx := context.Background()
	svc, accounts, ledger := newTestService()
	accounts.codeCollisions = 2

	acc, err := svc.Register(ctx, "alice", "alice@example.com", "hunter22", "")
	if err != nil {
		t.Fatalf("Register despite code collisions: %v", err)
	}
	if acc.ReferralCode == "" {
		t.Error("no referral code assigned")
	}
	if accounts.createCalls != 3 {
		t.Errorf("create attempts: got %d, want 3", accounts.createCalls)
	}
	// Only the successful attempt posted the bonus.
	if len(ledger.entries) != 1 {
		t.Errorf("ledger entries: got %d, want 1", len(ledger.entries))
	}
}

func TestRegister_Duplicates(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	if _, err := svc.Register(ctx, "alice", "alice@example.com", "hunter22", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice2", "alice@example.com", "hunter22", ""); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate email: got %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "alice2@example.com", "hunter22", ""); !errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("duplicate username: got %v", err)
	}
}

func TestLogin_TokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	acc, err := svc.Register(ctx, "alice", "alice@example.com", "hunter22", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	token, logged, err := svc.Login(ctx, "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if logged.ID != acc.ID {
		t.Errorf("logged in as %s, want %s", logged.ID, acc.ID)
	}

	id, role, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != acc.ID || role != models.RoleUser {
		t.Errorf("claims: got (%s, %s), want (%s, %s)", id, role, acc.ID, models.RoleUser)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	if _, err := svc.Register(ctx, "alice", "alice@example.com", "hunter22", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v", err)
	}
}

func TestLogin_Blocked(t *testing.T) {
	ctx := context.Background()
	svc, accounts, _ := newTestService()

	acc, err := svc.Register(ctx, "alice", "alice@example.com", "hunter22", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	accounts.setBlocked(acc.ID, true)

	if _, _, err := svc.Login(ctx, "alice@example.com", "hunter22"); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	if _, err := svc.Register(ctx, "alice", "alice@example.com", "hunter22", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, _, err := svc.Login(ctx, "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	other := NewService(memDB{}, newMemAccounts(), &memLedger{}, "other-secret", decimal.Zero, nil, nil)
	if _, _, err := other.ValidateToken(ctx, token); err == nil {
		t.Error("token signed with a different secret validated")
	}
}
