package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/videarn/backend/internal/models"
	"github.com/videarn/backend/internal/notify"
	"github.com/videarn/backend/internal/repository"
)

var (
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrDuplicateUsername   = errors.New("username already taken")
	ErrUnknownReferralCode = errors.New("unknown referral code")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrBlocked             = errors.New("account is blocked")
)

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type AccountStore interface {
	Create(ctx context.Context, tx pgx.Tx, a *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*models.Account, error)
}

// Ledger posts the signup bonus inside the registration transaction.
type Ledger interface {
	Post(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal, kind, description string, ref *uuid.UUID) (*models.LedgerEntry, error)
}

type Service struct {
	db       TxBeginner
	accounts AccountStore
	ledger   Ledger

	secret       []byte
	signupBonus  decimal.Decimal
	enqueueEmail notify.InsertTxFunc
	log          *slog.Logger
}

func NewService(db TxBeginner, accounts AccountStore, ledger Ledger, secret string, signupBonus decimal.Decimal, enqueueEmail notify.InsertTxFunc, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:           db,
		accounts:     accounts,
		ledger:       ledger,
		secret:       []byte(secret),
		signupBonus:  signupBonus,
		enqueueEmail: enqueueEmail,
		log:          log,
	}
}

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Register creates an account with a fresh referral code, credits the
// signup bonus through the ledger, and enqueues the welcome email, all in
// one transaction. referralCode optionally links the new account to its
// referrer; an unknown code is a client error.
func (s *Service) Register(ctx context.Context, username, email, password, referralCode string) (*models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var referredBy *uuid.UUID
	if referralCode != "" {
		referrer, err := s.accounts.GetByReferralCode(ctx, referralCode)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownReferralCode
		}
		if err != nil {
			return nil, err
		}
		referredBy = &referrer.ID
	}

	acc := &models.Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		ReferredBy:   referredBy,
	}

	// A fresh referral code per attempt: a code collision aborts the insert
	// transaction, so the whole write is retried with a new code. Email and
	// username duplicates are terminal.
	for attempt := 0; attempt < 3; attempt++ {
		acc.ReferralCode = newReferralCode()
		if err = s.createAccount(ctx, acc); err == nil {
			return acc, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "accounts_email_key":
				return nil, ErrDuplicateEmail
			case "accounts_username_key":
				return nil, ErrDuplicateUsername
			case "accounts_referral_code_key":
				continue
			}
		}
		return nil, err
	}
	return nil, err
}

// createAccount runs the registration transaction: the account row, the
// signup bonus ledger entry, and the welcome email commit together.
func (s *Service) createAccount(ctx context.Context, acc *models.Account) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.accounts.Create(ctx, tx, acc); err != nil {
		return err
	}

	if s.signupBonus.IsPositive() {
		if _, err := s.ledger.Post(ctx, tx, acc.ID, s.signupBonus, models.EntrySignupBonus, "signup bonus", nil); err != nil {
			return err
		}
		acc.Balance = s.signupBonus
	}

	if s.enqueueEmail != nil {
		err := s.enqueueEmail(ctx, tx, notify.EmailArgs{
			To:       acc.Email,
			Template: notify.TemplateWelcome,
			Params:   map[string]string{"username": acc.Username, "referral_code": acc.ReferralCode},
		})
		if err != nil {
			s.log.Error("enqueue welcome email", "error", err, "account", acc.ID)
		}
	}

	return tx.Commit(ctx)
}

func (s *Service) Login(ctx context.Context, email, password string) (string, *models.Account, error) {
	acc, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if acc.IsBlocked {
		return "", nil, ErrBlocked
	}
	token, err := s.issueToken(acc.ID, acc.Role)
	if err != nil {
		return "", nil, err
	}
	return token, acc, nil
}

func (s *Service) issueToken(accountID uuid.UUID, role string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken returns the account id and role carried by a bearer token.
func (s *Service) ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, c.Role, nil
}

// Account loads the current account state for the middleware.
func (s *Service) Account(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func newReferralCode() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is unrecoverable for code generation.
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
