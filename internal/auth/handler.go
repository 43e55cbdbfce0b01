package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/videarn/backend/internal/models"
)

type RegisterRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token   string          `json:"token"`
	Account *models.Account `json:"account"`
}

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Email == "" || len(req.Password) < 6 {
		http.Error(w, `{"error":"username, email and a password of at least 6 characters are required"}`, http.StatusBadRequest)
		return
	}
	acc, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password, req.ReferralCode)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrDuplicateUsername):
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusConflict)
		case errors.Is(err, ErrUnknownReferralCode):
			http.Error(w, `{"error":"unknown referral code"}`, http.StatusBadRequest)
		default:
			h.log.Error("register failed", "error", err)
			http.Error(w, `{"error":"registration failed"}`, http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(acc)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	token, acc, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		case errors.Is(err, ErrBlocked):
			http.Error(w, `{"error":"account is blocked"}`, http.StatusForbidden)
		default:
			h.log.Error("login failed", "error", err)
			http.Error(w, `{"error":"login failed"}`, http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(LoginResponse{Token: token, Account: acc})
}
