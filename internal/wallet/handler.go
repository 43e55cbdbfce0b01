package wallet

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/videarn/backend/internal/ledger"
	"github.com/videarn/backend/internal/media"
	"github.com/videarn/backend/internal/middleware"
)

type Handler struct {
	svc   *Service
	media media.Store
	log   *slog.Logger
}

func NewHandler(svc *Service, mediaStore media.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, media: mediaStore, log: log}
}

type depositRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Channel string          `json:"channel"`
	Proof   string          `json:"proof"`
}

// CreateDeposit handles POST /api/v1/wallet/deposits. JSON bodies carry the
// proof as free text; multipart bodies may attach a proof-of-payment image,
// stored through the media store.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req depositRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, `{"error":"invalid form"}`, http.StatusBadRequest)
			return
		}
		amount, err := decimal.NewFromString(r.FormValue("amount"))
		if err != nil {
			http.Error(w, `{"error":"invalid amount"}`, http.StatusBadRequest)
			return
		}
		req.Amount = amount
		req.Channel = r.FormValue("channel")
		req.Proof = r.FormValue("proof")

		if file, _, err := r.FormFile("proof_image"); err == nil {
			defer file.Close()
			url, err := h.media.Save(r.Context(), file, "proofs", media.KindImage)
			if err != nil {
				h.log.Error("store proof image", "error", err)
				http.Error(w, `{"error":"upload failed"}`, http.StatusInternalServerError)
				return
			}
			req.Proof = url
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Channel == "" {
		http.Error(w, `{"error":"channel is required"}`, http.StatusBadRequest)
		return
	}

	created, err := h.svc.RequestDeposit(r.Context(), acc.ID, req.Amount, req.Channel, req.Proof)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type withdrawalRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Channel string          `json:"channel"`
}

// CreateWithdrawal handles POST /api/v1/wallet/withdrawals.
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Channel == "" {
		http.Error(w, `{"error":"channel is required"}`, http.StatusBadRequest)
		return
	}
	created, err := h.svc.RequestWithdrawal(r.Context(), acc.ID, req.Amount, req.Channel)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Ledger handles GET /api/v1/wallet/ledger.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	entries, err := h.svc.History(r.Context(), acc.ID)
	if err != nil {
		h.log.Error("list ledger", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Requests handles GET /api/v1/wallet/requests.
func (h *Handler) Requests(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	reqs, err := h.svc.Requests(r.Context(), acc.ID)
	if err != nil {
		h.log.Error("list wallet requests", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		http.Error(w, `{"error":"amount must be positive"}`, http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, `{"error":"insufficient funds"}`, http.StatusBadRequest)
	case errors.Is(err, ErrAlreadyProcessed):
		http.Error(w, `{"error":"request already processed"}`, http.StatusConflict)
	default:
		h.log.Error("wallet operation failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
