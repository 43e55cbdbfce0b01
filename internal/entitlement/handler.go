package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/videarn/backend/internal/ledger"
	"github.com/videarn/backend/internal/middleware"
	"github.com/videarn/backend/internal/models"
	"github.com/videarn/backend/internal/repository"
)

// PlanLister is the read side of the plan catalog for the public listing.
type PlanLister interface {
	List(ctx context.Context, activeOnly bool) ([]*models.Plan, error)
}

type Handler struct {
	svc   *Service
	plans PlanLister
	log   *slog.Logger
}

func NewHandler(svc *Service, plans PlanLister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, plans: plans, log: log}
}

// ListPlans handles GET /api/v1/plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context(), true)
	if err != nil {
		h.log.Error("list plans", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// Me handles GET /api/v1/account/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// BuyPlan handles POST /api/v1/plans/{id}/buy.
func (h *Handler) BuyPlan(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	planID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid plan id"}`, http.StatusBadRequest)
		return
	}
	sub, err := h.svc.BuyPlan(r.Context(), acc.ID, planID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// DailyVideos handles GET /api/v1/videos/daily.
func (h *Handler) DailyVideos(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	sel, err := h.svc.DailyVideos(r.Context(), acc.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// WatchVideo handles POST /api/v1/videos/{id}/watch.
func (h *Handler) WatchVideo(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	videoID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid video id"}`, http.StatusBadRequest)
		return
	}
	result, err := h.svc.WatchVideo(r.Context(), acc.ID, videoID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeError maps business-rule errors to client statuses; anything
// unexpected is logged and becomes a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoActivePlan),
		errors.Is(err, ErrQuotaExhausted),
		errors.Is(err, ErrAlreadyCredited),
		errors.Is(err, ErrPlanStillActive):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusConflict)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, `{"error":"insufficient funds"}`, http.StatusBadRequest)
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	default:
		h.log.Error("entitlement operation failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
