// Package admin serves the back-office surface: catalog management,
// account moderation, and the deposit/withdrawal reconciliation queue. Thin
// adapters only; every balance effect still goes through the wallet and
// ledger services.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/videarn/backend/internal/ledger"
	"github.com/videarn/backend/internal/media"
	"github.com/videarn/backend/internal/middleware"
	"github.com/videarn/backend/internal/models"
	"github.com/videarn/backend/internal/repository"
	"github.com/videarn/backend/internal/wallet"
)

type PlanRepo interface {
	Create(ctx context.Context, p *models.Plan) error
	Update(ctx context.Context, p *models.Plan) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Plan, error)
}

type VideoRepo interface {
	Create(ctx context.Context, v *models.Video) error
	List(ctx context.Context) ([]*models.Video, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type AccountRepo interface {
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error
	List(ctx context.Context) ([]*models.Account, error)
}

// Reconciler is the slice of the wallet service the admin surface drives.
type Reconciler interface {
	Approve(ctx context.Context, requestID, adminID uuid.UUID) (*models.WalletRequest, error)
	Reject(ctx context.Context, requestID, adminID uuid.UUID, reason string) (*models.WalletRequest, error)
	Adjust(ctx context.Context, adminID, accountID uuid.UUID, amount decimal.Decimal, reason string) (*models.LedgerEntry, error)
	PendingRequests(ctx context.Context, kind string) ([]*models.WalletRequest, error)
}

type Handler struct {
	plans    PlanRepo
	videos   VideoRepo
	accounts AccountRepo
	wallet   Reconciler
	media    media.Store
	log      *slog.Logger
}

func NewHandler(plans PlanRepo, videos VideoRepo, accounts AccountRepo, reconciler Reconciler, mediaStore media.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{plans: plans, videos: videos, accounts: accounts, wallet: reconciler, media: mediaStore, log: log}
}

// --- plans ---

type planRequest struct {
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	DailyQuota     int             `json:"daily_quota"`
	DurationDays   int             `json:"duration_days"`
	RewardPerVideo decimal.Decimal `json:"reward_per_video"`
	IsActive       *bool           `json:"is_active"`
}

func (p *planRequest) validate() string {
	switch {
	case p.Name == "":
		return "name is required"
	case !p.Price.IsPositive():
		return "price must be positive"
	case p.DailyQuota <= 0:
		return "daily_quota must be positive"
	case p.DurationDays <= 0:
		return "duration_days must be positive"
	case p.RewardPerVideo.IsNegative():
		return "reward_per_video must not be negative"
	}
	return ""
}

func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, `{"error":"`+msg+`"}`, http.StatusBadRequest)
		return
	}
	plan := &models.Plan{
		ID:             uuid.New(),
		Name:           req.Name,
		Price:          req.Price,
		DailyQuota:     req.DailyQuota,
		DurationDays:   req.DurationDays,
		RewardPerVideo: req.RewardPerVideo,
		IsActive:       true,
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}
	plan.TotalReward = plan.ComputeTotalReward()
	if err := h.plans.Create(r.Context(), plan); err != nil {
		h.log.Error("create plan", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// UpdatePlan edits the catalog entry. Already-purchased subscriptions keep
// their snapshot terms.
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid plan id"}`, http.StatusBadRequest)
		return
	}
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, `{"error":"`+msg+`"}`, http.StatusBadRequest)
		return
	}
	plan, err := h.plans.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	plan.Name = req.Name
	plan.Price = req.Price
	plan.DailyQuota = req.DailyQuota
	plan.DurationDays = req.DurationDays
	plan.RewardPerVideo = req.RewardPerVideo
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}
	plan.TotalReward = plan.ComputeTotalReward()
	if err := h.plans.Update(r.Context(), plan); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context(), false)
	if err != nil {
		h.log.Error("list plans", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// --- videos ---

func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	video := &models.Video{ID: uuid.New(), IsActive: true}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(256 << 20); err != nil {
			http.Error(w, `{"error":"invalid form"}`, http.StatusBadRequest)
			return
		}
		video.Title = r.FormValue("title")
		file, _, err := r.FormFile("video")
		if err != nil {
			http.Error(w, `{"error":"video file is required"}`, http.StatusBadRequest)
			return
		}
		defer file.Close()
		url, err := h.media.Save(r.Context(), file, "videos", media.KindVideo)
		if err != nil {
			h.log.Error("store video asset", "error", err)
			http.Error(w, `{"error":"upload failed"}`, http.StatusInternalServerError)
			return
		}
		video.MediaURL = url
	} else {
		var req struct {
			Title           string `json:"title"`
			MediaURL        string `json:"media_url"`
			DurationSeconds int    `json:"duration_seconds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
		video.Title = req.Title
		video.MediaURL = req.MediaURL
		video.DurationSeconds = req.DurationSeconds
	}

	if video.Title == "" || video.MediaURL == "" {
		http.Error(w, `{"error":"title and media are required"}`, http.StatusBadRequest)
		return
	}
	if err := h.videos.Create(r.Context(), video); err != nil {
		h.log.Error("create video", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, video)
}

func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.videos.List(r.Context())
	if err != nil {
		h.log.Error("list videos", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, videos)
}

func (h *Handler) SetVideoActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid video id"}`, http.StatusBadRequest)
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.videos.SetActive(r.Context(), id, req.Active); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- reconciliation queue ---

func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != models.RequestDeposit && kind != models.RequestWithdrawal {
		http.Error(w, `{"error":"kind must be deposit or withdrawal"}`, http.StatusBadRequest)
		return
	}
	reqs, err := h.wallet.PendingRequests(r.Context(), kind)
	if err != nil {
		h.log.Error("list pending requests", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	admin := middleware.AccountFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid request id"}`, http.StatusBadRequest)
		return
	}
	resolved, err := h.wallet.Approve(r.Context(), id, admin.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	admin := middleware.AccountFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid request id"}`, http.StatusBadRequest)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	resolved, err := h.wallet.Reject(r.Context(), id, admin.ID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

// --- accounts ---

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		h.log.Error("list accounts", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) SetAccountBlocked(blocked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, `{"error":"invalid account id"}`, http.StatusBadRequest)
			return
		}
		if err := h.accounts.SetBlocked(r.Context(), id, blocked); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	admin := middleware.AccountFromCtx(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid account id"}`, http.StatusBadRequest)
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	entry, err := h.wallet.Adjust(r.Context(), admin.ID, id, req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wallet.ErrAlreadyProcessed):
		http.Error(w, `{"error":"request already processed"}`, http.StatusConflict)
	case errors.Is(err, wallet.ErrInvalidAmount):
		http.Error(w, `{"error":"invalid amount"}`, http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, `{"error":"insufficient funds"}`, http.StatusBadRequest)
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	default:
		h.log.Error("admin operation failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
