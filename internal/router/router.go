package router

import (
	"net/http"

	"github.com/videarn/backend/internal/admin"
	"github.com/videarn/backend/internal/auth"
	"github.com/videarn/backend/internal/entitlement"
	"github.com/videarn/backend/internal/middleware"
	"github.com/videarn/backend/internal/wallet"
)

// New assembles the API under /api/v1. Authentication and the admin role
// check are middleware; handlers translate between HTTP and core operations
// and contain no business rules.
func New(
	authHandler *auth.Handler,
	entitlementHandler *entitlement.Handler,
	walletHandler *wallet.Handler,
	adminHandler *admin.Handler,
	authMW func(http.Handler) http.Handler,
) http.Handler {
	mux := http.NewServeMux()
	const base = "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	user := http.NewServeMux()
	user.HandleFunc("GET "+base+"/account/me", entitlementHandler.Me)
	user.HandleFunc("GET "+base+"/plans", entitlementHandler.ListPlans)
	user.HandleFunc("POST "+base+"/plans/{id}/buy", entitlementHandler.BuyPlan)
	user.HandleFunc("GET "+base+"/videos/daily", entitlementHandler.DailyVideos)
	user.HandleFunc("POST "+base+"/videos/{id}/watch", entitlementHandler.WatchVideo)
	user.HandleFunc("POST "+base+"/wallet/deposits", walletHandler.CreateDeposit)
	user.HandleFunc("POST "+base+"/wallet/withdrawals", walletHandler.CreateWithdrawal)
	user.HandleFunc("GET "+base+"/wallet/ledger", walletHandler.Ledger)
	user.HandleFunc("GET "+base+"/wallet/requests", walletHandler.Requests)

	adm := http.NewServeMux()
	adm.HandleFunc("GET "+base+"/admin/plans", adminHandler.ListPlans)
	adm.HandleFunc("POST "+base+"/admin/plans", adminHandler.CreatePlan)
	adm.HandleFunc("PUT "+base+"/admin/plans/{id}", adminHandler.UpdatePlan)
	adm.HandleFunc("GET "+base+"/admin/videos", adminHandler.ListVideos)
	adm.HandleFunc("POST "+base+"/admin/videos", adminHandler.CreateVideo)
	adm.HandleFunc("PUT "+base+"/admin/videos/{id}/active", adminHandler.SetVideoActive)
	adm.HandleFunc("GET "+base+"/admin/requests", adminHandler.ListPendingRequests)
	adm.HandleFunc("PUT "+base+"/admin/requests/{id}/approve", adminHandler.ApproveRequest)
	adm.HandleFunc("PUT "+base+"/admin/requests/{id}/reject", adminHandler.RejectRequest)
	adm.HandleFunc("GET "+base+"/admin/accounts", adminHandler.ListAccounts)
	adm.HandleFunc("POST "+base+"/admin/accounts/{id}/block", adminHandler.SetAccountBlocked(true))
	adm.HandleFunc("POST "+base+"/admin/accounts/{id}/unblock", adminHandler.SetAccountBlocked(false))
	adm.HandleFunc("POST "+base+"/admin/accounts/{id}/adjust", adminHandler.AdjustBalance)

	mux.Handle(base+"/admin/", authMW(middleware.RequireAdmin(adm)))
	mux.Handle(base+"/", authMW(user))

	return mux
}
