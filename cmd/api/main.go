package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/videarn/backend/internal/admin"
	"github.com/videarn/backend/internal/auth"
	"github.com/videarn/backend/internal/config"
	"github.com/videarn/backend/internal/entitlement"
	"github.com/videarn/backend/internal/ledger"
	"github.com/videarn/backend/internal/media"
	"github.com/videarn/backend/internal/middleware"
	"github.com/videarn/backend/internal/notify"
	"github.com/videarn/backend/internal/referral"
	"github.com/videarn/backend/internal/repository"
	"github.com/videarn/backend/internal/router"
	"github.com/videarn/backend/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	if err := repository.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations (job queue tables)
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	// Email enqueue func is set after the River client exists (breaks the
	// init cycle between services and the worker registry).
	var insertMu sync.Mutex
	var insertFn notify.InsertTxFunc
	enqueueEmail := func(ctx context.Context, tx pgx.Tx, args notify.EmailArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	planRepo := repository.NewPlanRepo(pool)
	videoRepo := repository.NewVideoRepo(pool)
	walletRepo := repository.NewWalletRepo(pool)

	// Core services
	ledgerSvc := ledger.NewService(accountRepo, ledgerRepo)
	referralSvc := referral.NewService(ledgerSvc, cfg.PlanReferralRate, cfg.VideoReferralRate, logger)
	entitlementSvc := entitlement.NewService(pool, accountRepo, planRepo, videoRepo, ledgerSvc, referralSvc, enqueueEmail, cfg.BusinessTZ, logger)
	walletSvc := wallet.NewService(pool, accountRepo, walletRepo, ledgerSvc, enqueueEmail, logger)
	authSvc := auth.NewService(pool, accountRepo, ledgerSvc, cfg.JWTSecret, cfg.SignupBonus, enqueueEmail, logger)

	mediaStore := media.NewDiskStore(cfg.UploadDir, cfg.UploadBaseURL)

	// Notifier worker
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewEmailWorker(cfg.EmailWebhookURL, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args notify.EmailArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	// Handlers
	authHandler := auth.NewHandler(authSvc, logger)
	entitlementHandler := entitlement.NewHandler(entitlementSvc, planRepo, logger)
	walletHandler := wallet.NewHandler(walletSvc, mediaStore, logger)
	adminHandler := admin.NewHandler(planRepo, videoRepo, accountRepo, walletSvc, mediaStore, logger)

	authMW := middleware.Auth(authSvc, authSvc)
	apiRouter := router.New(authHandler, entitlementHandler, walletHandler, adminHandler, authMW)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	mux.Handle(cfg.UploadBaseURL+"/", http.StripPrefix(cfg.UploadBaseURL+"/", http.FileServer(http.Dir(cfg.UploadDir))))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (delivers queued email)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	addr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
