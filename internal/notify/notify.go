// Package notify delivers transactional email through a River job queue.
// Jobs are inserted with InsertTx in the same database transaction as the
// operation they announce, so an email is enqueued if and only if the
// operation committed. Delivery is fire-and-forget: failures are logged and
// retried by River, and never block or fail the primary operation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Email templates.
const (
	TemplateWelcome            = "welcome"
	TemplatePlanPurchased      = "plan_purchased"
	TemplateDepositResolved    = "deposit_resolved"
	TemplateWithdrawalResolved = "withdrawal_resolved"
)

type EmailArgs struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Params   map[string]string `json:"params"`
}

func (EmailArgs) Kind() string { return "send_email" }

// InsertTxFunc enqueues an email job within the given transaction. Wired in
// main as a closure over river.Client.InsertTx.
type InsertTxFunc func(ctx context.Context, tx pgx.Tx, args EmailArgs) error

// EmailWorker posts the rendered payload to an external email service
// webhook. An empty webhook URL drops mail on the floor (local development).
type EmailWorker struct {
	river.WorkerDefaults[EmailArgs]
	webhookURL string
	httpClient *http.Client
	log        *slog.Logger
}

func NewEmailWorker(webhookURL string, log *slog.Logger) *EmailWorker {
	if log == nil {
		log = slog.Default()
	}
	return &EmailWorker{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

func (w *EmailWorker) Work(ctx context.Context, job *river.Job[EmailArgs]) error {
	args := job.Args
	if w.webhookURL == "" {
		w.log.Info("email webhook not configured, dropping", "to", args.To, "template", args.Template)
		return nil
	}

	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver email: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	w.log.Info("email delivered", "to", args.To, "template", args.Template)
	return nil
}
