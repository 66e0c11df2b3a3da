// Package worker consumes submitted transactions from the event bus and
// runs them through the assessment engine. It serves producers that cannot
// wait on the HTTP round trip; the assessment side effects (history append,
// alert ledger, persistence) are identical to the synchronous path.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/shikra/internal/domain"
	"github.com/opensource-finance/shikra/internal/engine"
)

// SubmittedTransaction is the payload published to TopicTransactionSubmitted.
type SubmittedTransaction struct {
	UserID      string             `json:"userId"`
	Transaction domain.Transaction `json:"transaction"`
}

// Worker subscribes to submitted transactions and assesses them.
type Worker struct {
	bus    domain.EventBus
	engine *engine.Engine
	logger *slog.Logger
	sub    domain.Subscription
}

// New creates a worker. Start must be called before it consumes anything.
func New(bus domain.EventBus, eng *engine.Engine, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		bus:    bus,
		engine: eng,
		logger: logger,
	}
}

// Start subscribes to the transaction topic.
func (w *Worker) Start(ctx context.Context) error {
	if w.bus == nil {
		return fmt.Errorf("worker: event bus is required")
	}

	sub, err := w.bus.Subscribe(ctx, domain.TopicTransactionSubmitted, w.handle)
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe: %w", err)
	}
	w.sub = sub

	w.logger.Info("worker started", "topic", domain.TopicTransactionSubmitted)
	return nil
}

// Stop unsubscribes from the transaction topic.
func (w *Worker) Stop() error {
	if w.sub == nil {
		return nil
	}
	err := w.sub.Unsubscribe()
	w.sub = nil
	w.logger.Info("worker stopped")
	return err
}

func (w *Worker) handle(ctx context.Context, msg *domain.Message) error {
	var event SubmittedTransaction
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.logger.Error("worker: malformed transaction event",
			"msg_id", msg.ID,
			"error", err,
		)
		// Malformed payloads are dropped, not retried.
		return nil
	}

	assessment, err := w.engine.Assess(ctx, event.UserID, event.Transaction)
	if err != nil {
		w.logger.Error("worker: assessment failed",
			"msg_id", msg.ID,
			"user_id", event.UserID,
			"error", err,
		)
		return nil
	}

	w.logger.Debug("worker: transaction assessed",
		"msg_id", msg.ID,
		"user_id", event.UserID,
		"assessment_id", assessment.ID,
		"risk_score", assessment.RiskScore,
		"action", assessment.Action,
	)
	return nil
}
