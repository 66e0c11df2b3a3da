package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opensource-finance/shikra/internal/alerts"
	"github.com/opensource-finance/shikra/internal/bus"
	"github.com/opensource-finance/shikra/internal/domain"
	"github.com/opensource-finance/shikra/internal/engine"
	"github.com/opensource-finance/shikra/internal/history"
)

func newTestWorker(t *testing.T) (*Worker, *engine.Engine, domain.EventBus) {
	t.Helper()

	b := bus.NewChannelBus(16)
	t.Cleanup(func() { b.Close() })

	eng := engine.New(engine.Deps{
		Store:  history.NewStore(nil, 0),
		Ledger: alerts.NewLedger(0),
	})

	return New(b, eng, nil), eng, b
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorkerAssessesSubmittedTransactions(t *testing.T) {
	w, eng, b := newTestWorker(t)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	payload, _ := json.Marshal(SubmittedTransaction{
		UserID: "+254700111222",
		Transaction: domain.Transaction{
			Type:   domain.TypeDebit,
			Amount: 1500,
		},
	})

	if err := b.Publish(ctx, domain.TopicTransactionSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return eng.AssessmentsTotal() == 1
	})
}

func TestWorkerDropsMalformedPayload(t *testing.T) {
	w, eng, b := newTestWorker(t)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := b.Publish(ctx, domain.TopicTransactionSubmitted, []byte("not-json")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// A valid event after the malformed one proves the worker survived it.
	payload, _ := json.Marshal(SubmittedTransaction{
		UserID: "+254700111222",
		Transaction: domain.Transaction{
			Type:   domain.TypeDebit,
			Amount: 800,
		},
	})
	if err := b.Publish(ctx, domain.TopicTransactionSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return eng.AssessmentsTotal() == 1
	})
}

func TestWorkerDropsInvalidTransaction(t *testing.T) {
	w, eng, b := newTestWorker(t)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	payload, _ := json.Marshal(SubmittedTransaction{
		UserID: "+254700111222",
		Transaction: domain.Transaction{
			Type:   domain.TypeDebit,
			Amount: -100,
		},
	})
	if err := b.Publish(ctx, domain.TopicTransactionSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	valid, _ := json.Marshal(SubmittedTransaction{
		UserID: "+254700111222",
		Transaction: domain.Transaction{
			Type:   domain.TypeDebit,
			Amount: 300,
		},
	})
	if err := b.Publish(ctx, domain.TopicTransactionSubmitted, valid); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return eng.AssessmentsTotal() == 1
	})
}

func TestWorkerRequiresBus(t *testing.T) {
	eng := engine.New(engine.Deps{
		Store:  history.NewStore(nil, 0),
		Ledger: alerts.NewLedger(0),
	})

	w := New(nil, eng, nil)
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error when bus is nil")
	}
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	w, _, _ := newTestWorker(t)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}
