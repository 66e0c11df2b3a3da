package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/shikra/internal/alerts"
	"github.com/opensource-finance/shikra/internal/domain"
	"github.com/opensource-finance/shikra/internal/history"
	"github.com/opensource-finance/shikra/internal/screening"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(clock domain.Clock) *Engine {
	return New(Deps{
		Store:  history.NewStore(clock, 0),
		Ledger: alerts.NewLedger(0),
		Clock:  clock,
	})
}

func TestAssessRejectsInvalidInput(t *testing.T) {
	e := newTestEngine(&fakeClock{now: time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	cases := []struct {
		name   string
		userID string
		tx     domain.Transaction
	}{
		{"missing user", "", domain.Transaction{Type: domain.TypeDebit, Amount: 100}},
		{"bad type", "u1", domain.Transaction{Type: "WIRE", Amount: 100}},
		{"zero amount", "u1", domain.Transaction{Type: domain.TypeDebit, Amount: 0}},
		{"negative amount", "u1", domain.Transaction{Type: domain.TypeDebit, Amount: -50}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Assess(ctx, tc.userID, tc.tx)
			if !errors.Is(err, domain.ErrInvalidTransaction) {
				t.Errorf("err = %v, want ErrInvalidTransaction", err)
			}
		})
	}

	// Rejected input must not create history.
	if got := e.store.Size(); got != 0 {
		t.Errorf("store size = %d, want 0", got)
	}
}

func TestAssessFirstTransactionApproves(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)}
	e := newTestEngine(clock)

	a, err := e.Assess(context.Background(), "user-1", domain.Transaction{
		Type:   domain.TypeDebit,
		Amount: 1000,
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	// 0.25*10 + 0.20*5 + 0.05*40 + 0.10*5 = 6
	if a.RiskScore != 6 {
		t.Errorf("RiskScore = %d, want 6", a.RiskScore)
	}
	if a.RiskLevel != domain.RiskLow || a.Action != domain.ActionApprove {
		t.Errorf("level/action = %s/%s, want LOW/APPROVE", a.RiskLevel, a.Action)
	}
	if a.ShouldBlock || a.ShouldVerify {
		t.Error("low risk assessment must not set block or verify flags")
	}
	if a.AlertID != "" {
		t.Errorf("AlertID = %q, want none", a.AlertID)
	}
	// Only the maturity factor scores above the surfacing floor.
	if len(a.Factors) != 1 || a.Factors[0].Factor != "Account Maturity" {
		t.Errorf("Factors = %+v, want only Account Maturity", a.Factors)
	}

	// The transaction is committed to history regardless of verdict.
	p := e.UserRiskProfile("user-1")
	if p.TransactionCount != 1 {
		t.Errorf("TransactionCount = %d, want 1", p.TransactionCount)
	}
}

func TestAssessHighRiskRaisesAlert(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)}
	e := newTestEngine(clock)
	ctx := context.Background()

	// Establish a tight amount distribution with a rapid burst.
	amounts := []float64{900, 1000, 1100, 900, 1000, 1100, 900, 1000, 1100, 1000}
	for _, amt := range amounts {
		if _, err := e.Assess(ctx, "user-1", domain.Transaction{Type: domain.TypeDebit, Amount: amt}); err != nil {
			t.Fatalf("Assess prior: %v", err)
		}
		clock.Advance(20 * time.Second)
	}

	a, err := e.Assess(ctx, "user-1", domain.Transaction{
		Type:      domain.TypeDebit,
		Amount:    995_000,
		Recipient: "+254700999888",
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	// Anomaly 85, velocity 90, time 15 (known hour), new recipient 70,
	// daily limit 80, structuring 0, maturity 35: weighted 61.75.
	if a.RiskScore != 62 {
		t.Errorf("RiskScore = %d, want 62", a.RiskScore)
	}
	if a.RiskLevel != domain.RiskHigh || a.Action != domain.ActionRequireVerification {
		t.Errorf("level/action = %s/%s, want HIGH/REQUIRE_VERIFICATION", a.RiskLevel, a.Action)
	}
	if !a.ShouldVerify || a.ShouldBlock {
		t.Errorf("flags = block:%v verify:%v, want verify only", a.ShouldBlock, a.ShouldVerify)
	}
	if a.AlertID == "" {
		t.Fatal("AlertID not set for score above alert threshold")
	}
	if a.Factors[0].Factor != "Amount Anomaly" {
		t.Errorf("primary factor = %q, want Amount Anomaly", a.Factors[0].Factor)
	}

	alert, ok := e.ledger.Get(a.AlertID)
	if !ok {
		t.Fatal("alert not recorded in ledger")
	}
	if alert.Resolved {
		t.Error("HIGH alert marked resolved")
	}
	if alert.RiskScore != a.RiskScore || alert.UserID != "user-1" {
		t.Errorf("alert = %+v", alert)
	}
}

func TestAssessMediumAlertAutoResolves(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 2, 58, 0, 0, time.UTC)}
	e := newTestEngine(clock)
	ctx := context.Background()

	// A burst of identical small debits, then a larger transfer to a new
	// recipient at an hour the user has no history for.
	for i := 0; i < 10; i++ {
		if _, err := e.Assess(ctx, "user-1", domain.Transaction{Type: domain.TypeDebit, Amount: 1000}); err != nil {
			t.Fatalf("Assess prior: %v", err)
		}
		clock.Advance(10 * time.Second)
	}
	clock.Advance(80 * time.Second) // now 03:01, still inside the velocity window

	a, err := e.Assess(ctx, "user-1", domain.Transaction{
		Type:      domain.TypeDebit,
		Amount:    150_000,
		Recipient: "+254700999888",
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	// Anomaly 50, velocity 90, time 55, new recipient 70, daily 5,
	// structuring 0, maturity 35: weighted 51.5.
	if a.RiskScore != 52 {
		t.Fatalf("RiskScore = %d, want 52", a.RiskScore)
	}
	if a.RiskLevel != domain.RiskMedium || a.Action != domain.ActionFlagForReview {
		t.Errorf("level/action = %s/%s, want MEDIUM/FLAG_FOR_REVIEW", a.RiskLevel, a.Action)
	}
	if a.AlertID == "" {
		t.Fatal("AlertID not set for score above alert threshold")
	}

	alert, ok := e.ledger.Get(a.AlertID)
	if !ok {
		t.Fatal("alert not in ledger")
	}
	// Below the HIGH boundary the alert is kept for audit but needs no
	// operator follow-up.
	if !alert.Resolved {
		t.Error("sub-HIGH alert not auto-resolved")
	}
}

func TestScreeningEscalatesActionOnly(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)}

	screener, err := screening.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	err = screener.LoadRule(&domain.ScreenRule{
		ID:         "watchlist",
		Name:       "sanctioned corridor",
		Expression: `recipient.startsWith("+850")`,
		Action:     domain.ActionBlock,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadRule: %v", err)
	}

	e := New(Deps{
		Store:    history.NewStore(clock, 0),
		Ledger:   alerts.NewLedger(0),
		Screener: screener,
		Clock:    clock,
	})

	a, err := e.Assess(context.Background(), "user-1", domain.Transaction{
		Type:      domain.TypeDebit,
		Amount:    500,
		Recipient: "+850123456",
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	// The numeric score stays low; only the action escalates.
	if a.RiskScore >= 30 {
		t.Errorf("RiskScore = %d, want below 30", a.RiskScore)
	}
	if a.RiskLevel != domain.RiskLow {
		t.Errorf("RiskLevel = %s, want LOW", a.RiskLevel)
	}
	if a.Action != domain.ActionBlock || !a.ShouldBlock {
		t.Errorf("action = %s block=%v, want BLOCK", a.Action, a.ShouldBlock)
	}
	if len(a.ScreenHits) != 1 || a.ScreenHits[0].RuleID != "watchlist" {
		t.Errorf("ScreenHits = %+v", a.ScreenHits)
	}
	// Score below the alert threshold raises no alert even when blocked.
	if a.AlertID != "" {
		t.Errorf("AlertID = %q, want none", a.AlertID)
	}
}

func TestAssessConcurrentSameUser(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)}
	e := newTestEngine(clock)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Assess(context.Background(), "user-1", domain.Transaction{
				Type:   domain.TypeDebit,
				Amount: 1000,
			})
			if err != nil {
				t.Errorf("Assess: %v", err)
			}
		}()
	}
	wg.Wait()

	p := e.UserRiskProfile("user-1")
	if p.TransactionCount != n {
		t.Errorf("TransactionCount = %d, want %d", p.TransactionCount, n)
	}
	if e.AssessmentsTotal() != n {
		t.Errorf("AssessmentsTotal = %d, want %d", e.AssessmentsTotal(), n)
	}
}

func TestDashboard(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)}
	e := newTestEngine(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.Assess(ctx, "user-1", domain.Transaction{Type: domain.TypeDebit, Amount: 1000}); err != nil {
			t.Fatalf("Assess: %v", err)
		}
		clock.Advance(time.Hour)
	}

	d := e.Dashboard(ctx)
	if d.AssessmentsTotal != 3 {
		t.Errorf("AssessmentsTotal = %d, want 3", d.AssessmentsTotal)
	}
	if d.UsersTracked != 1 {
		t.Errorf("UsersTracked = %d, want 1", d.UsersTracked)
	}
	if d.TotalAlerts != 0 {
		t.Errorf("TotalAlerts = %d, want 0", d.TotalAlerts)
	}
}

func TestUserRiskProfile(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)}
	e := newTestEngine(clock)

	t.Run("unknown user", func(t *testing.T) {
		p := e.UserRiskProfile("nobody")
		if p.RiskLevel != domain.RiskUnknown {
			t.Errorf("RiskLevel = %s, want UNKNOWN", p.RiskLevel)
		}
		if p.Message == "" {
			t.Error("Message empty for unknown user")
		}
		// Profile reads never create a record.
		if e.store.Size() != 0 {
			t.Errorf("store size = %d, want 0", e.store.Size())
		}
	})

	t.Run("known user", func(t *testing.T) {
		ctx := context.Background()
		if _, err := e.Assess(ctx, "user-1", domain.Transaction{Type: domain.TypeDebit, Amount: 2000, Recipient: "+254700111222"}); err != nil {
			t.Fatalf("Assess: %v", err)
		}
		clock.Advance(40 * 24 * time.Hour)
		if _, err := e.Assess(ctx, "user-1", domain.Transaction{Type: domain.TypeDebit, Amount: 4000, Recipient: "+254700333444"}); err != nil {
			t.Fatalf("Assess: %v", err)
		}

		p := e.UserRiskProfile("user-1")
		if p.TransactionCount != 2 {
			t.Errorf("TransactionCount = %d, want 2", p.TransactionCount)
		}
		if p.AverageAmount != 3000 {
			t.Errorf("AverageAmount = %f, want 3000", p.AverageAmount)
		}
		if p.MaxAmount != 4000 {
			t.Errorf("MaxAmount = %f, want 4000", p.MaxAmount)
		}
		if p.UniqueRecipients != 2 {
			t.Errorf("UniqueRecipients = %d, want 2", p.UniqueRecipients)
		}
		if p.AccountAgeDays != 40 {
			t.Errorf("AccountAgeDays = %d, want 40", p.AccountAgeDays)
		}
		if p.RiskLevel != domain.RiskLow {
			t.Errorf("RiskLevel = %s, want LOW", p.RiskLevel)
		}
		// The second transaction arrived after a daily reset; only it
		// counts toward today's total.
		if p.DailyTotalToday != 4000 {
			t.Errorf("DailyTotalToday = %f, want 4000", p.DailyTotalToday)
		}
	})
}
