package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/shikra/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "shikra-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	userID := "+254700111222"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveTransaction", func(t *testing.T) {
		tx := &domain.HistoricalTransaction{
			Amount:    25_000,
			Type:      domain.TypeDebit,
			Recipient: "+254700333444",
			Timestamp: time.Now().UTC(),
			RiskScore: 12,
		}

		if err := repo.SaveTransaction(ctx, userID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
	})

	t.Run("SaveTransactionRequiresUserID", func(t *testing.T) {
		tx := &domain.HistoricalTransaction{Amount: 100, Type: domain.TypeDebit}

		if err := repo.SaveTransaction(ctx, "", tx); err == nil {
			t.Error("expected error for empty userID")
		}
	})

	t.Run("SaveAndGetAssessment", func(t *testing.T) {
		a := &domain.RiskAssessment{
			ID:        "assess-001",
			UserID:    userID,
			Timestamp: time.Now().UTC(),
			RiskScore: 62,
			RiskLevel: domain.RiskHigh,
			Action:    domain.ActionRequireVerification,

			ShouldVerify: true,
			Factors: []domain.FactorResult{
				{Factor: "Amount Anomaly", Score: 85, Detail: "z-score 3.4"},
			},
			ScreenHits: []domain.ScreenHit{
				{RuleID: "rule-001", Name: "Large debit", Action: domain.ActionRequireVerification},
			},
			AlertID:        "alert-001",
			Recommendation: "Additional verification recommended",
		}

		if err := repo.SaveAssessment(ctx, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}

		retrieved, err := repo.GetAssessment(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}

		if retrieved.RiskScore != a.RiskScore {
			t.Errorf("expected RiskScore %d, got %d", a.RiskScore, retrieved.RiskScore)
		}
		if retrieved.RiskLevel != a.RiskLevel {
			t.Errorf("expected RiskLevel %s, got %s", a.RiskLevel, retrieved.RiskLevel)
		}
		if !retrieved.ShouldVerify {
			t.Error("expected ShouldVerify to survive round trip")
		}
		if len(retrieved.Factors) != 1 || retrieved.Factors[0].Factor != "Amount Anomaly" {
			t.Errorf("unexpected factors: %+v", retrieved.Factors)
		}
		if len(retrieved.ScreenHits) != 1 || retrieved.ScreenHits[0].RuleID != "rule-001" {
			t.Errorf("unexpected screen hits: %+v", retrieved.ScreenHits)
		}
		if retrieved.AlertID != "alert-001" {
			t.Errorf("expected AlertID alert-001, got %s", retrieved.AlertID)
		}
	})

	t.Run("GetAssessmentNotFound", func(t *testing.T) {
		_, err := repo.GetAssessment(ctx, "no-such-id")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("SaveAndListAlerts", func(t *testing.T) {
		base := time.Now().UTC()
		for i, score := range []int{55, 72, 91} {
			level, action := domain.LevelForScore(score)
			alert := &domain.Alert{
				ID:        "alert-10" + string(rune('0'+i)),
				UserID:    userID,
				Timestamp: base.Add(time.Duration(i) * time.Minute),
				Transaction: domain.Transaction{
					Type:      domain.TypeDebit,
					Amount:    float64(100_000 * (i + 1)),
					Recipient: "+254700333444",
				},
				RiskScore: score,
				RiskLevel: level,
				Action:    action,
				Factors: []domain.FactorResult{
					{Factor: "Transaction Velocity", Score: score},
				},
				Resolved: score < domain.HighThreshold,
			}

			if err := repo.SaveAlert(ctx, alert); err != nil {
				t.Fatalf("SaveAlert failed: %v", err)
			}
		}

		alerts, err := repo.ListAlertsByUser(ctx, userID, 10)
		if err != nil {
			t.Fatalf("ListAlertsByUser failed: %v", err)
		}
		if len(alerts) != 3 {
			t.Fatalf("expected 3 alerts, got %d", len(alerts))
		}
		// Newest first
		if alerts[0].ID != "alert-102" {
			t.Errorf("expected newest alert first, got %s", alerts[0].ID)
		}
		if !alerts[2].Resolved {
			t.Error("expected score-55 alert to be resolved")
		}
		if alerts[0].Transaction.Amount != 300_000 {
			t.Errorf("expected transaction snapshot amount 300000, got %.0f", alerts[0].Transaction.Amount)
		}
		if len(alerts[0].Factors) != 1 {
			t.Errorf("expected factors to survive round trip, got %+v", alerts[0].Factors)
		}
	})

	t.Run("ListAlertsLimit", func(t *testing.T) {
		alerts, err := repo.ListAlertsByUser(ctx, userID, 2)
		if err != nil {
			t.Fatalf("ListAlertsByUser failed: %v", err)
		}
		if len(alerts) != 2 {
			t.Errorf("expected 2 alerts, got %d", len(alerts))
		}
	})

	t.Run("ListAlertsOtherUser", func(t *testing.T) {
		alerts, err := repo.ListAlertsByUser(ctx, "+254700999999", 10)
		if err != nil {
			t.Fatalf("ListAlertsByUser failed: %v", err)
		}
		if len(alerts) != 0 {
			t.Errorf("expected no alerts for other user, got %d", len(alerts))
		}
	})

	t.Run("SaveAndListScreenRules", func(t *testing.T) {
		rule := &domain.ScreenRule{
			ID:         "rule-large-debit",
			Name:       "Large debit",
			Expression: `amount >= 450000.0`,
			Action:     domain.ActionRequireVerification,
			Enabled:    true,
		}

		if err := repo.SaveScreenRule(ctx, rule); err != nil {
			t.Fatalf("SaveScreenRule failed: %v", err)
		}

		rules, err := repo.ListScreenRules(ctx)
		if err != nil {
			t.Fatalf("ListScreenRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule, got %d", len(rules))
		}
		if !rules[0].Enabled {
			t.Error("expected rule to be enabled")
		}
		if rules[0].CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}
	})

	t.Run("ScreenRuleUpsert", func(t *testing.T) {
		rule := &domain.ScreenRule{
			ID:         "rule-large-debit",
			Name:       "Large debit",
			Expression: `amount >= 400000.0`,
			Action:     domain.ActionRequireVerification,
			Enabled:    false,
		}

		if err := repo.SaveScreenRule(ctx, rule); err != nil {
			t.Fatalf("SaveScreenRule upsert failed: %v", err)
		}

		rules, err := repo.ListScreenRules(ctx)
		if err != nil {
			t.Fatalf("ListScreenRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule after upsert, got %d", len(rules))
		}
		if rules[0].Expression != `amount >= 400000.0` {
			t.Errorf("expected updated expression, got %s", rules[0].Expression)
		}
		if rules[0].Enabled {
			t.Error("expected rule to be disabled after upsert")
		}
	})
}

func TestRepositoryUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	r := &SQLRepository{driver: "postgres"}
	got := r.rebind("INSERT INTO t (a, b) VALUES (?, ?)")
	want := "INSERT INTO t (a, b) VALUES ($1, $2)"
	if got != want {
		t.Errorf("rebind mismatch:\n got: %s\nwant: %s", got, want)
	}

	r.driver = "sqlite"
	passthrough := "SELECT * FROM t WHERE a = ?"
	if got := r.rebind(passthrough); got != passthrough {
		t.Errorf("expected sqlite query unchanged, got %s", got)
	}
}
