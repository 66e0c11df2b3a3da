// Package engine hosts the risk assessment pipeline: validate, score the
// seven factors against the user's history, screen, record, and report.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/shikra/internal/alerts"
	"github.com/opensource-finance/shikra/internal/domain"
	"github.com/opensource-finance/shikra/internal/factors"
	"github.com/opensource-finance/shikra/internal/history"
	"github.com/opensource-finance/shikra/internal/metrics"
	"github.com/opensource-finance/shikra/internal/screening"
)

// alertNotifyWindow throttles repeated alert notifications per user.
const alertNotifyWindow = time.Minute

// Deps wires the engine's collaborators. Store and Ledger are required;
// everything else may be nil and the corresponding side effect is skipped.
type Deps struct {
	Store    *history.Store
	Ledger   *alerts.Ledger
	Screener *screening.Engine
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Clock    domain.Clock
	Logger   *slog.Logger
}

// Engine scores candidate transactions and maintains the alert ledger.
type Engine struct {
	store    *history.Store
	ledger   *alerts.Ledger
	screener *screening.Engine
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	clock    domain.Clock
	logger   *slog.Logger
	tracer   trace.Tracer

	assessments atomic.Int64
}

// New creates an assessment engine.
func New(deps Deps) *Engine {
	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    deps.Store,
		ledger:   deps.Ledger,
		screener: deps.Screener,
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		clock:    clock,
		logger:   logger,
		tracer:   otel.Tracer("shikra/engine"),
	}
}

// Assess scores one candidate transaction against the user's history.
//
// The read-score-append sequence runs under the user's record lock, so
// concurrent assessments for the same user serialize and each one sees all
// previously assessed transactions. The transaction is always committed to
// history, whatever the verdict; the banking layer gates its own ledger on
// ShouldBlock and ShouldVerify.
func (e *Engine) Assess(ctx context.Context, userID string, tx domain.Transaction) (*domain.RiskAssessment, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Assess")
	defer span.End()

	start := time.Now()

	if userID == "" {
		metrics.ValidationErrorsTotal.Inc()
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidTransaction)
	}
	if err := tx.Validate(); err != nil {
		metrics.ValidationErrorsTotal.Inc()
		return nil, err
	}

	now := e.clock.Now()

	h := e.store.GetOrCreate(userID)
	h.Lock()

	h.ResetDailyIfStale(now)
	snap := h.View()

	results := factors.ScoreAll(snap, tx, now)
	score := factors.Aggregate(results)
	level, action := domain.LevelForScore(score)

	var hits []domain.ScreenHit
	if e.screener != nil {
		hits = e.screener.Evaluate(tx, now)
		for _, hit := range hits {
			if severity(hit.Action) > severity(action) {
				action = hit.Action
			}
		}
	}

	surfaced := materialFactors(results)

	assessment := &domain.RiskAssessment{
		ID:             uuid.NewString(),
		UserID:         userID,
		Timestamp:      now,
		RiskScore:      score,
		RiskLevel:      level,
		Action:         action,
		ShouldBlock:    action == domain.ActionBlock,
		ShouldVerify:   action == domain.ActionBlock || action == domain.ActionRequireVerification,
		Factors:        surfaced,
		ScreenHits:     hits,
		Recommendation: recommendation(action, surfaced),
	}

	record := domain.HistoricalTransaction{
		Amount:    tx.Amount,
		Type:      tx.Type,
		Recipient: tx.Recipient,
		Timestamp: now,
		RiskScore: score,
	}
	h.Append(record)

	var alert *domain.Alert
	if score >= domain.AlertThreshold {
		alert = &domain.Alert{
			ID:          "FRD-" + uuid.NewString(),
			UserID:      userID,
			Timestamp:   now,
			Transaction: tx,
			RiskScore:   score,
			RiskLevel:   level,
			Action:      action,
			Factors:     surfaced,
			Resolved:    score < domain.HighThreshold,
		}
		assessment.AlertID = alert.ID
		h.RecordAlert(assessment.ShouldBlock)
	}

	h.Unlock()

	e.assessments.Add(1)
	if alert != nil {
		e.ledger.Record(*alert)
		metrics.AlertsTotal.WithLabelValues(string(alert.Action)).Inc()
	}
	metrics.ObserveAssessment(assessment, time.Since(start))

	span.SetAttributes(
		attribute.Int("risk.score", score),
		attribute.String("risk.level", string(level)),
		attribute.String("risk.action", string(action)),
	)

	e.logger.Info("assessment completed",
		"assessment_id", assessment.ID,
		"user_id", userID,
		"score", score,
		"level", level,
		"action", action,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	e.persist(ctx, userID, &record, assessment, alert)
	e.publish(ctx, assessment, alert)
	if alert != nil {
		e.notify(ctx, alert)
	}
	e.invalidateDashboard(ctx)

	return assessment, nil
}

// Dashboard builds the aggregate fraud report. Read-only; cached briefly
// when a cache is configured.
func (e *Engine) Dashboard(ctx context.Context) domain.Dashboard {
	const cacheKey = "dashboard"

	if e.cache != nil {
		if raw, err := e.cache.Get(ctx, cacheKey); err == nil && raw != nil {
			var d domain.Dashboard
			if err := json.Unmarshal(raw, &d); err == nil {
				return d
			}
		}
	}

	stats := e.ledger.Stats()
	d := domain.Dashboard{
		AssessmentsTotal:    e.assessments.Load(),
		UsersTracked:        e.store.Size(),
		TotalAlerts:         stats.Total,
		Blocked:             stats.Blocked,
		Flagged:             stats.Flagged,
		RequireVerification: stats.RequireVerification,
		Resolved:            stats.Resolved,
		RecentAlerts:        e.ledger.Recent(10),
	}

	if e.cache != nil {
		if raw, err := json.Marshal(d); err == nil {
			if err := e.cache.Set(ctx, cacheKey, raw, 5*time.Second); err != nil {
				e.logger.Debug("dashboard cache write failed", "error", err)
			}
		}
	}
	return d
}

// UserRiskProfile builds the per-user reporting view. Read-only: it never
// creates a history record and never resets the daily counter.
func (e *Engine) UserRiskProfile(userID string) domain.UserRiskProfile {
	h, ok := e.store.Get(userID)
	if !ok {
		return domain.UserRiskProfile{
			UserID:    userID,
			RiskLevel: domain.RiskUnknown,
			Message:   "No transaction history",
		}
	}

	p := h.Profile()
	now := e.clock.Now()

	return domain.UserRiskProfile{
		UserID:              userID,
		RiskLevel:           overallRisk(p),
		TransactionCount:    p.TransactionCount,
		AverageAmount:       p.AverageAmount,
		MaxAmount:           p.MaxAmount,
		AverageRiskScore:    p.AverageRiskScore,
		AlertsTriggered:     p.AlertCount,
		BlockedTransactions: p.BlockedCount,
		UniqueRecipients:    p.UniqueRecipients,
		TypicalActiveHours:  p.TypicalHours,
		DailyTotalToday:     p.DailyTotal,
		AccountAgeDays:      int(now.Sub(p.FirstSeen).Hours() / 24),
	}
}

// AssessmentsTotal returns the number of assessments completed since start.
func (e *Engine) AssessmentsTotal() int64 {
	return e.assessments.Load()
}

// persist writes the audit trail, best-effort. Repository failures are
// logged and never fail the assessment.
func (e *Engine) persist(ctx context.Context, userID string, record *domain.HistoricalTransaction, a *domain.RiskAssessment, alert *domain.Alert) {
	if e.repo == nil {
		return
	}
	if err := e.repo.SaveTransaction(ctx, userID, record); err != nil {
		e.logger.Warn("failed to persist transaction", "user_id", userID, "error", err)
	}
	if err := e.repo.SaveAssessment(ctx, a); err != nil {
		e.logger.Warn("failed to persist assessment", "assessment_id", a.ID, "error", err)
	}
	if alert != nil {
		if err := e.repo.SaveAlert(ctx, alert); err != nil {
			e.logger.Warn("failed to persist alert", "alert_id", alert.ID, "error", err)
		}
	}
}

// publish emits assessment and alert events, best-effort.
func (e *Engine) publish(ctx context.Context, a *domain.RiskAssessment, alert *domain.Alert) {
	if e.bus == nil {
		return
	}
	if payload, err := json.Marshal(a); err == nil {
		if err := e.bus.Publish(ctx, domain.TopicAssessmentCompleted, payload); err != nil {
			e.logger.Warn("failed to publish assessment", "assessment_id", a.ID, "error", err)
		}
	}
	if alert != nil {
		if payload, err := json.Marshal(alert); err == nil {
			if err := e.bus.Publish(ctx, domain.TopicAlertRaised, payload); err != nil {
				e.logger.Warn("failed to publish alert", "alert_id", alert.ID, "error", err)
			}
		}
	}
}

// notify logs the rendered alert for notification channels, throttled per
// user so a burst of alerts does not flood the channel.
func (e *Engine) notify(ctx context.Context, alert *domain.Alert) {
	if e.cache != nil {
		n, err := e.cache.IncrementCounter(ctx, "alert-notify:"+alert.UserID, alertNotifyWindow)
		if err == nil && n > 1 {
			return
		}
	}
	e.logger.Warn("fraud alert raised",
		"alert_id", alert.ID,
		"user_id", alert.UserID,
		"score", alert.RiskScore,
		"action", alert.Action,
		"rendered", alerts.FormatAlert(*alert),
	)
}

func (e *Engine) invalidateDashboard(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, "dashboard"); err != nil {
		e.logger.Debug("dashboard cache invalidation failed", "error", err)
	}
}

// materialFactors keeps the factors that materially drove the score,
// preserving evaluation order. The first entry is the primary concern.
func materialFactors(results []domain.FactorResult) []domain.FactorResult {
	out := make([]domain.FactorResult, 0, len(results))
	for _, r := range results {
		if r.Score > 30 {
			out = append(out, r)
		}
	}
	return out
}

// severity orders actions for screening escalation.
func severity(a domain.Action) int {
	switch a {
	case domain.ActionBlock:
		return 3
	case domain.ActionRequireVerification:
		return 2
	case domain.ActionFlagForReview:
		return 1
	default:
		return 0
	}
}

func recommendation(action domain.Action, surfaced []domain.FactorResult) string {
	top := "None"
	if len(surfaced) > 0 {
		top = surfaced[0].Factor
	}

	switch action {
	case domain.ActionBlock:
		return fmt.Sprintf("Transaction blocked due to critical risk. %s. Contact support for resolution.", top)
	case domain.ActionRequireVerification:
		return fmt.Sprintf("Additional verification required. %s triggered enhanced due diligence.", top)
	case domain.ActionFlagForReview:
		return fmt.Sprintf("Transaction flagged for review. Primary concern: %s. Manual review within 24 hours.", top)
	default:
		return "Transaction approved. No significant risk factors detected."
	}
}

// overallRisk classifies a user from their lifetime aggregates.
func overallRisk(p history.ProfileView) domain.RiskLevel {
	switch {
	case p.AverageRiskScore > 60 || p.AlertCount > 3:
		return domain.RiskHigh
	case p.AverageRiskScore > 30 || p.AlertCount > 1:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
