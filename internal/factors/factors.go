// Package factors implements the seven independent risk factor scorers.
//
// Each scorer is a pure function of the user's pre-update history snapshot,
// the candidate transaction and the current time. All seven run on every
// assessment; none short-circuits. Sub-scores are 0-100 and carry a
// human-readable rationale.
package factors

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/shikra/internal/domain"
	"github.com/opensource-finance/shikra/internal/history"
)

// Suspicious pattern thresholds. Fixed constants: the scorer is a
// transparent rule set, not a trained model.
const (
	// LargeTransferThreshold is the absolute single-transfer amount that
	// forces an elevated amount-anomaly score.
	LargeTransferThreshold = 500_000

	// VelocityWindow and VelocityCap define rapid-succession detection.
	VelocityWindow = 5 * time.Minute
	VelocityCap    = 5

	// UnusualHourStart..UnusualHourEnd (inclusive) is the late-night band.
	UnusualHourStart = 1
	UnusualHourEnd   = 5

	// NewRecipientLargeAmount flags large first-time transfers.
	NewRecipientLargeAmount = 100_000

	// DailyLimitAmount is the per-user daily exposure limit.
	DailyLimitAmount = 1_000_000

	// StructuringAmount is the near-reporting-threshold band center;
	// amounts in [0.8x, 1.1x] within StructuringWindow count toward a
	// structuring pattern.
	StructuringAmount = 490_000
	StructuringWindow = 24 * time.Hour
)

// Factor names, in fixed evaluation order.
const (
	NameAmountAnomaly   = "Amount Anomaly"
	NameVelocity        = "Transaction Velocity"
	NameTimePattern     = "Time Pattern"
	NameRecipient       = "Recipient Analysis"
	NameDailyLimit      = "Daily Limit"
	NameStructuring     = "Structuring Detection"
	NameAccountMaturity = "Account Maturity"
)

// Weights aggregate the seven sub-scores, indexed by evaluation order.
// They sum to 1.00.
var Weights = [7]float64{0.25, 0.20, 0.15, 0.15, 0.10, 0.10, 0.05}

// ScoreAll runs every scorer in fixed evaluation order.
func ScoreAll(snap history.Snapshot, tx domain.Transaction, now time.Time) []domain.FactorResult {
	return []domain.FactorResult{
		AmountAnomaly(snap, tx),
		Velocity(snap, now),
		TimePattern(snap, now),
		RecipientAnalysis(snap, tx),
		DailyLimitProximity(snap, tx),
		Structuring(snap, tx, now),
		AccountMaturity(snap, now),
	}
}

// Aggregate computes the weighted sum of sub-scores, rounded and clamped
// to [0, 100]. Results must be in fixed evaluation order.
func Aggregate(results []domain.FactorResult) int {
	var total float64
	for i, r := range results {
		total += float64(r.Score) * Weights[i]
	}
	score := int(math.Round(total))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// AmountAnomaly scores how far the candidate amount deviates from the
// user's own distribution. With fewer than 3 prior transactions the
// statistics are unreliable, so only the absolute threshold applies.
func AmountAnomaly(snap history.Snapshot, tx domain.Transaction) domain.FactorResult {
	f := domain.FactorResult{Factor: NameAmountAnomaly}
	amount := tx.Amount

	if len(snap.Transactions) < 3 {
		if amount > LargeTransferThreshold {
			f.Score = 60
			f.Detail = fmt.Sprintf("Large transfer %.0f with limited history", amount)
		} else {
			f.Score = 10
			f.Detail = "Insufficient history for anomaly detection"
		}
		return f
	}

	mean, stdDev := amountStats(snap.Transactions)

	if stdDev == 0 {
		if amount > mean*2 {
			f.Score = 50
			f.Detail = fmt.Sprintf("Amount %.1fx above average", amount/mean)
		} else {
			f.Detail = "Consistent amounts"
		}
		return f
	}

	z := (amount - mean) / stdDev
	switch {
	case z > 3:
		f.Score = 85
		f.Detail = fmt.Sprintf("Amount %.0f is %.1f std deviations above average (%.0f)", amount, z, mean)
	case z > 2:
		f.Score = 55
		f.Detail = fmt.Sprintf("Amount %.1f std deviations above average", z)
	case z > 1.5:
		f.Score = 30
		f.Detail = "Amount moderately above average"
	default:
		f.Score = 5
		f.Detail = "Amount within normal range"
	}

	if amount > LargeTransferThreshold {
		if f.Score < 70 {
			f.Score = 70
		}
		f.Detail = fmt.Sprintf("Large transfer: %.0f", amount)
	}

	return f
}

// Velocity scores the count of prior transactions in the trailing window.
func Velocity(snap history.Snapshot, now time.Time) domain.FactorResult {
	f := domain.FactorResult{Factor: NameVelocity}

	count := 0
	for _, t := range snap.Transactions {
		if now.Sub(t.Timestamp) < VelocityWindow {
			count++
		}
	}

	switch {
	case count >= VelocityCap*2:
		f.Score = 90
		f.Detail = fmt.Sprintf("%d transactions in %.0f minutes (limit: %d)", count, VelocityWindow.Minutes(), VelocityCap)
	case count >= VelocityCap:
		f.Score = 65
		f.Detail = fmt.Sprintf("%d transactions in rapid succession", count)
	case float64(count) >= 0.6*VelocityCap:
		f.Score = 30
		f.Detail = fmt.Sprintf("%d transactions approaching velocity limit", count)
	default:
		f.Score = 5
		f.Detail = "Normal transaction frequency"
	}

	return f
}

// TimePattern scores late-night activity. A transaction in the 01:00-05:00
// band is only mildly suspicious when the user has prior history at that
// hour.
func TimePattern(snap history.Snapshot, now time.Time) domain.FactorResult {
	f := domain.FactorResult{Factor: NameTimePattern}
	hour := now.Hour()

	if hour < UnusualHourStart || hour > UnusualHourEnd {
		f.Detail = "Normal business hours"
		return f
	}

	if _, ok := snap.TypicalHours[hour]; ok {
		f.Score = 15
		f.Detail = fmt.Sprintf("Late-night transaction but user has history at %02d:00", hour)
	} else {
		f.Score = 55
		f.Detail = fmt.Sprintf("Transaction at %02d:00 is unusual for this user", hour)
	}

	return f
}

// RecipientAnalysis scores first-time recipients, weighted by amount.
func RecipientAnalysis(snap history.Snapshot, tx domain.Transaction) domain.FactorResult {
	f := domain.FactorResult{Factor: NameRecipient}

	if tx.Recipient == "" {
		f.Detail = "No recipient (self-service transaction)"
		return f
	}

	_, known := snap.Recipients[tx.Recipient]
	switch {
	case !known && tx.Amount > NewRecipientLargeAmount:
		f.Score = 70
		f.Detail = fmt.Sprintf("%.0f to new recipient %q", tx.Amount, tx.Recipient)
	case !known:
		f.Score = 25
		f.Detail = fmt.Sprintf("New recipient %q", tx.Recipient)
	default:
		f.Score = 5
		f.Detail = fmt.Sprintf("Known recipient %q", tx.Recipient)
	}

	return f
}

// DailyLimitProximity scores the projected daily total against the limit.
func DailyLimitProximity(snap history.Snapshot, tx domain.Transaction) domain.FactorResult {
	f := domain.FactorResult{Factor: NameDailyLimit}
	projected := snap.DailyTotal + tx.Amount
	pct := projected / DailyLimitAmount * 100

	switch {
	case projected > DailyLimitAmount:
		f.Score = 80
		f.Detail = fmt.Sprintf("Daily total %.0f exceeds limit %d", projected, DailyLimitAmount)
	case projected > 0.8*DailyLimitAmount:
		f.Score = 40
		f.Detail = fmt.Sprintf("Daily total approaching limit (%.0f%%)", pct)
	default:
		f.Score = 5
		f.Detail = fmt.Sprintf("Daily total within limits (%.0f%%)", pct)
	}

	return f
}

// Structuring detects repeated amounts just below the reporting threshold.
// Only a candidate that is itself in the near-threshold band scores; prior
// in-band transactions within the trailing 24h escalate it.
func Structuring(snap history.Snapshot, tx domain.Transaction, now time.Time) domain.FactorResult {
	f := domain.FactorResult{Factor: NameStructuring}

	low := 0.8 * StructuringAmount
	high := 1.1 * StructuringAmount

	if tx.Amount < low || tx.Amount > high {
		f.Detail = "No structuring pattern detected"
		return f
	}

	prior := 0
	for _, t := range snap.Transactions {
		if now.Sub(t.Timestamp) < StructuringWindow && t.Amount >= low && t.Amount <= high {
			prior++
		}
	}

	switch {
	case prior >= 2:
		f.Score = 85
		f.Detail = fmt.Sprintf("%d transactions near reporting threshold (%d) in 24h", prior+1, StructuringAmount)
	case prior >= 1:
		f.Score = 45
		f.Detail = "Multiple transactions near reporting threshold"
	default:
		f.Score = 15
		f.Detail = "Single transaction near threshold, monitoring"
	}

	return f
}

// AccountMaturity scores how established the account is, measured from the
// first recorded transaction.
func AccountMaturity(snap history.Snapshot, now time.Time) domain.FactorResult {
	f := domain.FactorResult{Factor: NameAccountMaturity}

	if snap.Count == 0 {
		f.Score = 40
		f.Detail = "Brand new account, first transaction"
		return f
	}

	ageDays := now.Sub(snap.FirstSeen).Hours() / 24
	switch {
	case ageDays < 7:
		f.Score = 35
		f.Detail = fmt.Sprintf("Account active for %.0f days, new account risk", ageDays)
	case ageDays < 30:
		f.Score = 15
		f.Detail = "Account less than 30 days old"
	default:
		f.Detail = fmt.Sprintf("Established account (%.0f days)", ageDays)
	}

	return f
}

// amountStats returns the mean and population standard deviation of the
// retained transaction amounts.
func amountStats(txs []domain.HistoricalTransaction) (mean, stdDev float64) {
	if len(txs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, t := range txs {
		sum += t.Amount
	}
	mean = sum / float64(len(txs))

	var variance float64
	for _, t := range txs {
		d := t.Amount - mean
		variance += d * d
	}
	variance /= float64(len(txs))
	return mean, math.Sqrt(variance)
}
