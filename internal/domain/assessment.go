package domain

import (
	"time"
)

// RiskLevel is the tier derived from the aggregate risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"

	// RiskUnknown is reported for users with no transaction history.
	RiskUnknown RiskLevel = "UNKNOWN"
)

// Action is the recommended handling for an assessed transaction.
type Action string

const (
	ActionApprove             Action = "APPROVE"
	ActionFlagForReview       Action = "FLAG_FOR_REVIEW"
	ActionRequireVerification Action = "REQUIRE_VERIFICATION"
	ActionBlock               Action = "BLOCK"
)

// Tier boundaries. Level and action are a pure function of the score.
const (
	CriticalThreshold = 80
	HighThreshold     = 60
	MediumThreshold   = 30

	// AlertThreshold is the score at or above which an Alert is raised,
	// independent of tier.
	AlertThreshold = 50
)

// LevelForScore maps an aggregate score to its risk tier and action.
func LevelForScore(score int) (RiskLevel, Action) {
	switch {
	case score >= CriticalThreshold:
		return RiskCritical, ActionBlock
	case score >= HighThreshold:
		return RiskHigh, ActionRequireVerification
	case score >= MediumThreshold:
		return RiskMedium, ActionFlagForReview
	default:
		return RiskLow, ActionApprove
	}
}

// FactorResult is the output of a single risk factor scorer.
type FactorResult struct {
	Factor string `json:"factor"`
	Score  int    `json:"score"`
	Detail string `json:"detail"`
}

// RiskAssessment is the complete result of assessing one candidate
// transaction. It is derived output; the authoritative state lives in the
// user's history and the alert ledger.
type RiskAssessment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`

	RiskScore int       `json:"riskScore"`
	RiskLevel RiskLevel `json:"riskLevel"`
	Action    Action    `json:"action"`

	// Convenience flags for the banking layer gating the ledger commit.
	ShouldBlock  bool `json:"shouldBlock"`
	ShouldVerify bool `json:"shouldVerify"`

	// Factors contains only material risk drivers (factor score > 30),
	// in fixed evaluation order.
	Factors []FactorResult `json:"factors"`

	// ScreenHits lists triggered screening rules, if any. A blocking hit
	// escalates Action without changing RiskScore.
	ScreenHits []ScreenHit `json:"screenHits,omitempty"`

	// AlertID is set when the assessment raised an alert.
	AlertID string `json:"alertId,omitempty"`

	Recommendation string `json:"recommendation"`
}
