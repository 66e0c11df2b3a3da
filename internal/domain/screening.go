package domain

import "time"

// ScreenRule is an operator-configured screening rule evaluated against the
// candidate transaction before the decision is finalized. Rules are CEL
// expressions over the variables amount, tx_type, recipient, platform,
// description and hour, and must return bool.
//
// Example: `tx_type == "DEBIT" && platform == "crossborder" && amount > 100000.0`
type ScreenRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is the CEL predicate; true means the rule triggers.
	Expression string `json:"expression"`

	// Action applied when the rule triggers: BLOCK or FLAG_FOR_REVIEW.
	// A triggered rule escalates the assessment action; it never lowers
	// it and never alters the weighted risk score.
	Action Action `json:"action"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ScreenHit records a triggered screening rule in an assessment.
type ScreenHit struct {
	RuleID string `json:"ruleId"`
	Name   string `json:"name"`
	Action Action `json:"action"`
	Detail string `json:"detail,omitempty"`
}
