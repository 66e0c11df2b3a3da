package domain

import "time"

// Alert is an immutable record of a high-risk assessment. Alerts accumulate
// in a process-wide ledger, oldest-first, and are persisted to the audit
// repository when one is configured.
type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`

	// Transaction is a snapshot of the candidate at assessment time.
	Transaction Transaction `json:"transaction"`

	RiskScore int       `json:"riskScore"`
	RiskLevel RiskLevel `json:"riskLevel"`
	Action    Action    `json:"action"`

	Factors []FactorResult `json:"factors"`

	// Resolved marks alerts below the HIGH boundary as auto-resolved;
	// they exist for the audit trail but need no operator follow-up.
	Resolved bool `json:"resolved"`
}

// AlertSummary is the compact dashboard view of an alert.
type AlertSummary struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Amount    float64   `json:"amount"`
	RiskScore int       `json:"riskScore"`
	Action    Action    `json:"action"`
	TopFactor string    `json:"topFactor"`
}
