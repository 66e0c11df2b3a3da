package domain

// Dashboard is the aggregate fraud report for the operator surface.
// All values are computed from the alert ledger and profile store read-side;
// building a dashboard never mutates engine state.
type Dashboard struct {
	AssessmentsTotal int64 `json:"assessmentsTotal"`
	UsersTracked     int   `json:"usersTracked"`

	TotalAlerts         int64 `json:"totalAlerts"`
	Blocked             int64 `json:"blocked"`
	Flagged             int64 `json:"flagged"`
	RequireVerification int64 `json:"requireVerification"`
	Resolved            int64 `json:"resolved"`

	RecentAlerts []AlertSummary `json:"recentAlerts"`
}

// UserRiskProfile is the per-user reporting view. For a user with no history
// only UserID, RiskLevel (UNKNOWN) and Message are populated.
type UserRiskProfile struct {
	UserID    string    `json:"userId"`
	RiskLevel RiskLevel `json:"riskLevel"`
	Message   string    `json:"message,omitempty"`

	TransactionCount     int     `json:"transactionCount"`
	AverageAmount        float64 `json:"averageAmount"`
	MaxAmount            float64 `json:"maxAmount"`
	AverageRiskScore     int     `json:"averageRiskScore"`
	AlertsTriggered      int     `json:"alertsTriggered"`
	BlockedTransactions  int     `json:"blockedTransactions"`
	UniqueRecipients     int     `json:"uniqueRecipients"`
	TypicalActiveHours   []int   `json:"typicalActiveHours"`
	DailyTotalToday      float64 `json:"dailyTotalToday"`
	AccountAgeDays       int     `json:"accountAgeDays"`
}
