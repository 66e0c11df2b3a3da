package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/shikra/internal/domain"
)

const rule = "---------------------------------"

// FormatAlert renders one alert as plain text for notification channels.
func FormatAlert(a domain.Alert) string {
	var b strings.Builder
	b.WriteString("FRAUD ALERT\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Alert:      %s\n", a.ID)
	fmt.Fprintf(&b, "User:       %s\n", a.UserID)
	fmt.Fprintf(&b, "Time:       %s\n", a.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Amount:     %.2f\n", a.Transaction.Amount)
	fmt.Fprintf(&b, "Risk Score: %d/100\n", a.RiskScore)
	fmt.Fprintf(&b, "Level:      %s\n", a.RiskLevel)
	fmt.Fprintf(&b, "Action:     %s\n", a.Action)

	if len(a.Factors) > 0 {
		b.WriteString("\nRisk Factors:\n")
		for _, f := range a.Factors {
			fmt.Fprintf(&b, "  - %s: %s (%d/100)\n", f.Factor, f.Detail, f.Score)
		}
	}

	return b.String()
}

// FormatDashboard renders the monitoring dashboard as plain text.
func FormatDashboard(d domain.Dashboard) string {
	var b strings.Builder
	b.WriteString("FRAUD DETECTION DASHBOARD\n")
	b.WriteString(rule + "\n\n")

	b.WriteString("Overview\n")
	fmt.Fprintf(&b, "  Transactions Scanned: %d\n", d.AssessmentsTotal)
	fmt.Fprintf(&b, "  Users Tracked:        %d\n", d.UsersTracked)
	fmt.Fprintf(&b, "  Alerts:               %d\n", d.TotalAlerts)
	fmt.Fprintf(&b, "  Blocked:              %d\n", d.Blocked)
	fmt.Fprintf(&b, "  Verification Holds:   %d\n", d.RequireVerification)
	fmt.Fprintf(&b, "  Flagged For Review:   %d\n", d.Flagged)
	fmt.Fprintf(&b, "  Resolved:             %d\n", d.Resolved)

	if len(d.RecentAlerts) > 0 {
		b.WriteString("\nRecent Alerts\n")
		for _, a := range d.RecentAlerts {
			fmt.Fprintf(&b, "  [%s] user=%s amount=%.2f score=%d action=%s",
				a.Timestamp.Format("2006-01-02 15:04"), a.UserID, a.Amount, a.RiskScore, a.Action)
			if a.TopFactor != "" {
				fmt.Fprintf(&b, " (%s)", a.TopFactor)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
