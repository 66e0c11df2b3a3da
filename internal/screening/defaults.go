package screening

import "github.com/opensource-finance/shikra/internal/domain"

// DefaultRules returns the rule set used when the repository holds none.
// The jurisdiction list follows the FATF high-risk call-for-action
// countries, matched by international dialing prefix.
func DefaultRules() []*domain.ScreenRule {
	return []*domain.ScreenRule{
		{
			ID:          "high-risk-jurisdiction",
			Name:        "High-risk jurisdiction",
			Description: "Recipient number in a FATF high-risk jurisdiction",
			Expression:  `["+93", "+98", "+850", "+252", "+963", "+967"].exists(p, recipient.startsWith(p))`,
			Action:      domain.ActionBlock,
			Enabled:     true,
		},
	}
}
