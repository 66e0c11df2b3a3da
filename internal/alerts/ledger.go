// Package alerts implements the bounded in-memory alert ledger and the
// plain-text renderers for alert and dashboard output.
package alerts

import (
	"sync"

	"github.com/opensource-finance/shikra/internal/domain"
)

// DefaultMaxRetained caps the retained alert window.
const DefaultMaxRetained = 10_000

// Stats are the lifetime alert counters. They survive eviction of the
// alerts they were counted from.
type Stats struct {
	Total               int64
	Blocked             int64
	Flagged             int64
	RequireVerification int64
	Resolved            int64
}

// Ledger is an append-only record of raised alerts. Alerts are never
// updated or deleted by callers; when the retention cap is exceeded the
// oldest entries are evicted while the lifetime counters stand.
type Ledger struct {
	mu      sync.RWMutex
	alerts  []domain.Alert
	byID    map[string]int
	max     int
	evicted int

	stats Stats
}

// NewLedger creates an empty ledger retaining at most max alerts.
func NewLedger(max int) *Ledger {
	if max <= 0 {
		max = DefaultMaxRetained
	}
	return &Ledger{
		byID: make(map[string]int),
		max:  max,
	}
}

// Record appends an alert and updates the lifetime counters.
func (l *Ledger) Record(a domain.Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.alerts = append(l.alerts, a)
	if len(l.alerts) > l.max {
		drop := len(l.alerts) - l.max
		for _, old := range l.alerts[:drop] {
			delete(l.byID, old.ID)
		}
		l.alerts = append([]domain.Alert(nil), l.alerts[drop:]...)
		l.evicted += drop
	}
	// Index positions are absolute sequence numbers, stable across trims.
	l.byID[a.ID] = l.evicted + len(l.alerts) - 1

	l.stats.Total++
	switch a.Action {
	case domain.ActionBlock:
		l.stats.Blocked++
	case domain.ActionRequireVerification:
		l.stats.RequireVerification++
	case domain.ActionFlagForReview:
		l.stats.Flagged++
	}
	if a.Resolved {
		l.stats.Resolved++
	}
}

// Get returns a retained alert by ID.
func (l *Ledger) Get(id string) (domain.Alert, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seq, ok := l.byID[id]
	if !ok {
		return domain.Alert{}, false
	}
	return l.alerts[seq-l.evicted], true
}

// Recent returns up to n retained alerts, newest first.
func (l *Ledger) Recent(n int) []domain.AlertSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.alerts) {
		n = len(l.alerts)
	}
	out := make([]domain.AlertSummary, 0, n)
	for i := len(l.alerts) - 1; i >= len(l.alerts)-n; i-- {
		out = append(out, summarize(l.alerts[i]))
	}
	return out
}

// ListByUser returns up to limit retained alerts for one user, newest first.
func (l *Ledger) ListByUser(userID string, limit int) []domain.AlertSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.AlertSummary
	for i := len(l.alerts) - 1; i >= 0; i-- {
		if l.alerts[i].UserID != userID {
			continue
		}
		out = append(out, summarize(l.alerts[i]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Stats returns a copy of the lifetime counters.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// Size returns the number of retained alerts.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.alerts)
}

func summarize(a domain.Alert) domain.AlertSummary {
	s := domain.AlertSummary{
		ID:        a.ID,
		UserID:    a.UserID,
		Timestamp: a.Timestamp,
		Amount:    a.Transaction.Amount,
		RiskScore: a.RiskScore,
		Action:    a.Action,
	}
	if len(a.Factors) > 0 {
		s.TopFactor = a.Factors[0].Factor
	}
	return s
}
