// Package history implements the in-memory risk profile store: one rolling
// history record per user, created on first use.
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/shikra/internal/domain"
)

const (
	// DefaultMaxTransactions caps the retained sequence per user.
	DefaultMaxTransactions = 1000

	dailyResetInterval = 24 * time.Hour
)

// Store owns all per-user risk histories. Safe for concurrent use; per-user
// mutation is serialized through each record's own lock.
type Store struct {
	mu         sync.RWMutex
	users      map[string]*UserHistory
	clock      domain.Clock
	maxPerUser int
}

// NewStore creates an empty profile store.
func NewStore(clock domain.Clock, maxPerUser int) *Store {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxTransactions
	}
	return &Store{
		users:      make(map[string]*UserHistory),
		clock:      clock,
		maxPerUser: maxPerUser,
	}
}

// GetOrCreate returns the history record for a user, initializing an empty
// record on first use.
func (s *Store) GetOrCreate(userID string) *UserHistory {
	s.mu.RLock()
	h, ok := s.users[userID]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the write lock; another goroutine may have created it.
	if h, ok = s.users[userID]; ok {
		return h
	}
	h = &UserHistory{
		userID:       userID,
		maxTx:        s.maxPerUser,
		recipients:   make(map[string]struct{}),
		typicalHours: make(map[int]struct{}),
		lastDayReset: s.clock.Now(),
	}
	s.users[userID] = h
	return h
}

// Get returns the history record for a user without creating one.
func (s *Store) Get(userID string) (*UserHistory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.users[userID]
	return h, ok
}

// Size returns the number of tracked users.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Reset drops all histories. Intended for tests and admin tooling.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]*UserHistory)
}

// UserHistory is one user's rolling risk history. The assessment sequence
// "read history, score, append" must be one atomic unit per user: callers
// hold the record lock across it via Lock/Unlock.
type UserHistory struct {
	mu     sync.Mutex
	userID string
	maxTx  int

	transactions []domain.HistoricalTransaction
	recipients   map[string]struct{}
	typicalHours map[int]struct{}

	dailyTotal   float64
	lastDayReset time.Time

	alertCount   int
	blockedCount int

	// Lifetime aggregates survive eviction of old transactions.
	firstSeen       time.Time
	lifetimeCount   int64
	lifetimeSum     float64
	lifetimeMax     float64
	lifetimeRiskSum int64
}

// Lock acquires the record's exclusive lock.
func (h *UserHistory) Lock() { h.mu.Lock() }

// Unlock releases the record's exclusive lock.
func (h *UserHistory) Unlock() { h.mu.Unlock() }

// ResetDailyIfStale zeroes the daily total when more than 24h have passed
// since the last reset. Lazy: called at the start of each assessment, not
// from a background timer. Caller must hold the lock.
func (h *UserHistory) ResetDailyIfStale(now time.Time) {
	if now.Sub(h.lastDayReset) > dailyResetInterval {
		h.dailyTotal = 0
		h.lastDayReset = now
	}
}

// Snapshot is a read view over a locked record. The slices and maps share
// the record's backing storage and are valid only while the lock is held.
type Snapshot struct {
	Transactions []domain.HistoricalTransaction
	Recipients   map[string]struct{}
	TypicalHours map[int]struct{}
	DailyTotal   float64
	AvgAmount    float64
	FirstSeen    time.Time
	Count        int64
}

// View returns the pre-update snapshot the factor scorers consume.
// Caller must hold the lock.
func (h *UserHistory) View() Snapshot {
	var avg float64
	if h.lifetimeCount > 0 {
		avg = h.lifetimeSum / float64(h.lifetimeCount)
	}
	return Snapshot{
		Transactions: h.transactions,
		Recipients:   h.recipients,
		TypicalHours: h.typicalHours,
		DailyTotal:   h.dailyTotal,
		AvgAmount:    avg,
		FirstSeen:    h.firstSeen,
		Count:        h.lifetimeCount,
	}
}

// Append commits an assessed transaction to the history. The sequence is
// append-only; when the cap is exceeded the oldest entries are evicted,
// while firstSeen and the lifetime aggregates are preserved so account age
// and the running mean stay correct. Caller must hold the lock.
func (h *UserHistory) Append(tx domain.HistoricalTransaction) {
	if h.lifetimeCount == 0 {
		h.firstSeen = tx.Timestamp
	}

	h.transactions = append(h.transactions, tx)
	if len(h.transactions) > h.maxTx {
		// Trim from the front; copy to release the evicted backing array.
		keep := len(h.transactions) - h.maxTx
		h.transactions = append([]domain.HistoricalTransaction(nil), h.transactions[keep:]...)
	}

	if tx.Recipient != "" {
		h.recipients[tx.Recipient] = struct{}{}
	}
	h.typicalHours[tx.Timestamp.Hour()] = struct{}{}
	h.dailyTotal += tx.Amount

	h.lifetimeCount++
	h.lifetimeSum += tx.Amount
	if tx.Amount > h.lifetimeMax {
		h.lifetimeMax = tx.Amount
	}
	h.lifetimeRiskSum += int64(tx.RiskScore)
}

// RecordAlert increments the user's alert counter, and the blocked counter
// when the alert blocked the transaction. Caller must hold the lock.
func (h *UserHistory) RecordAlert(blocked bool) {
	h.alertCount++
	if blocked {
		h.blockedCount++
	}
}

// ProfileView is a self-contained copy of the reporting fields.
type ProfileView struct {
	TransactionCount int
	AverageAmount    float64
	MaxAmount        float64
	AverageRiskScore int
	AlertCount       int
	BlockedCount     int
	UniqueRecipients int
	TypicalHours     []int
	DailyTotal       float64
	FirstSeen        time.Time
}

// Profile returns a copy of the reporting view. Acquires and releases the
// record lock itself; never mutates the record.
func (h *UserHistory) Profile() ProfileView {
	h.mu.Lock()
	defer h.mu.Unlock()

	hours := make([]int, 0, len(h.typicalHours))
	for hr := range h.typicalHours {
		hours = append(hours, hr)
	}
	sort.Ints(hours)

	var avgAmount float64
	var avgRisk int
	if h.lifetimeCount > 0 {
		avgAmount = h.lifetimeSum / float64(h.lifetimeCount)
		avgRisk = int(h.lifetimeRiskSum / h.lifetimeCount)
	}

	return ProfileView{
		TransactionCount: int(h.lifetimeCount),
		AverageAmount:    avgAmount,
		MaxAmount:        h.lifetimeMax,
		AverageRiskScore: avgRisk,
		AlertCount:       h.alertCount,
		BlockedCount:     h.blockedCount,
		UniqueRecipients: len(h.recipients),
		TypicalHours:     hours,
		DailyTotal:       h.dailyTotal,
		FirstSeen:        h.firstSeen,
	}
}
