package history

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/shikra/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)}
}

func TestStoreGetOrCreate(t *testing.T) {
	store := NewStore(newFakeClock(), 0)

	a := store.GetOrCreate("user-1")
	b := store.GetOrCreate("user-1")
	if a != b {
		t.Error("GetOrCreate returned different records for the same user")
	}

	if _, ok := store.Get("user-2"); ok {
		t.Error("Get returned a record for an unknown user")
	}
	if store.Size() != 1 {
		t.Errorf("Size = %d, want 1", store.Size())
	}

	store.Reset()
	if store.Size() != 0 {
		t.Errorf("Size after Reset = %d, want 0", store.Size())
	}
}

func TestAppendUpdatesDerivedState(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(clock, 0)
	h := store.GetOrCreate("user-1")

	h.Lock()
	h.Append(domain.HistoricalTransaction{
		Amount:    1000,
		Type:      domain.TypeDebit,
		Recipient: "+254700111222",
		Timestamp: clock.Now(),
		RiskScore: 20,
	})
	h.Append(domain.HistoricalTransaction{
		Amount:    3000,
		Type:      domain.TypeDebit,
		Timestamp: clock.Now().Add(time.Hour),
		RiskScore: 40,
	})
	snap := h.View()
	h.Unlock()

	if snap.Count != 2 {
		t.Errorf("Count = %d, want 2", snap.Count)
	}
	if snap.AvgAmount != 2000 {
		t.Errorf("AvgAmount = %f, want 2000", snap.AvgAmount)
	}
	if snap.DailyTotal != 4000 {
		t.Errorf("DailyTotal = %f, want 4000", snap.DailyTotal)
	}
	if _, ok := snap.Recipients["+254700111222"]; !ok {
		t.Error("recipient not recorded")
	}
	if _, ok := snap.TypicalHours[10]; !ok {
		t.Error("hour 10 not recorded")
	}
	if _, ok := snap.TypicalHours[11]; !ok {
		t.Error("hour 11 not recorded")
	}
	if !snap.FirstSeen.Equal(newFakeClock().now) {
		t.Errorf("FirstSeen = %v, want first transaction time", snap.FirstSeen)
	}
}

func TestEvictionPreservesLifetimeAggregates(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(clock, 5)
	h := store.GetOrCreate("user-1")

	h.Lock()
	for i := 1; i <= 8; i++ {
		h.Append(domain.HistoricalTransaction{
			Amount:    float64(i * 100),
			Type:      domain.TypeDebit,
			Timestamp: clock.Now().Add(time.Duration(i) * time.Minute),
			RiskScore: 10,
		})
	}
	snap := h.View()
	h.Unlock()

	if len(snap.Transactions) != 5 {
		t.Fatalf("retained = %d, want 5", len(snap.Transactions))
	}
	// Oldest evicted first: 400 is now the oldest retained amount.
	if snap.Transactions[0].Amount != 400 {
		t.Errorf("oldest retained amount = %f, want 400", snap.Transactions[0].Amount)
	}
	if snap.Count != 8 {
		t.Errorf("lifetime count = %d, want 8", snap.Count)
	}
	// Mean over all 8 (100..800), not just the retained 5.
	if snap.AvgAmount != 450 {
		t.Errorf("AvgAmount = %f, want 450", snap.AvgAmount)
	}
	if !snap.FirstSeen.Equal(newFakeClock().now.Add(time.Minute)) {
		t.Error("FirstSeen changed after eviction")
	}

	p := h.Profile()
	if p.MaxAmount != 800 {
		t.Errorf("MaxAmount = %f, want 800", p.MaxAmount)
	}
	if p.TransactionCount != 8 {
		t.Errorf("TransactionCount = %d, want 8", p.TransactionCount)
	}
}

func TestDailyResetLazy(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(clock, 0)
	h := store.GetOrCreate("user-1")

	h.Lock()
	h.Append(domain.HistoricalTransaction{Amount: 5000, Type: domain.TypeDebit, Timestamp: clock.Now()})
	h.Unlock()

	// Within 24h the total stands.
	clock.Advance(23 * time.Hour)
	h.Lock()
	h.ResetDailyIfStale(clock.Now())
	if got := h.View().DailyTotal; got != 5000 {
		t.Errorf("DailyTotal after 23h = %f, want 5000", got)
	}
	h.Unlock()

	clock.Advance(2 * time.Hour)
	h.Lock()
	h.ResetDailyIfStale(clock.Now())
	if got := h.View().DailyTotal; got != 0 {
		t.Errorf("DailyTotal after 25h = %f, want 0", got)
	}
	h.Unlock()
}

func TestProfileDoesNotMutate(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(clock, 0)
	h := store.GetOrCreate("user-1")

	h.Lock()
	h.Append(domain.HistoricalTransaction{Amount: 2500, Type: domain.TypeDebit, Timestamp: clock.Now(), RiskScore: 30})
	h.RecordAlert(true)
	h.Unlock()

	// Reading the profile long after the last transaction must not
	// trigger a daily reset; only assessments reset the counter.
	clock.Advance(48 * time.Hour)
	p := h.Profile()
	if p.DailyTotal != 2500 {
		t.Errorf("DailyTotal = %f, want 2500", p.DailyTotal)
	}
	if p.AlertCount != 1 {
		t.Errorf("AlertCount = %d, want 1", p.AlertCount)
	}
	if p.BlockedCount != 1 {
		t.Errorf("BlockedCount = %d, want 1", p.BlockedCount)
	}
	if p.AverageRiskScore != 30 {
		t.Errorf("AverageRiskScore = %d, want 30", p.AverageRiskScore)
	}
	if len(p.TypicalHours) != 1 || p.TypicalHours[0] != 10 {
		t.Errorf("TypicalHours = %v, want [10]", p.TypicalHours)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(clock, 100)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				userID := fmt.Sprintf("user-%d", i%5)
				h := store.GetOrCreate(userID)
				h.Lock()
				h.Append(domain.HistoricalTransaction{
					Amount:    float64(g*100 + i),
					Type:      domain.TypeDebit,
					Timestamp: clock.Now(),
				})
				h.Unlock()
				_ = h.Profile()
			}
		}(g)
	}
	wg.Wait()

	if store.Size() != 5 {
		t.Errorf("Size = %d, want 5", store.Size())
	}
	var total int64
	for i := 0; i < 5; i++ {
		h, ok := store.Get(fmt.Sprintf("user-%d", i))
		if !ok {
			t.Fatalf("user-%d missing", i)
		}
		total += int64(h.Profile().TransactionCount)
	}
	if total != 400 {
		t.Errorf("total transactions = %d, want 400", total)
	}
}
