package alerts

import (
	"sync"
	"time"
)

// BurstTracker counts trades per trader inside a sliding window.
type BurstTracker struct {
	mu     sync.Mutex
	trades map[string][]time.Time
	window time.Duration
}

// NewBurstTracker creates a new BurstTracker with the specified window.
func NewBurstTracker(window time.Duration) *BurstTracker {
	return &BurstTracker{
		trades: make(map[string][]time.Time),
		window: window,
	}
}

// SetWindow changes the window for subsequent records.
func (b *BurstTracker) SetWindow(window time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window = window
}

// Record adds a trade by trader at t and returns the number of trades by
// that trader within the window ending at t, including this one.
func (b *BurstTracker) Record(trader string, t time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := t.Add(-b.window)

	kept := b.trades[trader][:0]
	for _, ts := range b.trades[trader] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, t)
	b.trades[trader] = kept

	return len(kept)
}

// Cleanup drops traders with no trade inside the window ending at now.
func (b *BurstTracker) Cleanup(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-b.window)
	for trader, timestamps := range b.trades {
		if len(timestamps) == 0 || !timestamps[len(timestamps)-1].After(cutoff) {
			delete(b.trades, trader)
		}
	}
}
