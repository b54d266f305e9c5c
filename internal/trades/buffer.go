// Package trades holds the live trade buffer fed by the stream listener.
package trades

import (
	"sort"
	"sync"

	"github.com/spectra/engine/internal/store"
)

// DefaultMaxTrades bounds the buffer when no size is configured.
const DefaultMaxTrades = 200

// Buffer is a bounded set of live trades, deduplicated by id and kept
// sorted newest first.
type Buffer struct {
	mu     sync.RWMutex
	max    int
	trades []store.LiveTrade
}

// NewBuffer creates a Buffer holding at most max trades.
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxTrades
	}
	return &Buffer{max: max}
}

// Merge folds incoming into the buffer. On an id collision the incoming
// record wins, and within incoming the later record wins. It returns the
// records whose id was not buffered before.
func (b *Buffer) Merge(incoming []store.LiveTrade) []store.LiveTrade {
	if len(incoming) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var fresh []store.LiveTrade
	b.trades, fresh = Merge(b.trades, incoming, b.max)
	return fresh
}

// Merge returns the merged buffer and the incoming records whose id was not
// in current. current is not modified.
func Merge(current, incoming []store.LiveTrade, max int) ([]store.LiveTrade, []store.LiveTrade) {
	latest := make(map[string]int, len(incoming))
	for i, t := range incoming {
		latest[t.ID] = i
	}

	existing := make(map[string]struct{}, len(current))
	for _, t := range current {
		existing[t.ID] = struct{}{}
	}

	merged := make([]store.LiveTrade, 0, len(incoming)+len(current))
	var fresh []store.LiveTrade
	for i, t := range incoming {
		if latest[t.ID] != i {
			continue
		}
		merged = append(merged, t)
		if _, ok := existing[t.ID]; !ok {
			fresh = append(fresh, t)
		}
	}
	for _, t := range current {
		if _, ok := latest[t.ID]; ok {
			continue
		}
		merged = append(merged, t)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})
	if max > 0 && len(merged) > max {
		merged = merged[:max]
	}
	return merged, fresh
}

// Snapshot returns a copy of the buffer, newest first.
func (b *Buffer) Snapshot() []store.LiveTrade {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]store.LiveTrade, len(b.trades))
	copy(out, b.trades)
	return out
}

// Len returns the number of buffered trades.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.trades)
}
