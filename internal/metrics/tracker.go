// Package metrics provides thread-safe runtime counters for the dashboard.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/spectra/engine/internal/store"
)

// WebSocket status values.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// MarketActivity tracks live trade activity for a single market.
type MarketActivity struct {
	MarketID   string
	Title      string
	TradeCount int
	Notional   float64
	FirstPrice float64
	LastPrice  float64
	LastUpdate time.Time
}

// Mover is a market ranked by price change since it was first traded.
type Mover struct {
	MarketID     string
	Title        string
	PriceChange  float64 // percentage
	Notional     float64
	TradeCount   int
	CurrentPrice float64
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	TradesTotal    int64
	TradeRate      float64 // trades per second over the last minute
	AlertsByType   map[string]int64
	PagesMerged    int64
	RecordsAdded   int64
	RefreshTicks   int64
	RecordsUpdated int64

	BuysAttempted      int64
	BuysSucceeded      int64
	BuysFailed         int64
	SubmissionsOK      int64
	SubmissionsFailed  int64
	PendingSubmissions int

	TopMovers       []Mover
	Uptime          time.Duration
	WebSocketStatus string
	RESTLastPoll    time.Time
}

// Tracker collects runtime counters.
type Tracker struct {
	mu              sync.RWMutex
	tradesTotal     int64
	tradeTimestamps []time.Time
	alertsByType    map[string]int64
	pagesMerged     int64
	recordsAdded    int64
	refreshTicks    int64
	recordsUpdated  int64

	buysAttempted     int64
	buysSucceeded     int64
	buysFailed        int64
	submissionsOK     int64
	submissionsFailed int64
	pending           func() int

	activity     map[string]*MarketActivity
	startTime    time.Time
	wsStatus     string
	restLastPoll time.Time
	now          func() time.Time
}

// NewTracker creates a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		alertsByType:    make(map[string]int64),
		activity:        make(map[string]*MarketActivity),
		tradeTimestamps: make([]time.Time, 0, 1000),
		startTime:       time.Now(),
		wsStatus:        StatusDisconnected,
		now:             time.Now,
	}
}

// RecordTrades counts newly merged live trades and updates market activity.
func (m *Tracker) RecordTrades(trades []store.LiveTrade) {
	if len(trades) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.tradesTotal += int64(len(trades))
	for range trades {
		m.tradeTimestamps = append(m.tradeTimestamps, now)
	}

	// Keep only last 60 seconds of timestamps
	cutoff := now.Add(-60 * time.Second)
	idx := sort.Search(len(m.tradeTimestamps), func(i int) bool {
		return m.tradeTimestamps[i].After(cutoff)
	})
	m.tradeTimestamps = m.tradeTimestamps[idx:]

	for _, t := range trades {
		if t.MarketID == "" {
			continue
		}
		a, ok := m.activity[t.MarketID]
		if !ok {
			a = &MarketActivity{MarketID: t.MarketID, Title: t.Title, FirstPrice: t.Price}
			m.activity[t.MarketID] = a
		}
		a.TradeCount++
		a.Notional += t.Notional()
		a.LastPrice = t.Price
		a.LastUpdate = now
		if a.Title == "" {
			a.Title = t.Title
		}
	}
}

// RecordAlerts counts raised alerts by type.
func (m *Tracker) RecordAlerts(alerts []store.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range alerts {
		m.alertsByType[a.Type]++
	}
}

// RecordPage counts a merged market page.
func (m *Tracker) RecordPage(added int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pagesMerged++
	m.recordsAdded += int64(added)
}

// RecordRefresh counts a visible-row refresh.
func (m *Tracker) RecordRefresh(updated int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshTicks++
	m.recordsUpdated += int64(updated)
}

// RecordBuy counts a dispatched buy and its per-wallet submissions.
func (m *Tracker) RecordBuy(targeted, succeeded int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buysAttempted++
	if succeeded > 0 {
		m.buysSucceeded++
	}
	m.submissionsOK += int64(succeeded)
	m.submissionsFailed += int64(targeted - succeeded)
}

// RecordBuyFailure counts a buy that failed before or during dispatch.
func (m *Tracker) RecordBuyFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buysAttempted++
	m.buysFailed++
}

// SetPendingFunc registers the source of the in-flight submission count.
func (m *Tracker) SetPendingFunc(fn func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = fn
}

// SetConnected records the WebSocket connection state.
func (m *Tracker) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.wsStatus = StatusConnected
	} else {
		m.wsStatus = StatusDisconnected
	}
}

// SetRESTLastPoll sets the last backfill poll time.
func (m *Tracker) SetRESTLastPoll(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restLastPoll = t
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *Tracker) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()

	tradeRate := 0.0
	if len(m.tradeTimestamps) > 0 {
		duration := now.Sub(m.tradeTimestamps[0]).Seconds()
		if duration < 1 {
			duration = 1
		}
		tradeRate = float64(len(m.tradeTimestamps)) / duration
	}

	alerts := make(map[string]int64, len(m.alertsByType))
	for k, v := range m.alertsByType {
		alerts[k] = v
	}

	pending := 0
	if m.pending != nil {
		pending = m.pending()
	}

	return Snapshot{
		TradesTotal:        m.tradesTotal,
		TradeRate:          tradeRate,
		AlertsByType:       alerts,
		PagesMerged:        m.pagesMerged,
		RecordsAdded:       m.recordsAdded,
		RefreshTicks:       m.refreshTicks,
		RecordsUpdated:     m.recordsUpdated,
		BuysAttempted:      m.buysAttempted,
		BuysSucceeded:      m.buysSucceeded,
		BuysFailed:         m.buysFailed,
		SubmissionsOK:      m.submissionsOK,
		SubmissionsFailed:  m.submissionsFailed,
		PendingSubmissions: pending,
		TopMovers:          m.topMovers(10),
		Uptime:             now.Sub(m.startTime),
		WebSocketStatus:    m.wsStatus,
		RESTLastPoll:       m.restLastPoll,
	}
}

// topMovers ranks markets by absolute price change.
// Must be called with lock held.
func (m *Tracker) topMovers(limit int) []Mover {
	movers := make([]Mover, 0, len(m.activity))
	for id, a := range m.activity {
		if a.TradeCount < 2 || a.FirstPrice == 0 {
			continue
		}
		movers = append(movers, Mover{
			MarketID:     id,
			Title:        a.Title,
			PriceChange:  (a.LastPrice - a.FirstPrice) / a.FirstPrice * 100,
			Notional:     a.Notional,
			TradeCount:   a.TradeCount,
			CurrentPrice: a.LastPrice,
		})
	}

	sort.Slice(movers, func(i, j int) bool {
		return math.Abs(movers[i].PriceChange) > math.Abs(movers[j].PriceChange)
	})
	if len(movers) > limit {
		movers = movers[:limit]
	}
	return movers
}

// Cleanup removes markets with no trades in the last hour.
func (m *Tracker) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-60 * time.Minute)
	for id, a := range m.activity {
		if a.LastUpdate.Before(cutoff) {
			delete(m.activity, id)
		}
	}
}
