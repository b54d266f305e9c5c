package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spectra/engine/internal/store"
)

func TestTrackerCounters(t *testing.T) {
	m := NewTracker()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	m.startTime = clock.Add(-time.Minute)

	m.RecordTrades([]store.LiveTrade{
		{ID: "1", MarketID: "m1", Title: "Rain", Price: 0.5, Amount: 10},
		{ID: "2", MarketID: "m1", Price: 0.6, Amount: 10},
		{ID: "3", MarketID: "m2", Price: 0.2, Amount: 1},
	})
	m.RecordAlerts([]store.Alert{{Type: store.AlertLargeTrade}, {Type: store.AlertLargeTrade}, {Type: store.AlertBurst}})
	m.RecordPage(5)
	m.RecordPage(0)
	m.RecordRefresh(3)
	m.RecordBuy(3, 2)
	m.RecordBuyFailure()
	m.SetPendingFunc(func() int { return 4 })
	m.SetConnected(true)

	s := m.Snapshot()
	require.EqualValues(t, 3, s.TradesTotal)
	require.EqualValues(t, 2, s.AlertsByType[store.AlertLargeTrade])
	require.EqualValues(t, 1, s.AlertsByType[store.AlertBurst])
	require.EqualValues(t, 2, s.PagesMerged)
	require.EqualValues(t, 5, s.RecordsAdded)
	require.EqualValues(t, 1, s.RefreshTicks)
	require.EqualValues(t, 3, s.RecordsUpdated)
	require.EqualValues(t, 2, s.BuysAttempted)
	require.EqualValues(t, 1, s.BuysSucceeded)
	require.EqualValues(t, 1, s.BuysFailed)
	require.EqualValues(t, 2, s.SubmissionsOK)
	require.EqualValues(t, 1, s.SubmissionsFailed)
	require.Equal(t, 4, s.PendingSubmissions)
	require.Equal(t, StatusConnected, s.WebSocketStatus)
	require.Equal(t, time.Minute, s.Uptime)

	require.Len(t, s.TopMovers, 1, "single-trade markets are not ranked")
	require.Equal(t, "m1", s.TopMovers[0].MarketID)
	require.Equal(t, "Rain", s.TopMovers[0].Title)
	require.InDelta(t, 20.0, s.TopMovers[0].PriceChange, 1e-9)
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewTracker()
	m.RecordAlerts([]store.Alert{{Type: store.AlertBurst}})

	s := m.Snapshot()
	s.AlertsByType[store.AlertBurst] = 99

	require.EqualValues(t, 1, m.Snapshot().AlertsByType[store.AlertBurst])
}

func TestCleanupDropsIdleMarkets(t *testing.T) {
	m := NewTracker()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	m.RecordTrades([]store.LiveTrade{{MarketID: "old", Price: 0.1}, {MarketID: "old", Price: 0.2}})
	clock = clock.Add(2 * time.Hour)
	m.RecordTrades([]store.LiveTrade{{MarketID: "new", Price: 0.1}, {MarketID: "new", Price: 0.3}})
	m.Cleanup()

	movers := m.Snapshot().TopMovers
	require.Len(t, movers, 1)
	require.Equal(t, "new", movers[0].MarketID)
}
