package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spectra/engine/internal/alerts"
	"github.com/spectra/engine/internal/market"
	"github.com/spectra/engine/internal/store"
	"github.com/spectra/engine/internal/view"
)

func TestNextOf(t *testing.T) {
	list := []string{"all", "politics", "sports"}
	require.Equal(t, "politics", nextOf(list, "all"))
	require.Equal(t, "all", nextOf(list, "sports"), "wraps around")
	require.Equal(t, "sports", nextOf(list, "POLITICS"))
	require.Equal(t, "all", nextOf(list, "unknown"))
	require.Equal(t, "x", nextOf(nil, "x"))
}

func TestFormatting(t *testing.T) {
	require.Equal(t, "$1.5M", formatUSD(decimal.NewFromInt(1_500_000)))
	require.Equal(t, "$2.0K", formatUSD(decimal.NewFromInt(2000)))
	require.Equal(t, "$12", formatUSD(decimal.NewFromInt(12)))

	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))

	require.Equal(t, "0x1234...cdef", truncateAddress("0x1234567890abcdef"))
	require.Equal(t, "0xabc", truncateAddress("0xabc"))

	require.Equal(t, "45s", formatDuration(45*time.Second))
	require.Equal(t, "2h 5m", formatDuration(125*time.Minute))
	require.Equal(t, "never", formatTimeAgo(time.Time{}))
}

func TestFormatAlert(t *testing.T) {
	a := store.Alert{
		Type:  store.AlertPriceShock,
		Trade: store.LiveTrade{Title: "Rain tomorrow", Trader: "0x1234567890abcdef", Amount: 10, Price: 0.5},
		Meta:  map[string]interface{}{"pct_change": 12.5},
	}
	main, secondary := formatAlert(a)
	require.Contains(t, main, store.AlertPriceShock)
	require.Contains(t, main, "Rain tomorrow")
	require.Contains(t, secondary, "$5.00")
	require.Contains(t, secondary, "12.50%")
}

func TestAlertsViewNewestFirst(t *testing.T) {
	v := NewAlertsView()
	v.Add([]store.Alert{{Type: "A"}, {Type: "B"}})
	v.Add([]store.Alert{{Type: "C"}})

	got := make([]string, 0, len(v.alerts))
	for _, a := range v.alerts {
		got = append(got, a.Type)
	}
	require.Equal(t, []string{"C", "B", "A"}, got)
}

func TestExplorerSelection(t *testing.T) {
	v := NewExplorerView()
	page := view.Page[store.Market]{
		Items: []store.Market{
			{ID: "m1", Question: "First", Outcomes: []store.Outcome{{Name: "Yes", Price: decimal.RequireFromString("0.42")}}},
			{ID: "m2", Question: "Second"},
		},
		Page:       1,
		TotalPages: 1,
		Total:      2,
	}
	v.UpdateMarkets(page, view.Query{Category: "all", SortField: view.SortVolume})

	require.Equal(t, []string{"m1", "m2"}, v.ids)
	require.Equal(t, "42.0%", v.table.GetCell(1, 1).Text)

	v.table.Select(2, 0)
	id, ok := v.Selected()
	require.True(t, ok)
	require.Equal(t, "m2", id)

	require.True(t, strings.Contains(v.table.GetTitle(), "page 1/1 (2)"))

	v.UpdateTokens(view.Page[store.Token]{Page: 1}, view.Query{Category: "new"}, time.Now())
	require.Empty(t, v.ids)
	_, ok = v.Selected()
	require.False(t, ok)
}

func newTestApp(deps Deps) *App {
	if deps.MarketView == nil {
		deps.MarketView = view.NewState(deps.Display)
	}
	if deps.TokenView == nil {
		deps.TokenView = view.NewState(deps.Display)
	}
	return NewApp(deps)
}

func TestSortKeepsOtherDisplaySettings(t *testing.T) {
	var saved []store.DisplaySettings
	a := newTestApp(Deps{
		Display:     store.DisplaySettings{PageSize: 10, SortField: view.SortVolume, ShowClosed: true},
		SaveDisplay: func(d store.DisplaySettings) { saved = append(saved, d) },
	})

	a.setSort(view.SortName, true)
	require.Equal(t, []store.DisplaySettings{
		{PageSize: 10, SortField: view.SortName, SortAscending: true, ShowClosed: true},
	}, saved)
}

func TestToggleClosedUpdatesBothExplorers(t *testing.T) {
	var saved store.DisplaySettings
	a := newTestApp(Deps{
		Display:     store.DisplaySettings{PageSize: 10, SortField: view.SortVolume},
		SaveDisplay: func(d store.DisplaySettings) { saved = d },
	})

	a.toggleClosed()
	require.True(t, a.deps.MarketView.Query().ShowClosed)
	require.True(t, a.deps.TokenView.Query().ShowClosed)
	require.True(t, saved.ShowClosed)
	require.Equal(t, view.SortVolume, saved.SortField)

	a.toggleClosed()
	require.False(t, a.deps.MarketView.Query().ShowClosed)
	require.False(t, saved.ShowClosed)
}

func TestToggleAlerts(t *testing.T) {
	engine := alerts.NewEngine(store.DefaultAlertSettings())
	var saved []bool
	a := newTestApp(Deps{
		Alerts:     engine,
		SaveAlerts: func(s store.AlertSettings) { saved = append(saved, s.Enabled) },
	})

	a.toggleAlerts()
	require.False(t, engine.Settings().Enabled)
	a.toggleAlerts()
	require.True(t, engine.Settings().Enabled)
	require.Equal(t, []bool{false, true}, saved)
}

func TestCycleWallets(t *testing.T) {
	w1 := common.HexToAddress("0x01")
	w2 := common.HexToAddress("0x02")
	a := newTestApp(Deps{WalletChoices: []WalletChoice{
		{Label: "all", Addresses: []common.Address{w1, w2}},
		{Label: "w1", Addresses: []common.Address{w1}},
		{Label: "active"},
	}})

	require.Equal(t, []common.Address{w1, w2}, a.wallets())
	a.cycleWallets()
	require.Equal(t, []common.Address{w1}, a.wallets())
	a.cycleWallets()
	require.Empty(t, a.wallets())
	a.cycleWallets()
	require.Len(t, a.wallets(), 2, "wraps around")

	require.Nil(t, newTestApp(Deps{}).wallets())
}

func TestSetPresetUsesSelectedTokenStatus(t *testing.T) {
	tokens := market.NewTokenCache()
	tokens.Upsert([]store.Token{{Address: "0xaaa", Name: "Alpha", Status: "graduating"}})

	type call struct {
		status string
		preset int
	}
	var calls []call
	a := newTestApp(Deps{
		Tokens:    tokens,
		SetPreset: func(status string, preset int) { calls = append(calls, call{status, preset}) },
	})

	a.setPreset(2)
	require.Empty(t, calls, "market explorer has no token selection")

	a.toggleMode()
	a.explorer.UpdateTokens(view.Page[store.Token]{Items: tokens.All(), Page: 1, TotalPages: 1, Total: 1}, view.Query{}, time.Now())
	a.explorer.table.Select(1, 0)
	a.setPreset(2)
	require.Equal(t, []call{{"graduating", 2}}, calls)
}
