// Package alerts raises dashboard alerts for live trades that match the
// user's alert rules.
package alerts

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/spectra/engine/internal/store"
)

// Engine evaluates live trades against AlertSettings.
type Engine struct {
	mu       sync.RWMutex
	settings store.AlertSettings

	burst *BurstTracker

	priceMu    sync.Mutex
	lastPrices map[string]float64 // asset or market -> last price

	logger *slog.Logger
}

// NewEngine creates a new Engine.
func NewEngine(settings store.AlertSettings) *Engine {
	return &Engine{
		settings:   settings,
		burst:      NewBurstTracker(burstWindow(settings)),
		lastPrices: make(map[string]float64),
		logger:     slog.Default().WithGroup("alerts"),
	}
}

func burstWindow(s store.AlertSettings) time.Duration {
	if s.BurstWindowSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.BurstWindowSeconds) * time.Second
}

// Settings returns the active settings.
func (e *Engine) Settings() store.AlertSettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// SetSettings replaces the alert rules.
func (e *Engine) SetSettings(s store.AlertSettings) {
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	e.burst.SetWindow(burstWindow(s))
}

// Evaluate returns the alerts raised by trade. Prices are tracked even when
// alerts are disabled so a later shock is measured against the right base.
func (e *Engine) Evaluate(trade store.LiveTrade) []store.Alert {
	s := e.Settings()

	var alerts []store.Alert

	// Price shock, measured against the previous trade of the same asset.
	key := trade.AssetID
	if key == "" {
		key = trade.MarketID
	}
	if key != "" && trade.Price > 0 {
		e.priceMu.Lock()
		last, ok := e.lastPrices[key]
		e.lastPrices[key] = trade.Price
		e.priceMu.Unlock()

		if ok && last > 0 && s.PriceShockPct > 0 {
			pct := math.Abs(trade.Price-last) / last * 100
			if pct >= s.PriceShockPct {
				alerts = append(alerts, store.Alert{
					Type:  store.AlertPriceShock,
					Trade: trade,
					Meta: map[string]interface{}{
						"prev_price": last,
						"new_price":  trade.Price,
						"pct_change": pct,
					},
				})
			}
		}
	}

	if s.MinNotional > 0 && trade.Notional() >= s.MinNotional {
		alerts = append(alerts, store.Alert{
			Type:  store.AlertLargeTrade,
			Trade: trade,
			Meta:  map[string]interface{}{"notional": trade.Notional()},
		})
	}

	if trade.Trader != "" && s.BurstCount > 0 {
		count := e.burst.Record(trade.Trader, trade.Time())
		if count >= s.BurstCount {
			alerts = append(alerts, store.Alert{
				Type:  store.AlertBurst,
				Trade: trade,
				Meta:  map[string]interface{}{"count": count},
			})
		}
	}

	if !s.Enabled {
		return nil
	}
	for _, a := range alerts {
		e.logger.Info("alert_raised", "type", a.Type, "trade", a.Trade.ID, "market", a.Trade.MarketID)
	}
	return alerts
}

// EvaluateAll evaluates trades in timestamp order.
func (e *Engine) EvaluateAll(trades []store.LiveTrade) []store.Alert {
	ordered := make([]store.LiveTrade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	var out []store.Alert
	for _, t := range ordered {
		out = append(out, e.Evaluate(t)...)
	}
	return out
}

// Cleanup drops idle burst state.
func (e *Engine) Cleanup(now time.Time) {
	e.burst.Cleanup(now)
}
