package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/spectra/engine/internal/store"
)

// AlertsView displays raised trade alerts.
type AlertsView struct {
	list     *tview.List
	alerts   []store.Alert
	maxItems int
}

// NewAlertsView creates a new alerts view.
func NewAlertsView() *AlertsView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" Alerts ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)

	v := &AlertsView{
		list:     list,
		alerts:   make([]store.Alert, 0, 50),
		maxItems: 50,
	}
	v.rebuildList()
	return v
}

// Widget returns the tview primitive.
func (v *AlertsView) Widget() tview.Primitive {
	return v.list
}

// Add prepends alerts, newest first.
func (v *AlertsView) Add(alerts []store.Alert) {
	if len(alerts) == 0 {
		return
	}
	fresh := make([]store.Alert, 0, len(alerts)+len(v.alerts))
	for i := len(alerts) - 1; i >= 0; i-- {
		fresh = append(fresh, alerts[i])
	}
	v.alerts = append(fresh, v.alerts...)

	if len(v.alerts) > v.maxItems {
		v.alerts = v.alerts[:v.maxItems]
	}

	v.rebuildList()
}

// rebuildList rebuilds the entire list from alerts.
func (v *AlertsView) rebuildList() {
	v.list.Clear()

	if len(v.alerts) == 0 {
		v.list.AddItem("No alerts yet", "", 0, nil)
		return
	}

	for _, a := range v.alerts {
		mainText, secondaryText := formatAlert(a)
		v.list.AddItem(mainText, secondaryText, 0, nil)
	}

	v.list.SetTitle(fmt.Sprintf(" Alerts (%d) ", len(v.alerts)))
}

// formatAlert formats an alert for display.
func formatAlert(a store.Alert) (string, string) {
	var color string
	switch a.Type {
	case store.AlertLargeTrade:
		color = "blue"
	case store.AlertBurst:
		color = "yellow"
	case store.AlertPriceShock:
		color = "green"
	default:
		color = "white"
	}

	market := a.Trade.Title
	if market == "" {
		market = truncateAddress(a.Trade.MarketID)
	}

	mainText := fmt.Sprintf("%s [%s]%s[-] %s", a.Trade.Time().Format("15:04:05"), color, a.Type, truncate(market, 40))

	secondaryText := fmt.Sprintf("Trader: %s | $%.2f @ %.3f", truncateAddress(a.Trade.Trader), a.Trade.Notional(), a.Trade.Price)

	if pct, ok := a.Meta["pct_change"].(float64); ok {
		secondaryText += fmt.Sprintf(" | Δ%.2f%%", pct)
	}
	if n, ok := a.Meta["count"].(int); ok {
		secondaryText += fmt.Sprintf(" | %d trades", n)
	}

	return mainText, secondaryText
}

// truncateAddress truncates a wallet address for display.
func truncateAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
