package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/spectra/engine/internal/metrics"
	"github.com/spectra/engine/internal/store"
)

// StatsDashboardView displays system health and session counters.
type StatsDashboardView struct {
	textView *tview.TextView
}

// NewStatsDashboardView creates a new stats dashboard view.
func NewStatsDashboardView() *StatsDashboardView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Stats ").SetBorder(true)

	return &StatsDashboardView{
		textView: textView,
	}
}

// Widget returns the tview primitive.
func (v *StatsDashboardView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the stats display.
func (v *StatsDashboardView) Update(snapshot metrics.Snapshot, cached int, exhausted bool) {
	v.textView.Clear()

	wsColor := "red"
	if snapshot.WebSocketStatus == metrics.StatusConnected {
		wsColor = "green"
	}

	pages := "more"
	if exhausted {
		pages = "exhausted"
	}

	text := fmt.Sprintf(`[yellow]System Status[-]
Uptime: %s
WebSocket: [%s]%s[-]
Backfill: %s

[yellow]Markets[-]
Cached: %d (%d pages, %s)
Refreshes: %d (%d updated)

[yellow]Trades[-]
Total: %d
Rate: %.2f trades/sec
Alerts: %d large, %d burst, %d shock

[yellow]Buys[-]
Attempted: %d  Succeeded: %d  Failed: %d
Wallet txs: %d ok, %d failed, %d pending
`,
		formatDuration(snapshot.Uptime),
		wsColor, snapshot.WebSocketStatus,
		formatTimeAgo(snapshot.RESTLastPoll),
		cached, snapshot.PagesMerged, pages,
		snapshot.RefreshTicks, snapshot.RecordsUpdated,
		snapshot.TradesTotal,
		snapshot.TradeRate,
		snapshot.AlertsByType[store.AlertLargeTrade],
		snapshot.AlertsByType[store.AlertBurst],
		snapshot.AlertsByType[store.AlertPriceShock],
		snapshot.BuysAttempted, snapshot.BuysSucceeded, snapshot.BuysFailed,
		snapshot.SubmissionsOK, snapshot.SubmissionsFailed, snapshot.PendingSubmissions,
	)

	fmt.Fprint(v.textView, text)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatTimeAgo formats a time as "X ago".
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	elapsed := time.Since(t)

	if elapsed < time.Minute {
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	}
	if elapsed < 24*time.Hour {
		return fmt.Sprintf("%.0fh ago", elapsed.Hours())
	}
	return fmt.Sprintf("%.0fd ago", elapsed.Hours()/24)
}
