package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/shopspring/decimal"

	"github.com/spectra/engine/internal/store"
	"github.com/spectra/engine/internal/view"
)

var (
	marketHeaders = []string{"Market", "Price", "24h Volume", "Liquidity", "Ends"}
	tokenHeaders  = []string{"Token", "Price", "MCap", "Volume", "Holders", "Age"}
)

// ExplorerView displays the current page of the market or token explorer.
type ExplorerView struct {
	table *tview.Table
	ids   []string
}

// NewExplorerView creates a new explorer view.
func NewExplorerView() *ExplorerView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0).
		SetSelectable(true, false)

	table.SetTitle(" Explorer ").SetBorder(true)

	return &ExplorerView{table: table}
}

// Widget returns the tview primitive.
func (v *ExplorerView) Widget() tview.Primitive {
	return v.table
}

// SetSelectionChangedFunc is called with the record id under the cursor.
func (v *ExplorerView) SetSelectionChangedFunc(fn func(id string)) {
	v.table.SetSelectionChangedFunc(func(row, _ int) {
		if id, ok := v.idAt(row); ok {
			fn(id)
		}
	})
}

// Selected returns the id of the highlighted row.
func (v *ExplorerView) Selected() (string, bool) {
	row, _ := v.table.GetSelection()
	return v.idAt(row)
}

func (v *ExplorerView) idAt(row int) (string, bool) {
	i := row - 1
	if i < 0 || i >= len(v.ids) {
		return "", false
	}
	return v.ids[i], true
}

// UpdateMarkets renders a page of markets.
func (v *ExplorerView) UpdateMarkets(page view.Page[store.Market], q view.Query) {
	v.reset(marketHeaders)

	for i, m := range page.Items {
		v.ids = append(v.ids, m.ID)

		question := m.Question
		if m.MultiOutcome() {
			question = fmt.Sprintf("%s (%d)", question, len(m.Outcomes))
		}
		price := "-"
		if len(m.Outcomes) > 0 {
			price = fmt.Sprintf("%.1f%%", m.Outcomes[0].Price.InexactFloat64()*100)
		}
		ends := "-"
		if !m.EndDate.IsZero() {
			ends = m.EndDate.Format("Jan 02")
		}

		v.setRow(i+1, []string{
			truncate(question, 48),
			price,
			formatUSD(m.Volume24h),
			formatUSD(m.Liquidity),
			ends,
		})
	}

	v.finish("Markets", page.Page, page.TotalPages, page.Total, q)
}

// UpdateTokens renders a page of tokens.
func (v *ExplorerView) UpdateTokens(page view.Page[store.Token], q view.Query, now time.Time) {
	v.reset(tokenHeaders)

	for i, t := range page.Items {
		v.ids = append(v.ids, t.Address)

		age := "-"
		if !t.CreatedAt.IsZero() {
			age = formatDuration(now.Sub(t.CreatedAt))
		}

		v.setRow(i+1, []string{
			truncate(fmt.Sprintf("%s %s", t.Symbol, t.Name), 32),
			t.Price.String(),
			formatUSD(t.MarketCap),
			formatUSD(t.Volume),
			fmt.Sprintf("%d", t.Holders),
			age,
		})
	}

	v.finish("Tokens", page.Page, page.TotalPages, page.Total, q)
}

func (v *ExplorerView) reset(headers []string) {
	v.table.Clear()
	v.ids = v.ids[:0]
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}
}

func (v *ExplorerView) setRow(row int, cells []string) {
	for col, text := range cells {
		align := tview.AlignRight
		if col == 0 {
			align = tview.AlignLeft
		}
		cell := tview.NewTableCell(text).
			SetAlign(align).
			SetExpansion(1)
		v.table.SetCell(row, col, cell)
	}
}

func (v *ExplorerView) finish(kind string, page, totalPages, total int, q view.Query) {
	if total == 0 {
		v.table.SetCell(1, 0, tview.NewTableCell("No records match").
			SetTextColor(tcell.ColorGray).
			SetSelectable(false))
	}

	dir := "desc"
	if q.Ascending {
		dir = "asc"
	}
	v.table.SetTitle(fmt.Sprintf(" %s [%s] sort:%s %s page %d/%d (%d) ",
		kind, q.Category, q.SortField, dir, page, max(totalPages, 1), total))
}

// formatUSD abbreviates a dollar amount.
func formatUSD(d decimal.Decimal) string {
	f := d.InexactFloat64()
	switch {
	case f >= 1e9:
		return fmt.Sprintf("$%.1fB", f/1e9)
	case f >= 1e6:
		return fmt.Sprintf("$%.1fM", f/1e6)
	case f >= 1e3:
		return fmt.Sprintf("$%.1fK", f/1e3)
	default:
		return fmt.Sprintf("$%.0f", f)
	}
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}
