package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/spectra/engine/internal/metrics"
)

var moverHeaders = []string{"Market", "Change", "Trades", "Value"}

// TopMoversView displays the markets whose live trade price moved most.
type TopMoversView struct {
	table *tview.Table
}

// NewTopMoversView creates a new top movers view.
func NewTopMoversView() *TopMoversView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Top Movers ").SetBorder(true)

	return &TopMoversView{
		table: table,
	}
}

// Widget returns the tview primitive.
func (v *TopMoversView) Widget() tview.Primitive {
	return v.table
}

// Update refreshes the top movers display. Movers arrive ranked.
func (v *TopMoversView) Update(movers []metrics.Mover) {
	v.table.Clear()

	for col, header := range moverHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}

	if len(movers) == 0 {
		cell := tview.NewTableCell("No data yet...").
			SetAlign(tview.AlignCenter).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
		return
	}

	for i, mover := range movers {
		row := i + 1

		title := mover.Title
		if title == "" {
			title = truncateAddress(mover.MarketID)
		}

		changeColor := tcell.ColorWhite
		if mover.PriceChange > 0 {
			changeColor = tcell.ColorGreen
		} else if mover.PriceChange < 0 {
			changeColor = tcell.ColorRed
		}

		v.table.SetCell(row, 0, tview.NewTableCell(truncate(title, 28)).SetAlign(tview.AlignLeft))
		v.table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%+.2f%%", mover.PriceChange)).
			SetAlign(tview.AlignRight).
			SetTextColor(changeColor))
		v.table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", mover.TradeCount)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("$%.0f", mover.Notional)).SetAlign(tview.AlignRight))
	}
}
