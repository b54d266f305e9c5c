package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/spectra/engine/internal/store"
)

var tradeHeaders = []string{"Time", "Market", "Side", "Outcome", "Price", "Value", "Trader"}

// LiveTradesView displays the live trade buffer, newest first.
type LiveTradesView struct {
	table   *tview.Table
	maxRows int
}

// NewLiveTradesView creates a new live trades view.
func NewLiveTradesView() *LiveTradesView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Live Trades ").SetBorder(true)

	return &LiveTradesView{
		table:   table,
		maxRows: 100,
	}
}

// Widget returns the tview primitive.
func (v *LiveTradesView) Widget() tview.Primitive {
	return v.table
}

// Update redraws the table from a buffer snapshot.
func (v *LiveTradesView) Update(trades []store.LiveTrade) {
	v.table.Clear()

	for col, header := range tradeHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}

	shown := trades
	if len(shown) > v.maxRows {
		shown = shown[:v.maxRows]
	}

	for i, trade := range shown {
		row := i + 1

		market := trade.Title
		if market == "" {
			market = truncateAddress(trade.MarketID)
		}

		trader := truncateAddress(trade.Trader)
		if trader == "" {
			trader = "unknown"
		}

		side := trade.Side
		sideColor := tcell.ColorWhite
		switch side {
		case "BUY":
			sideColor = tcell.ColorGreen
		case "SELL":
			sideColor = tcell.ColorRed
		case "":
			side = "?"
		}

		cells := []string{
			trade.Time().Format("15:04:05"),
			truncate(market, 40),
			side,
			trade.Outcome,
			fmt.Sprintf("%.3f", trade.Price),
			fmt.Sprintf("$%.0f", trade.Notional()),
			trader,
		}

		for col, text := range cells {
			cell := tview.NewTableCell(text).
				SetAlign(tview.AlignLeft)
			if col == 2 {
				cell.SetTextColor(sideColor)
			}
			v.table.SetCell(row, col, cell)
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Live Trades (%d) ", len(trades)))
}
