// Package ui provides terminal user interface components.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/spectra/engine/internal/alerts"
	"github.com/spectra/engine/internal/dispatch"
	"github.com/spectra/engine/internal/ingest"
	"github.com/spectra/engine/internal/market"
	"github.com/spectra/engine/internal/metrics"
	"github.com/spectra/engine/internal/store"
	"github.com/spectra/engine/internal/trades"
	"github.com/spectra/engine/internal/view"
)

// Explorer modes.
const (
	ModeMarkets = "markets"
	ModeTokens  = "tokens"
)

// TokenStatuses are the token explorer categories in cycling order.
var TokenStatuses = []string{view.CategoryAll, "new", "graduating", "graduated"}

// WalletChoice is one selectable set of buying wallets. An empty address
// list buys from the active account.
type WalletChoice struct {
	Label     string
	Addresses []common.Address
}

// Deps are the shared stores and actions the dashboard reads and drives.
type Deps struct {
	Markets    *market.Cache
	Reconciler *market.Reconciler
	Tokens     *market.TokenCache
	MarketView *view.State
	TokenView  *view.State
	Trades     *trades.Buffer
	Tracker    *metrics.Tracker
	Hover      *ingest.Hover

	// Buy quick-buys a token from wallets; nil disables the buy key
	Buy           func(ctx context.Context, token store.Token, wallets []common.Address)
	WalletChoices []WalletChoice

	// SetPreset stores the fee preset for a token status; may be nil
	SetPreset func(status string, preset int)

	// Display is the persisted display state; SaveDisplay may be nil
	Display     store.DisplaySettings
	SaveDisplay func(store.DisplaySettings)

	// Alerts is toggled by the alerts key; SaveAlerts may be nil
	Alerts     *alerts.Engine
	SaveAlerts func(store.AlertSettings)

	RefreshRate time.Duration
}

// App is the main TUI application.
type App struct {
	app    *tview.Application
	layout *tview.Flex
	deps   Deps

	// Views
	explorer       *ExplorerView
	alerts         *AlertsView
	liveTrades     *LiveTradesView
	statsDashboard *StatsDashboardView
	topMovers      *TopMoversView
	detail         *tview.TextView
	notice         *tview.TextView

	// State
	mu         sync.Mutex
	mode       string
	display    store.DisplaySettings
	wallet     int
	visible    []string
	totalPages int
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApp creates a new TUI application.
func NewApp(deps Deps) *App {
	ctx, cancel := context.WithCancel(context.Background())
	if deps.RefreshRate <= 0 {
		deps.RefreshRate = 500 * time.Millisecond
	}

	app := &App{
		app:     tview.NewApplication(),
		deps:    deps,
		mode:    ModeMarkets,
		display: deps.Display,
		ctx:     ctx,
		cancel:  cancel,
	}

	// Initialize views
	app.explorer = NewExplorerView()
	app.alerts = NewAlertsView()
	app.liveTrades = NewLiveTradesView()
	app.statsDashboard = NewStatsDashboardView()
	app.topMovers = NewTopMoversView()
	app.detail = tview.NewTextView().SetDynamicColors(true)
	app.notice = tview.NewTextView().SetDynamicColors(true)
	app.notice.SetText("[gray]n/p page  c category  s sort  d direction  x closed  t markets/tokens  w wallets  1-3 preset  b buy  a alerts  q quit[-]")

	app.explorer.SetSelectionChangedFunc(app.onSelect)

	app.setupLayout()
	app.setupKeyboard()

	return app
}

// setupLayout creates the dashboard layout.
func (a *App) setupLayout() {
	// Top row: Explorer (left) | Alerts (right)
	explorer := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.explorer.Widget(), 0, 1, true).
		AddItem(a.detail, 1, 0, false)
	topRow := tview.NewFlex().
		AddItem(explorer, 0, 2, true).
		AddItem(a.alerts.Widget(), 0, 1, false)

	// Bottom row: Live Trades | Stats | Top Movers
	bottomRow := tview.NewFlex().
		AddItem(a.liveTrades.Widget(), 0, 2, false).
		AddItem(a.statsDashboard.Widget(), 0, 1, false).
		AddItem(a.topMovers.Widget(), 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 3, true).
		AddItem(bottomRow, 0, 2, false).
		AddItem(a.notice, 1, 0, false)

	a.app.SetRoot(a.layout, true).SetFocus(a.explorer.Widget())
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.Stop()
				return nil
			case 'n':
				a.nextPage()
			case 'p':
				a.state().Prev()
			case 'c':
				a.cycleCategory()
			case 's':
				a.cycleSort()
			case 'd':
				q := a.state().Query()
				a.setSort(q.SortField, !q.Ascending)
			case 'x':
				a.toggleClosed()
			case 't':
				a.toggleMode()
			case 'w':
				a.cycleWallets()
			case '1', '2', '3':
				a.setPreset(int(event.Rune() - '0'))
			case 'b':
				a.buySelected()
			case 'a':
				a.toggleAlerts()
			case 'r':
			default:
				return event
			}
			// QueueUpdateDraw blocks until the event loop runs it
			go a.refresh()
			return nil
		}
		return event
	})
}

// Run starts the TUI application (blocking).
func (a *App) Run() error {
	go a.updateLoop()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// Done is closed when the application stops.
func (a *App) Done() <-chan struct{} {
	return a.ctx.Done()
}

// VisibleMarketIDs returns the ids on the rendered market page. It is the
// reconciler's refresh callback.
func (a *App) VisibleMarketIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.visible...)
}

// Notify shows a notice on the status line.
func (a *App) Notify(n dispatch.Notice) {
	color := "white"
	switch n.Variant {
	case dispatch.VariantSuccess:
		color = "green"
	case dispatch.VariantError:
		color = "red"
	}
	text := fmt.Sprintf("[%s]%s[-] %s", color, tview.Escape(n.Title), tview.Escape(n.Subtitle))
	a.app.QueueUpdateDraw(func() {
		a.notice.SetText(text)
	})
}

// AddAlerts shows newly raised alerts.
func (a *App) AddAlerts(alerts []store.Alert) {
	if len(alerts) == 0 {
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.alerts.Add(alerts)
	})
}

// updateLoop periodically re-derives every view.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.deps.RefreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

// refresh derives the explorer page and redraws all views.
func (a *App) refresh() {
	now := time.Now()
	snapshot := a.deps.Tracker.Snapshot()
	liveTrades := a.deps.Trades.Snapshot()

	a.mu.Lock()
	mode := a.mode
	a.mu.Unlock()

	var draw func()
	switch mode {
	case ModeTokens:
		var tokens []store.Token
		if a.deps.Tokens != nil {
			tokens = a.deps.Tokens.All()
		}
		page := view.Apply(a.deps.TokenView, tokens, view.TokenFields, now)
		q := a.deps.TokenView.Query()
		a.setPages(page.TotalPages)
		draw = func() { a.explorer.UpdateTokens(page, q, now) }
	default:
		page := view.Apply(a.deps.MarketView, a.deps.Markets.All(), view.MarketFields, now)
		q := a.deps.MarketView.Query()

		ids := make([]string, 0, len(page.Items))
		for _, m := range page.Items {
			ids = append(ids, m.ID)
		}
		a.mu.Lock()
		a.visible = ids
		a.mu.Unlock()
		a.setPages(page.TotalPages)
		draw = func() { a.explorer.UpdateMarkets(page, q) }
	}

	a.app.QueueUpdateDraw(func() {
		draw()
		a.liveTrades.Update(liveTrades)
		a.statsDashboard.Update(snapshot, a.deps.Markets.Len(), a.deps.Reconciler.Exhausted())
		a.topMovers.Update(snapshot.TopMovers)
	})
}

func (a *App) setPages(n int) {
	a.mu.Lock()
	a.totalPages = n
	a.mu.Unlock()
}

func (a *App) state() *view.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == ModeTokens {
		return a.deps.TokenView
	}
	return a.deps.MarketView
}

// nextPage advances the page, loading another market page from the API when
// already on the last one.
func (a *App) nextPage() {
	st := a.state()
	q := st.Query()

	a.mu.Lock()
	last := q.Page >= a.totalPages
	mode := a.mode
	a.mu.Unlock()

	if mode == ModeMarkets && last && !a.deps.Reconciler.Exhausted() {
		go func() {
			if added, err := a.deps.Reconciler.LoadNextPage(a.ctx); err == nil && added > 0 {
				st.Next()
				a.refresh()
			}
		}()
		return
	}
	st.Next()
}

func (a *App) cycleCategory() {
	a.mu.Lock()
	mode := a.mode
	a.mu.Unlock()

	st := a.state()
	current := st.Query().Category

	if mode == ModeTokens {
		st.SetCategory(nextOf(TokenStatuses, current), nil)
		return
	}

	categories := append([]string{view.CategoryAll}, a.deps.Reconciler.Categories()...)
	next := nextOf(categories, current)
	if next == view.CategoryAll {
		st.SetCategory(view.CategoryAll, nil)
		return
	}

	go func() {
		members, err := a.deps.Reconciler.SwitchCategory(a.ctx, next)
		switch {
		case errors.Is(err, market.ErrFetchInFlight):
			a.Notify(dispatch.Notice{Title: "Loading", Subtitle: next, Variant: dispatch.VariantInfo})
			return
		case err != nil:
			a.Notify(dispatch.Notice{Title: "Category failed", Subtitle: err.Error(), Variant: dispatch.VariantError})
			return
		}
		st.SetCategory(next, members)
		a.refresh()
	}()
}

func (a *App) cycleSort() {
	q := a.state().Query()
	a.setSort(nextOf(view.SortFields, q.SortField), q.Ascending)
}

func (a *App) setSort(field string, ascending bool) {
	st := a.state()
	st.SetSort(field, ascending)
	q := st.Query()

	a.mu.Lock()
	a.display.SortField = q.SortField
	a.display.SortAscending = q.Ascending
	d := a.display
	a.mu.Unlock()
	a.saveDisplay(d)
}

// toggleClosed shows or hides resolved markets in both explorers.
func (a *App) toggleClosed() {
	a.mu.Lock()
	a.display.ShowClosed = !a.display.ShowClosed
	d := a.display
	a.mu.Unlock()

	a.deps.MarketView.SetShowClosed(d.ShowClosed)
	a.deps.TokenView.SetShowClosed(d.ShowClosed)
	a.saveDisplay(d)
}

func (a *App) saveDisplay(d store.DisplaySettings) {
	if a.deps.SaveDisplay != nil {
		a.deps.SaveDisplay(d)
	}
}

func (a *App) toggleAlerts() {
	if a.deps.Alerts == nil {
		return
	}
	s := a.deps.Alerts.Settings()
	s.Enabled = !s.Enabled
	a.deps.Alerts.SetSettings(s)
	if a.deps.SaveAlerts != nil {
		a.deps.SaveAlerts(s)
	}

	state := "off"
	if s.Enabled {
		state = "on"
	}
	go a.Notify(dispatch.Notice{Title: "Alerts", Subtitle: state, Variant: dispatch.VariantInfo})
}

// cycleWallets moves to the next wallet choice used by the buy key.
func (a *App) cycleWallets() {
	if len(a.deps.WalletChoices) == 0 {
		return
	}
	a.mu.Lock()
	a.wallet = (a.wallet + 1) % len(a.deps.WalletChoices)
	choice := a.deps.WalletChoices[a.wallet]
	a.mu.Unlock()

	go a.Notify(dispatch.Notice{Title: "Buying from", Subtitle: choice.Label, Variant: dispatch.VariantInfo})
}

// wallets returns the addresses of the current wallet choice.
func (a *App) wallets() []common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.deps.WalletChoices) == 0 {
		return nil
	}
	return a.deps.WalletChoices[a.wallet].Addresses
}

// setPreset stores the fee preset for the selected token's status.
func (a *App) setPreset(preset int) {
	token, ok := a.selectedToken()
	if !ok || a.deps.SetPreset == nil {
		return
	}
	a.deps.SetPreset(token.Status, preset)
	go a.Notify(dispatch.Notice{
		Title:    fmt.Sprintf("Preset %d", preset),
		Subtitle: token.Status,
		Variant:  dispatch.VariantInfo,
	})
}

// selectedToken returns the highlighted token in the token explorer.
func (a *App) selectedToken() (store.Token, bool) {
	a.mu.Lock()
	mode := a.mode
	a.mu.Unlock()

	if mode != ModeTokens || a.deps.Tokens == nil {
		return store.Token{}, false
	}
	id, ok := a.explorer.Selected()
	if !ok {
		return store.Token{}, false
	}
	return a.deps.Tokens.Get(id)
}

func (a *App) toggleMode() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == ModeMarkets {
		a.mode = ModeTokens
		a.visible = nil
	} else {
		a.mode = ModeMarkets
	}
}

func (a *App) buySelected() {
	a.mu.Lock()
	mode := a.mode
	a.mu.Unlock()

	if mode != ModeTokens || a.deps.Buy == nil || a.deps.Tokens == nil {
		go a.Notify(dispatch.Notice{Title: "Quick buy", Subtitle: "switch to the token explorer (t) to buy", Variant: dispatch.VariantInfo})
		return
	}
	token, ok := a.selectedToken()
	if !ok {
		return
	}
	go a.deps.Buy(a.ctx, token, a.wallets())
}

// onSelect shows the selected row and, for markets, its order book.
func (a *App) onSelect(id string) {
	a.mu.Lock()
	mode := a.mode
	a.mu.Unlock()

	if mode == ModeTokens {
		if a.deps.Tokens == nil {
			return
		}
		if t, ok := a.deps.Tokens.Get(id); ok {
			a.detail.SetText(fmt.Sprintf("[yellow]%s[-] %s  dev %s  %s", tview.Escape(t.Symbol), t.Address, truncateAddress(t.Developer), t.Venue))
		}
		return
	}

	m, ok := a.deps.Markets.Get(id)
	if !ok {
		return
	}
	a.detail.SetText(describeMarket(m))

	if a.deps.Hover == nil {
		return
	}
	var tokenID string
	if len(m.Outcomes) > 0 {
		tokenID = m.Outcomes[0].TokenID
	}
	if tokenID == "" && m.SeriesID == "" {
		return
	}
	go func() {
		base := describeMarket(m)
		text := base
		if book := a.deps.Hover.Book(a.ctx, tokenID); book != nil {
			text += fmt.Sprintf("  [green]bid %s[-] / [red]ask %s[-]", book.BestBid(), book.BestAsk())
		}
		if series := a.deps.Hover.Series(a.ctx, m.SeriesID); series != nil {
			text += fmt.Sprintf("  [blue]%s[-] %s", tview.Escape(series.Title), series.Recurrence)
		}
		if text == base {
			return
		}
		a.app.QueueUpdateDraw(func() {
			if cur, ok := a.explorer.Selected(); ok && cur == id {
				a.detail.SetText(text)
			}
		})
	}()
}

func describeMarket(m store.Market) string {
	parts := make([]string, 0, 3)
	for i, o := range m.Outcomes {
		if i == 3 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s %.1f%%", tview.Escape(o.Name), o.Price.InexactFloat64()*100))
	}
	return fmt.Sprintf("[yellow]%s[-] %s", tview.Escape(truncate(m.Question, 40)), strings.Join(parts, " | "))
}

// nextOf returns the element after current, wrapping around.
func nextOf(list []string, current string) string {
	if len(list) == 0 {
		return current
	}
	for i, v := range list {
		if strings.EqualFold(v, current) {
			return list[(i+1)%len(list)]
		}
	}
	return list[0]
}
