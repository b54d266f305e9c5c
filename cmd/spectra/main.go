// Package main is the entry point for the Spectra trading dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/spectra/engine/internal/alerts"
	"github.com/spectra/engine/internal/config"
	"github.com/spectra/engine/internal/dispatch"
	"github.com/spectra/engine/internal/ingest"
	"github.com/spectra/engine/internal/ledger"
	"github.com/spectra/engine/internal/market"
	"github.com/spectra/engine/internal/metrics"
	"github.com/spectra/engine/internal/nonce"
	"github.com/spectra/engine/internal/settings"
	"github.com/spectra/engine/internal/store"
	"github.com/spectra/engine/internal/trades"
	"github.com/spectra/engine/internal/ui"
	"github.com/spectra/engine/internal/view"
)

const (
	// TradeChannelBuffer is the size of the buffered trade batch channel
	TradeChannelBuffer = 100
	// StatusLogInterval is how often headless mode logs a summary
	StatusLogInterval = 30 * time.Second
)

var errNoRPC = errors.New("no RPC_URL configured")

func main() {
	// Load configuration
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// The dashboard owns the terminal, so logs go to a file in TUI mode
	var logOut io.Writer = os.Stdout
	if cfg.EnableTUI {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Error("failed to open log file", "path", cfg.LogFile, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(setupLogger(cfg.LogLevel, logOut))

	slog.Info("spectra starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"gamma_url", cfg.GammaURL,
		"clob_url", cfg.CLOBURL,
		"trades_ws_url", cfg.TradesWSURL,
		"data_api_url", cfg.DataAPIURL,
		"tokens_url", cfg.TokensURL,
		"rpc_url", cfg.MaskedRPCURL(),
		"chain_id", cfg.ChainID,
		"active_wallet_key", cfg.MaskedActiveKey(),
		"sub_wallets", len(cfg.SubWalletKeys),
		"gas_reserve_wei", cfg.GasReserveWei.String(),
		"price_refresh", cfg.PriceRefresh,
		"max_live_trades", cfg.MaxLiveTrades,
		"dispatch_concurrency", cfg.DispatchConcurrency,
		"db_path", cfg.DBPath,
		"enable_tui", cfg.EnableTUI,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Persisted settings
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create data dir", "path", dir, "error", err)
			os.Exit(1)
		}
	}
	settingsStore, err := settings.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open settings", "error", err)
		os.Exit(1)
	}
	defer settingsStore.Close()

	display := settingsStore.Display(ctx)
	blacklist := settingsStore.Blacklist(ctx)

	// Initialize metrics tracker
	tracker := metrics.NewTracker()

	// Market cache
	gamma, err := ingest.NewGammaClient(cfg.GammaURL)
	if err != nil {
		slog.Error("invalid gamma url", "error", err)
		os.Exit(1)
	}
	cache := market.NewCache()
	reconciler := market.NewReconciler(gamma, cache, market.NewSeenSet(), tracker, market.Config{
		PageSize:        cfg.PageSize,
		RefreshInterval: cfg.PriceRefresh,
	})
	tokens := market.NewTokenCache()

	marketView := newViewState(ctx, settingsStore, display, blacklist, ui.ModeMarkets)
	tokenView := newViewState(ctx, settingsStore, display, blacklist, ui.ModeTokens)

	// Wallets and chain access
	subs, active, err := cfg.Wallets()
	if err != nil {
		slog.Error("invalid wallet keys", "error", err)
		os.Exit(1)
	}
	names := settingsStore.WalletNames(ctx)
	for _, w := range subs {
		slog.Info("wallet_loaded", "address", w.Address.Hex(), "name", names[strings.ToLower(w.Address.Hex())])
	}

	balances := ledger.New(ledger.ChainConfig{
		NativeToken: cfg.NativeToken,
		GasReserve:  cfg.GasReserveWei,
	})

	var nonceSource nonce.Source
	var submitter dispatch.Submitter = dispatch.SubmitFunc(func(context.Context, dispatch.Operation) (dispatch.Receipt, error) {
		return dispatch.Receipt{}, errNoRPC
	})
	var refresher *ledger.Refresher
	if cfg.RPCURL != "" {
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			slog.Error("failed to dial rpc", "rpc_url", cfg.MaskedRPCURL(), "error", err)
			os.Exit(1)
		}
		defer client.Close()

		nonceSource = client
		submitter = dispatch.NewEthSubmitter(client, big.NewInt(cfg.ChainID))
		refresher = ledger.NewRefresher(balances, client, walletAddresses(subs, active), cfg.BalanceRefresh)
	} else {
		slog.Warn("rpc_not_configured", "effect", "balances stay empty and buys fail")
	}

	registry := nonce.NewRegistry(nonceSource)
	tracker.SetPendingFunc(registry.PendingCount)

	builder, err := dispatch.NewCallBuilder(dispatch.CallConfig{
		Router:       common.HexToAddress(cfg.RouterAddress),
		Aggregator:   common.HexToAddress(cfg.AggregatorAddress),
		FeeRecipient: common.HexToAddress(cfg.FeeRecipient),
		FeeBps:       uint16(cfg.FeeBps),
	})
	if err != nil {
		slog.Error("failed to build call encoder", "error", err)
		os.Exit(1)
	}
	dispatcher := dispatch.NewDispatcher(builder, registry, submitter, cfg.DispatchConcurrency)

	alertEngine := alerts.NewEngine(settingsStore.Alerts(ctx))
	buffer := trades.NewBuffer(cfg.MaxLiveTrades)

	// Dashboard
	var app *ui.App
	notify := func(n dispatch.Notice) {
		slog.Info("notice", "title", n.Title, "subtitle", n.Subtitle, "variant", n.Variant)
		if app != nil {
			app.Notify(n)
		}
	}
	quickBuy := dispatch.NewQuickBuy(dispatcher, balances, subs, active, dispatch.NewLoading(), notify, tracker)

	buy := func(ctx context.Context, token store.Token, wallets []common.Address) {
		qb := settingsStore.QuickBuy(ctx, token.Status)
		amount, err := dispatch.ParseNative(qb.Amount)
		if err != nil {
			notify(dispatch.Notice{Title: "Buy Failed", Subtitle: err.Error(), Variant: dispatch.VariantError, At: time.Now()})
			return
		}
		_, err = quickBuy.Buy(ctx, dispatch.BuyRequest{
			Token:     token,
			Amount:    amount,
			Wallets:   wallets,
			ButtonKey: "quickbuy:" + token.Address,
			GasTipCap: cfg.PresetTip(qb.Preset),
		})
		if errors.Is(err, dispatch.ErrBuyInFlight) {
			slog.Debug("buy_in_flight", "token", token.Address)
		}
	}

	onAlerts := func(raised []store.Alert) {
		for _, a := range raised {
			slog.Info("alert", "type", a.Type, "market", truncateID(a.Trade.MarketID), "notional", a.Trade.Notional())
		}
	}

	if cfg.EnableTUI {
		app = ui.NewApp(ui.Deps{
			Markets:    cache,
			Reconciler: reconciler,
			Tokens:     tokens,
			MarketView: marketView,
			TokenView:  tokenView,
			Trades:     buffer,
			Tracker:    tracker,
			Hover:      ingest.NewHover(cfg.CLOBURL),

			Buy:           buy,
			WalletChoices: walletChoices(subs, active, names),
			SetPreset: func(status string, preset int) {
				qb := settingsStore.QuickBuy(context.Background(), status)
				qb.Preset = preset
				if err := settingsStore.SaveQuickBuy(context.Background(), status, qb); err != nil {
					slog.Warn("quickbuy_save_failed", "status", status, "error", err)
				}
			},

			Display: display,
			SaveDisplay: func(d store.DisplaySettings) {
				if err := settingsStore.SaveDisplay(context.Background(), d); err != nil {
					slog.Warn("display_save_failed", "error", err)
				}
			},
			Alerts: alertEngine,
			SaveAlerts: func(a store.AlertSettings) {
				if err := settingsStore.SaveAlerts(context.Background(), a); err != nil {
					slog.Warn("alerts_save_failed", "error", err)
				}
			},

			RefreshRate: cfg.UIRefreshRate,
		})
		reconciler.SetVisible(app.VisibleMarketIDs)
		onAlerts = app.AddAlerts
	} else {
		reconciler.SetVisible(func() []string {
			page := view.Apply(marketView, cache.All(), view.MarketFields, time.Now())
			ids := make([]string, 0, len(page.Items))
			for _, m := range page.Items {
				ids = append(ids, m.ID)
			}
			return ids
		})
	}

	// Background work
	go func() {
		if _, err := reconciler.LoadNextPage(ctx); err != nil {
			slog.Warn("initial_page_failed", "error", err)
		}
	}()
	go reconciler.StartRefresh(ctx)

	if refresher != nil {
		go refresher.Start(ctx)
	}

	if cfg.TokensURL != "" {
		go market.PollTokens(ctx, ingest.NewTokenClient(cfg.TokensURL), tokens, cfg.TokenPollPeriod)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tracker.Cleanup()
				alertEngine.Cleanup(time.Now())
			}
		}
	}()

	// Live trade stream and backfill
	tradeChan := make(chan []store.LiveTrade, TradeChannelBuffer)

	listener := ingest.NewListener(cfg.TradesWSURL, tradeChan,
		ingest.WithPingInterval(cfg.WSPing),
		ingest.WithReconnectDelay(cfg.WSReconnect),
		ingest.WithStatusFunc(tracker.SetConnected),
	)
	listener.Start(ctx)

	poller := ingest.NewTradesPoller(cfg.DataAPIURL, cfg.TradePollPeriod, tradeChan)
	poller.OnPoll(tracker.SetRESTLastPoll)
	go poller.Start(ctx)

	go processTrades(ctx, tradeChan, buffer, alertEngine, tracker, onAlerts)

	slog.Info("dashboard_started",
		"wallets", len(subs),
		"active_account", active != nil,
		"tui_enabled", cfg.EnableTUI,
	)

	// Start TUI or run in background mode
	if cfg.EnableTUI {
		go func() {
			if err := app.Run(); err != nil {
				slog.Error("tui_error", "error", err)
			}
			cancel()
		}()

		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
			app.Stop()
		case <-app.Done():
		case <-ctx.Done():
			app.Stop()
		}
	} else {
		go logStatus(ctx, tracker, cache, buffer)

		sig := <-sigChan
		slog.Info("shutdown_signal_received", "signal", sig.String())
	}

	cancel()

	slog.Info("shutting_down", "status", "stopping listener")
	listener.Stop()

	slog.Info("shutdown_complete")
}

// processTrades merges trade batches into the buffer and evaluates alerts on
// the records that were new.
func processTrades(ctx context.Context, in <-chan []store.LiveTrade, buffer *trades.Buffer,
	engine *alerts.Engine, tracker *metrics.Tracker, onAlerts func([]store.Alert)) {

	slog.Debug("trade_processor_started")
	defer slog.Debug("trade_processor_stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-in:
			if !ok {
				return
			}

			fresh := buffer.Merge(batch)
			if len(fresh) == 0 {
				continue
			}
			tracker.RecordTrades(fresh)

			raised := engine.EvaluateAll(fresh)
			if len(raised) == 0 {
				continue
			}
			tracker.RecordAlerts(raised)
			onAlerts(raised)
		}
	}
}

// logStatus periodically logs a dashboard summary in headless mode.
func logStatus(ctx context.Context, tracker *metrics.Tracker, cache *market.Cache, buffer *trades.Buffer) {
	ticker := time.NewTicker(StatusLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := tracker.Snapshot()
			slog.Info("dashboard_status",
				"ws", s.WebSocketStatus,
				"markets_cached", cache.Len(),
				"pages_merged", s.PagesMerged,
				"live_trades", buffer.Len(),
				"trade_rate", s.TradeRate,
				"buys", s.BuysAttempted,
				"pending_txs", s.PendingSubmissions,
			)
		}
	}
}

// walletAddresses lists the sub-wallet addresses, followed by the active
// account when given.
func walletAddresses(subs []store.Wallet, active *store.Wallet) []common.Address {
	out := make([]common.Address, 0, len(subs)+1)
	for _, w := range subs {
		out = append(out, w.Address)
	}
	if active != nil {
		out = append(out, active.Address)
	}
	return out
}

// newViewState restores an explorer's view from persisted settings.
func newViewState(ctx context.Context, s *settings.Store, display store.DisplaySettings,
	blacklist store.BlacklistSettings, explorer string) *view.State {

	st := view.NewState(display)
	st.SetBlacklist(blacklist)
	st.SetFilters(s.Filters(ctx, explorer))
	return st
}

// walletChoices lists the buy targets cycled in the dashboard: every
// sub-wallet, each sub-wallet alone, then the active account.
func walletChoices(subs []store.Wallet, active *store.Wallet, names map[string]string) []ui.WalletChoice {
	var out []ui.WalletChoice
	if len(subs) > 0 {
		out = append(out, ui.WalletChoice{
			Label:     fmt.Sprintf("all %d sub-wallets", len(subs)),
			Addresses: walletAddresses(subs, nil),
		})
	}
	if len(subs) > 1 {
		for _, w := range subs {
			label := names[strings.ToLower(w.Address.Hex())]
			if label == "" {
				label = truncateID(w.Address.Hex())
			}
			out = append(out, ui.WalletChoice{Label: label, Addresses: []common.Address{w.Address}})
		}
	}
	if active != nil {
		out = append(out, ui.WalletChoice{Label: "active account"})
	}
	return out
}

// truncateID shortens an ID for logging.
func truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + "..." + id[len(id)-4:]
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string, out io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(out, opts)
	return slog.New(handler)
}
