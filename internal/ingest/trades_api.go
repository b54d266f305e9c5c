package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spectra/engine/internal/store"
)

const (
	// DataAPIURL is the Polymarket data API used for recent trades
	DataAPIURL = "https://data-api.polymarket.com"
	// DefaultPollInterval is the default backfill cadence
	DefaultPollInterval = 30 * time.Second
	// DefaultBackfillLimit is the number of trades requested per poll
	DefaultBackfillLimit = 100

	// timestamps below this are epoch seconds
	secondsCutoff = 1_000_000_000_000
)

// TradesPoller fetches recent trades over REST and feeds them into the same
// pipeline as the live stream.
type TradesPoller struct {
	baseURL  string
	client   *http.Client
	interval time.Duration
	limit    int
	out      chan<- []store.LiveTrade
	onPoll   func(time.Time)
	logger   *slog.Logger
}

// NewTradesPoller creates a new TradesPoller.
func NewTradesPoller(baseURL string, interval time.Duration, out chan<- []store.LiveTrade) *TradesPoller {
	if baseURL == "" {
		baseURL = DataAPIURL
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &TradesPoller{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		interval: interval,
		limit:    DefaultBackfillLimit,
		out:      out,
		logger:   slog.Default().WithGroup("backfill"),
	}
}

// OnPoll registers a callback run after every successful fetch.
func (p *TradesPoller) OnPoll(fn func(time.Time)) {
	p.onPoll = fn
}

// Start polls once immediately and then on every interval until ctx is done.
func (p *TradesPoller) Start(ctx context.Context) {
	p.logger.Info("starting_trades_poller", "base_url", p.baseURL, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.Poll(ctx); err != nil {
		p.logger.Warn("initial_poll_failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("trades_poller_stopped")
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				p.logger.Debug("poll_failed", "error", err)
			}
		}
	}
}

// Poll fetches one batch of recent trades and emits it, waiting while the
// channel is full.
func (p *TradesPoller) Poll(ctx context.Context) error {
	trades, err := p.FetchRecent(ctx)
	if err != nil {
		return err
	}
	if p.onPoll != nil {
		p.onPoll(time.Now())
	}
	if len(trades) == 0 {
		return nil
	}

	p.logger.Debug("trades_fetched", "count", len(trades))
	select {
	case p.out <- trades:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// FetchRecent returns the most recent trades, normalized.
func (p *TradesPoller) FetchRecent(ctx context.Context) ([]store.LiveTrade, error) {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(p.limit))
	v.Set("takerOnly", "true")
	endpoint := p.baseURL + "/trades?" + v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d body=%q", resp.StatusCode, readBodyLimit(resp.Body, 4<<10))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	trades, _, err := NormalizeTrades(body, time.Now())
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	// the data API reports seconds
	for i := range trades {
		if trades[i].Timestamp > 0 && trades[i].Timestamp < secondsCutoff {
			trades[i].Timestamp *= 1000
		}
	}
	return trades, nil
}
