package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// CLOBAPIURL is the Polymarket CLOB endpoint serving order books
const CLOBAPIURL = "https://clob.polymarket.com"

// Level is one price level of an order book.
type Level struct {
	Price Amount `json:"price"`
	Size  Amount `json:"size"`
}

// Book is an order book snapshot for one outcome token.
type Book struct {
	Market  string  `json:"market"`
	AssetID string  `json:"asset_id"`
	Bids    []Level `json:"bids"`
	Asks    []Level `json:"asks"`
}

// BestBid returns the highest bid or zero.
func (b *Book) BestBid() decimal.Decimal {
	best := decimal.Zero
	for _, l := range b.Bids {
		if l.Price.GreaterThan(best) {
			best = l.Price.Decimal
		}
	}
	return best
}

// BestAsk returns the lowest ask or zero.
func (b *Book) BestAsk() decimal.Decimal {
	var best decimal.Decimal
	for i, l := range b.Asks {
		if i == 0 || l.Price.LessThan(best) {
			best = l.Price.Decimal
		}
	}
	return best
}

// Series is a recurring group of events.
type Series struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	Ticker     string `json:"ticker"`
	Recurrence string `json:"recurrence"`
	Volume     Amount `json:"volume"`
	Liquidity  Amount `json:"liquidity"`
	Events     []struct {
		ID    string `json:"id"`
		Slug  string `json:"slug"`
		Title string `json:"title"`
	} `json:"events"`
}

// Hover serves the tooltip data shown when a market row is hovered. Lookups
// are best-effort: failures are logged and yield nil. Successful results are
// kept for the session.
type Hover struct {
	host   string
	client *http.Client
	group  singleflight.Group

	mu     sync.RWMutex
	books  map[string]*Book
	series map[string]*Series

	logger *slog.Logger
}

// NewHover creates a Hover client. An empty host uses CLOBAPIURL.
func NewHover(host string) *Hover {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = CLOBAPIURL
	}
	return &Hover{
		host:   host,
		client: &http.Client{Timeout: 5 * time.Second},
		books:  make(map[string]*Book),
		series: make(map[string]*Series),
		logger: slog.Default().WithGroup("hover"),
	}
}

// Book returns the order book for tokenID, or nil if it could not be fetched.
func (h *Hover) Book(ctx context.Context, tokenID string) *Book {
	if tokenID == "" {
		return nil
	}

	h.mu.RLock()
	cached, ok := h.books[tokenID]
	h.mu.RUnlock()
	if ok {
		return cached
	}

	v, err, _ := h.group.Do("book:"+tokenID, func() (interface{}, error) {
		var book Book
		if err := h.get(ctx, "/book", url.Values{"token_id": {tokenID}}, &book); err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.books[tokenID] = &book
		h.mu.Unlock()
		return &book, nil
	})
	if err != nil {
		h.logger.Warn("hover_book_failed", "token_id", truncate(tokenID, 16), "error", err)
		return nil
	}
	return v.(*Book)
}

// Series returns the series with id, or nil if it could not be fetched.
func (h *Hover) Series(ctx context.Context, id string) *Series {
	if id == "" {
		return nil
	}

	h.mu.RLock()
	cached, ok := h.series[id]
	h.mu.RUnlock()
	if ok {
		return cached
	}

	v, err, _ := h.group.Do("series:"+id, func() (interface{}, error) {
		var s Series
		if err := h.get(ctx, "/series", url.Values{"id": {id}}, &s); err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.series[id] = &s
		h.mu.Unlock()
		return &s, nil
	})
	if err != nil {
		h.logger.Warn("hover_series_failed", "id", id, "error", err)
		return nil
	}
	return v.(*Series)
}

func (h *Hover) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.host+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status=%d body=%q", path, resp.StatusCode, readBodyLimit(resp.Body, 4<<10))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s decode: %w", path, err)
	}
	return nil
}
