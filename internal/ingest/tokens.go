package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spectra/engine/internal/store"
)

// RawToken is a token as returned by the token list endpoint.
type RawToken struct {
	Address     string          `json:"address"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Developer   string          `json:"dev"`
	Status      string          `json:"status"`
	Venue       string          `json:"venue"`
	Price       Amount          `json:"price"`
	MarketCap   Amount          `json:"marketCap"`
	Volume      Amount          `json:"volume"`
	Liquidity   Amount          `json:"liquidity"`
	Holders     int             `json:"holders"`
	ProTraders  int             `json:"proTraders"`
	Created     json.RawMessage `json:"created"`
	SniperPct   float64         `json:"sniperHolding"`
	DevPct      float64         `json:"devHolding"`
	InsiderPct  float64         `json:"insiderHolding"`
	Top10Pct    float64         `json:"top10Holding"`
	Twitter     string          `json:"twitter"`
	Website     string          `json:"website"`
	Telegram    string          `json:"telegram"`
	Discord     string          `json:"discord"`
}

// Token converts the raw record.
func (r RawToken) Token() store.Token {
	venue := store.Venue(strings.ToLower(r.Venue))
	if venue != store.VenueAggregator {
		venue = store.VenueRouter
	}
	return store.Token{
		Address:     strings.ToLower(r.Address),
		Name:        r.Name,
		Symbol:      r.Symbol,
		Description: r.Description,
		Image:       r.Image,
		Developer:   strings.ToLower(r.Developer),
		Status:      strings.ToLower(r.Status),
		Venue:       venue,
		Price:       r.Price.Decimal,
		MarketCap:   r.MarketCap.Decimal,
		Volume:      r.Volume.Decimal,
		Liquidity:   r.Liquidity.Decimal,
		Holders:     r.Holders,
		ProTraders:  r.ProTraders,
		CreatedAt:   createdAt(r.Created),
		SniperPct:   r.SniperPct,
		DevPct:      r.DevPct,
		InsiderPct:  r.InsiderPct,
		Top10Pct:    r.Top10Pct,
		Socials: store.Socials{
			Twitter:  r.Twitter,
			Website:  r.Website,
			Telegram: r.Telegram,
			Discord:  r.Discord,
		},
	}
}

// createdAt accepts epoch seconds, epoch millis or an RFC3339 string.
func createdAt(raw json.RawMessage) time.Time {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Time{}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 1e12 {
			return time.Unix(n, 0).UTC()
		}
		return time.UnixMilli(n).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// TokenClient fetches the token list shown by the token explorer.
type TokenClient struct {
	url        string
	httpClient *http.Client
	userAgent  string
}

// NewTokenClient creates a TokenClient for the given list endpoint.
func NewTokenClient(listURL string) *TokenClient {
	return &TokenClient{
		url:        strings.TrimSpace(listURL),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  DefaultUserAgent,
	}
}

// FetchTokens returns the current token list. Records without an address are
// dropped.
func (c *TokenClient) FetchTokens(ctx context.Context) ([]store.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyLimit(resp.Body, 8<<10)
		return nil, fmt.Errorf("token list: status=%d body=%q", resp.StatusCode, body)
	}

	var raw []RawToken
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("token list decode: %w", err)
	}

	tokens := make([]store.Token, 0, len(raw))
	for _, r := range raw {
		if r.Address == "" {
			continue
		}
		tokens = append(tokens, r.Token())
	}
	return tokens, nil
}
