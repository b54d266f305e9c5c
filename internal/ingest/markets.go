package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// GammaAPIURL is the Polymarket Gamma API endpoint for market data
	GammaAPIURL = "https://gamma-api.polymarket.com"
	// DefaultEventLimit is the number of events fetched per page
	DefaultEventLimit = 20

	// DefaultUserAgent mimics a browser UA to avoid Cloudflare 403s.
	DefaultUserAgent = "Mozilla/5.0"
)

// StringList decodes a JSON array of strings that may itself be encoded as
// a JSON string, which Gamma does for outcomes, outcomePrices and clobTokenIds.
type StringList []string

func (s *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}

	if b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*s = nil
			return nil
		}
		b = []byte(raw)
	}

	var vals []string
	if err := json.Unmarshal(b, &vals); err != nil {
		return err
	}
	*s = vals
	return nil
}

// Amount decodes numbers that arrive either as JSON numbers or as strings.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		a.Decimal = decimal.Zero
		return nil
	}
	if b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		a.Decimal = d
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

// Tag is an event category.
type Tag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// SeriesRef links an event to its recurring series.
type SeriesRef struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// RawMarket is a market as returned by the Gamma API.
type RawMarket struct {
	ID             string     `json:"id"`
	ConditionID    string     `json:"conditionId"`
	Question       string     `json:"question"`
	Slug           string     `json:"slug"`
	GroupItemTitle string     `json:"groupItemTitle"`
	Image          string     `json:"image"`
	Outcomes       StringList `json:"outcomes"`
	OutcomePrices  StringList `json:"outcomePrices"`
	ClobTokenIDs   StringList `json:"clobTokenIds"`
	Volume         Amount     `json:"volume"`
	Volume24hr     Amount     `json:"volume24hr"`
	Liquidity      Amount     `json:"liquidity"`
	Active         bool       `json:"active"`
	Closed         bool       `json:"closed"`
	Archived       bool       `json:"archived"`
	StartDate      string     `json:"startDate"`
	EndDate        string     `json:"endDate"`
}

// Event is a Gamma event with its nested markets.
type Event struct {
	ID          string      `json:"id"`
	Slug        string      `json:"slug"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate"`
	Tags        []Tag       `json:"tags"`
	Series      []SeriesRef `json:"series"`
	Markets     []RawMarket `json:"markets"`
}

// EventQuery selects a page of events.
type EventQuery struct {
	Limit      int
	Offset     int
	Order      string
	Ascending  bool
	TagID      string
	TagSlug    string
	EndDateMin time.Time
}

// GammaClient fetches events and markets from the Gamma API.
type GammaClient struct {
	host       string
	httpClient *http.Client
	userAgent  string
}

// NewGammaClient creates a GammaClient. An empty host uses GammaAPIURL.
func NewGammaClient(host string) (*GammaClient, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = GammaAPIURL
	}
	host = strings.TrimRight(host, "/")

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("gamma url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("gamma url must be http(s), got %q", host)
	}

	return &GammaClient{
		host:       host,
		httpClient: &http.Client{Timeout: 12 * time.Second},
		userAgent:  DefaultUserAgent,
	}, nil
}

// FetchEvents fetches one page of active, unarchived, open events.
func (c *GammaClient) FetchEvents(ctx context.Context, q EventQuery) ([]Event, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultEventLimit
	}

	v := url.Values{}
	v.Set("active", "true")
	v.Set("archived", "false")
	v.Set("closed", "false")
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	if q.Order != "" {
		v.Set("order", q.Order)
		v.Set("ascending", strconv.FormatBool(q.Ascending))
	}
	if !q.EndDateMin.IsZero() {
		v.Set("end_date_min", q.EndDateMin.UTC().Format(time.RFC3339))
	}
	if q.TagID != "" {
		v.Set("tag_id", q.TagID)
	} else if q.TagSlug != "" {
		v.Set("tag_slug", q.TagSlug)
	}

	var events []Event
	if err := c.getJSON(ctx, "/events", v, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// FetchMarkets fetches the current state of the given condition ids.
func (c *GammaClient) FetchMarkets(ctx context.Context, conditionIDs []string) ([]RawMarket, error) {
	if len(conditionIDs) == 0 {
		return nil, nil
	}

	v := url.Values{}
	for _, id := range conditionIDs {
		v.Add("condition_ids", id)
	}
	v.Set("limit", strconv.Itoa(len(conditionIDs)))

	var markets []RawMarket
	if err := c.getJSON(ctx, "/markets", v, &markets); err != nil {
		return nil, err
	}
	return markets, nil
}

func (c *GammaClient) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	endpoint := c.host + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gamma %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyLimit(resp.Body, 8<<10)
		return fmt.Errorf("gamma %s: status=%d body=%q", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gamma %s decode: %w", path, err)
	}
	return nil
}

func readBodyLimit(r io.Reader, max int64) string {
	if r == nil || max <= 0 {
		return ""
	}
	lr := &io.LimitedReader{R: r, N: max}
	b, _ := io.ReadAll(lr)
	return strings.TrimSpace(string(b))
}
