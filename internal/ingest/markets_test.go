package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const eventsFixture = `[{
	"id": "100",
	"slug": "weather",
	"title": "Weather",
	"tags": [{"id": "7", "label": "Science", "slug": "science"}],
	"markets": [{
		"id": "1",
		"conditionId": "0xc1",
		"question": "Rain tomorrow?",
		"outcomes": "[\"Yes\", \"No\"]",
		"outcomePrices": ["0.3", "0.7"],
		"clobTokenIds": "[\"111\", \"222\"]",
		"volume": "1234.5",
		"volume24hr": 12,
		"liquidity": null,
		"active": true,
		"endDate": "2026-12-31T00:00:00Z"
	}]
}]`

func TestFetchEventsQuery(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Write([]byte(eventsFixture))
	}))
	defer srv.Close()

	c, err := NewGammaClient(srv.URL)
	require.NoError(t, err)

	events, err := c.FetchEvents(context.Background(), EventQuery{
		Offset:     40,
		Order:      "volume",
		TagSlug:    "science",
		EndDateMin: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.Equal(t, "/events", got.URL.Path)
	q := got.URL.Query()
	require.Equal(t, "true", q.Get("active"))
	require.Equal(t, "false", q.Get("archived"))
	require.Equal(t, "false", q.Get("closed"))
	require.Equal(t, "20", q.Get("limit"))
	require.Equal(t, "40", q.Get("offset"))
	require.Equal(t, "volume", q.Get("order"))
	require.Equal(t, "false", q.Get("ascending"))
	require.Equal(t, "science", q.Get("tag_slug"))
	require.Equal(t, "2026-01-01T00:00:00Z", q.Get("end_date_min"))

	m := events[0].Markets[0]
	require.Equal(t, StringList{"Yes", "No"}, m.Outcomes)
	require.Equal(t, StringList{"0.3", "0.7"}, m.OutcomePrices)
	require.Equal(t, StringList{"111", "222"}, m.ClobTokenIDs)
	require.True(t, m.Volume.Equal(decimal.RequireFromString("1234.5")))
	require.True(t, m.Volume24hr.Equal(decimal.NewFromInt(12)))
	require.True(t, m.Liquidity.IsZero())
	require.Equal(t, "science", events[0].Tags[0].Slug)
}

func TestFetchMarketsByCondition(t *testing.T) {
	var ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets", r.URL.Path)
		ids = r.URL.Query()["condition_ids"]
		json.NewEncoder(w).Encode([]map[string]interface{}{{"conditionId": "0xc1", "outcomePrices": `["0.5","0.5"]`}})
	}))
	defer srv.Close()

	c, err := NewGammaClient(srv.URL)
	require.NoError(t, err)

	markets, err := c.FetchMarkets(context.Background(), []string{"0xc1", "0xc2"})
	require.NoError(t, err)
	require.Equal(t, []string{"0xc1", "0xc2"}, ids)
	require.Len(t, markets, 1)
	require.Equal(t, StringList{"0.5", "0.5"}, markets[0].OutcomePrices)

	none, err := c.FetchMarkets(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestGammaClientErrors(t *testing.T) {
	_, err := NewGammaClient("ftp://example.com")
	require.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewGammaClient(srv.URL)
	require.NoError(t, err)
	_, err = c.FetchEvents(context.Background(), EventQuery{})
	require.ErrorContains(t, err, "status=429")
}
