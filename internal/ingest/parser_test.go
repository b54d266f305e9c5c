package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestNormalizeTradesShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ids  []string
	}{
		{"bare array", `[{"id":"a","timestamp":1},{"id":"b","timestamp":2}]`, []string{"a", "b"}},
		{"trades key", `{"type":"trades","trades":[{"id":"a","timestamp":1}]}`, []string{"a"}},
		{"data array", `{"data":[{"trade_id":"a"}]}`, []string{"a"}},
		{"data object", `{"data":{"tradeId":"a"}}`, []string{"a"}},
		{"payload key", `{"topic":"activity","payload":{"id":"a","price":0.5}}`, []string{"a"}},
		{"singular trade", `{"trade":{"id":"a"}}`, []string{"a"}},
		{"flat object", `{"id":"a","price":"0.4","size":"10"}`, []string{"a"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trades, _, err := NormalizeTrades([]byte(tc.raw), fixedNow)
			require.NoError(t, err)
			got := make([]string, 0, len(trades))
			for _, tr := range trades {
				got = append(got, tr.ID)
			}
			require.Equal(t, tc.ids, got)
		})
	}
}

func TestNormalizeTradesControlMessages(t *testing.T) {
	trades, msgType, err := NormalizeTrades([]byte(`{"type":"pong"}`), fixedNow)
	require.NoError(t, err)
	require.Empty(t, trades)
	require.Equal(t, "pong", msgType)

	_, _, err = NormalizeTrades([]byte(`not json`), fixedNow)
	require.Error(t, err)
}

func TestNormalizeTradesFields(t *testing.T) {
	raw := `{"trades":[{
		"id": "t1",
		"conditionId": "0xabc",
		"asset": "123",
		"title": "Will it rain?",
		"proxyWallet": "0xfeed",
		"side": "buy",
		"outcome": "Yes",
		"size": 25,
		"price": "0.62",
		"timestamp": 1700000000000
	}]}`

	trades, _, err := NormalizeTrades([]byte(raw), fixedNow)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	require.Equal(t, "t1", tr.ID)
	require.Equal(t, "0xabc", tr.MarketID)
	require.Equal(t, "123", tr.AssetID)
	require.Equal(t, "Will it rain?", tr.Title)
	require.Equal(t, "0xfeed", tr.Trader)
	require.Equal(t, "BUY", tr.Side)
	require.Equal(t, "Yes", tr.Outcome)
	require.InDelta(t, 25.0, tr.Amount, 1e-9)
	require.InDelta(t, 0.62, tr.Price, 1e-9)
	require.Equal(t, int64(1700000000000), tr.Timestamp)
}

func TestNormalizeTradesTimestamps(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int64
	}{
		{"number passes through", `{"id":"a","timestamp":100}`, 100},
		{"numeric string passes through", `{"id":"a","timestamp":"200"}`, 200},
		{"date string parsed", `{"id":"a","timestamp":"2024-05-01T00:00:00Z"}`, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).UnixMilli()},
		{"alternate key", `{"id":"a","match_time":"2024-05-01T00:00:00.250Z"}`, time.Date(2024, 5, 1, 0, 0, 0, 250e6, time.UTC).UnixMilli()},
		{"missing uses now", `{"id":"a"}`, fixedNow.UnixMilli()},
		{"garbage uses now", `{"id":"a","timestamp":"yesterday"}`, fixedNow.UnixMilli()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trades, _, err := NormalizeTrades([]byte(tc.raw), fixedNow)
			require.NoError(t, err)
			require.Len(t, trades, 1)
			require.Equal(t, tc.want, trades[0].Timestamp)
		})
	}
}

func TestNormalizeTradesCompositeID(t *testing.T) {
	trades, _, err := NormalizeTrades([]byte(`[{"market":"m1","timestamp":100,"price":0.5},{"price":0.5}]`), fixedNow)
	require.NoError(t, err)
	require.Len(t, trades, 1, "records without id or market are dropped")
	require.Equal(t, "m1-100", trades[0].ID)
}
