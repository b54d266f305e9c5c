// Package ingest handles the external data sources of the explorer: the
// Gamma events API, hover endpoints, the live trade WebSocket and the
// recent-trades backfill.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spectra/engine/internal/store"
)

// containerKeys are the keys upstream uses to nest trade payloads, in the
// order they are tried.
var containerKeys = []string{"trades", "data", "payload", "trade"}

var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
}

// NormalizeTrades flattens a stream message into live trades. It accepts a
// bare array, a single trade object, or either of those nested under one of
// the container keys. The second result is the message type when the
// message carries one (e.g. "pong"). now is used for trades without a
// usable timestamp.
func NormalizeTrades(data []byte, now time.Time) ([]store.LiveTrade, string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal message: %w", err)
	}

	var msgType string
	if obj, ok := root.(map[string]interface{}); ok {
		msgType = stringField(obj, "type", "event_type")
	}

	raw := collect(root, 0)
	trades := make([]store.LiveTrade, 0, len(raw))
	for _, obj := range raw {
		trade, ok := toLiveTrade(obj, now)
		if !ok {
			continue
		}
		trades = append(trades, trade)
	}
	return trades, msgType, nil
}

// collect walks the payload and returns every object that looks like a trade.
func collect(v interface{}, depth int) []map[string]interface{} {
	if depth > 3 {
		return nil
	}

	switch node := v.(type) {
	case []interface{}:
		var out []map[string]interface{}
		for _, item := range node {
			out = append(out, collect(item, depth+1)...)
		}
		return out
	case map[string]interface{}:
		for _, key := range containerKeys {
			if inner, ok := node[key]; ok && inner != nil {
				if found := collect(inner, depth+1); len(found) > 0 {
					return found
				}
			}
		}
		if looksLikeTrade(node) {
			return []map[string]interface{}{node}
		}
	}
	return nil
}

func looksLikeTrade(obj map[string]interface{}) bool {
	if stringField(obj, "id", "trade_id", "tradeId") != "" {
		return true
	}
	if marketID(obj) != "" {
		_, hasPrice := obj["price"]
		_, hasTS := obj["timestamp"]
		return hasPrice || hasTS
	}
	return false
}

func toLiveTrade(obj map[string]interface{}, now time.Time) (store.LiveTrade, bool) {
	market := marketID(obj)
	ts := normalizeTimestamp(firstPresent(obj, "timestamp", "time", "match_time", "createdAt", "created_at"), now)

	id := stringField(obj, "id", "trade_id", "tradeId")
	if id == "" {
		if market == "" {
			return store.LiveTrade{}, false
		}
		id = market + "-" + strconv.FormatInt(ts, 10)
	}

	return store.LiveTrade{
		ID:        id,
		MarketID:  market,
		AssetID:   stringField(obj, "asset", "asset_id", "assetId"),
		Title:     stringField(obj, "title", "question", "name"),
		Trader:    stringField(obj, "proxyWallet", "trader", "maker", "maker_address", "user"),
		Side:      strings.ToUpper(stringField(obj, "side")),
		Outcome:   stringField(obj, "outcome"),
		Amount:    floatField(obj, "size", "amount", "shares"),
		Price:     floatField(obj, "price"),
		Timestamp: ts,
	}, true
}

func marketID(obj map[string]interface{}) string {
	return stringField(obj, "market", "conditionId", "condition_id", "market_id", "marketId", "slug")
}

// normalizeTimestamp converts v to epoch milliseconds. Numbers and numeric
// strings pass through unchanged; date strings are parsed; anything else
// falls back to now.
func normalizeTimestamp(v interface{}, now time.Time) int64 {
	switch ts := v.(type) {
	case json.Number:
		if n, err := ts.Int64(); err == nil {
			return n
		}
		if f, err := ts.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(ts)
	case string:
		s := strings.TrimSpace(ts)
		if s == "" {
			break
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		for _, layout := range timeFormats {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UnixMilli()
			}
		}
	}
	return now.UnixMilli()
}

func firstPresent(obj map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// stringField returns the first non-empty value among keys, rendering
// numbers as strings.
func stringField(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func floatField(obj map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case json.Number:
			f, _ := v.Float64()
			return f
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}
