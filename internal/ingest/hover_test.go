package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spectra/engine/internal/store"
	"github.com/stretchr/testify/require"
)

func TestHoverBookMemoised(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/book", r.URL.Path)
		require.Equal(t, "111", r.URL.Query().Get("token_id"))
		w.Write([]byte(`{"asset_id":"111","bids":[{"price":"0.40","size":"10"},{"price":"0.45","size":"3"}],"asks":[{"price":"0.55","size":"1"},{"price":"0.50","size":"2"}]}`))
	}))
	defer srv.Close()

	h := NewHover(srv.URL)
	book := h.Book(context.Background(), "111")
	require.NotNil(t, book)
	require.True(t, book.BestBid().Equal(decimal.RequireFromString("0.45")))
	require.True(t, book.BestAsk().Equal(decimal.RequireFromString("0.5")))

	again := h.Book(context.Background(), "111")
	require.Same(t, book, again)
	require.Equal(t, int32(1), calls.Load())
}

func TestHoverFailuresReturnNil(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHover(srv.URL)
	require.Nil(t, h.Series(context.Background(), "9"))
	require.Nil(t, h.Book(context.Background(), "111"))
	require.Nil(t, h.Book(context.Background(), ""))

	// failures are not cached
	require.Nil(t, h.Series(context.Background(), "9"))
	require.Equal(t, int32(3), calls.Load())
}

func TestHoverSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/series", r.URL.Path)
		require.Equal(t, "9", r.URL.Query().Get("id"))
		w.Write([]byte(`{"id":"9","title":"Fed decisions","volume":5000,"events":[{"id":"1","title":"March"}]}`))
	}))
	defer srv.Close()

	s := NewHover(srv.URL).Series(context.Background(), "9")
	require.NotNil(t, s)
	require.Equal(t, "Fed decisions", s.Title)
	require.Len(t, s.Events, 1)
	require.True(t, s.Volume.Equal(decimal.NewFromInt(5000)))
}

func TestTradesPollerConvertsSeconds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trades", r.URL.Path)
		require.Equal(t, "100", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"conditionId":"0xc1","side":"SELL","size":4,"price":0.25,"timestamp":1700000000}]`))
	}))
	defer srv.Close()

	out := make(chan []store.LiveTrade, 1)
	p := NewTradesPoller(srv.URL, time.Minute, out)
	require.NoError(t, p.Poll(context.Background()))

	batch := <-out
	require.Len(t, batch, 1)
	require.Equal(t, int64(1700000000000), batch[0].Timestamp)
	require.Equal(t, "0xc1-1700000000", batch[0].ID)
	require.InDelta(t, 1.0, batch[0].Notional(), 1e-9)
}

func TestTradesPollerWaitsForFullChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"conditionId":"0xc1","side":"BUY","size":1,"price":0.5,"timestamp":1700000000}]`))
	}))
	defer srv.Close()

	out := make(chan []store.LiveTrade, 1)
	out <- nil
	p := NewTradesPoller(srv.URL, time.Minute, out)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Poll(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- p.Poll(context.Background()) }()
	<-out
	batch := <-out
	require.Len(t, batch, 1)
	require.NoError(t, <-done)
}
