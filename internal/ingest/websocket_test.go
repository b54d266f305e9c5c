package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spectra/engine/internal/store"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestListenerSubscribesAndEmits(t *testing.T) {
	subscribed := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subscribed <- msg

		conn.WriteMessage(websocket.TextMessage, []byte(`{"trades":[{"id":"t1","timestamp":100},{"id":"t2","timestamp":200}]}`))
		// keep the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	out := make(chan []store.LiveTrade, 4)
	l := NewListener(wsURL(srv), out)
	l.Start(context.Background())
	defer l.Stop()

	select {
	case msg := <-subscribed:
		require.Equal(t, "subscribe", msg["type"])
		require.Equal(t, []interface{}{"trades"}, msg["channels"])
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe message")
	}

	select {
	case batch := <-out:
		require.Len(t, batch, 2)
		require.Equal(t, "t1", batch[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no trade batch")
	}
}

func TestListenerSendsPing(t *testing.T) {
	pinged := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg map[string]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["type"] == "ping" {
				select {
				case pinged <- struct{}{}:
				default:
				}
			}
		}
	}))
	defer srv.Close()

	l := NewListener(wsURL(srv), make(chan []store.LiveTrade, 1), WithPingInterval(30*time.Millisecond))
	l.Start(context.Background())
	defer l.Stop()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestListenerReconnectsAfterClose(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns.Add(1)
		// read the subscribe message, then drop the connection
		conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()

	var statuses atomic.Int32
	l := NewListener(wsURL(srv), make(chan []store.LiveTrade, 1),
		WithReconnectDelay(20*time.Millisecond),
		WithStatusFunc(func(connected bool) {
			if connected {
				statuses.Add(1)
			}
		}),
	)
	l.Start(context.Background())
	defer l.Stop()

	require.Eventually(t, func() bool { return conns.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, statuses.Load(), int32(2))
}

func TestListenerStopPreventsEmission(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
		<-release
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"id":"late"}]`))
	}))
	defer srv.Close()

	out := make(chan []store.LiveTrade, 1)
	l := NewListener(wsURL(srv), out, WithReconnectDelay(10*time.Millisecond))
	l.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	l.Stop()
	close(release)

	select {
	case batch := <-out:
		t.Fatalf("received batch after stop: %v", batch)
	case <-time.After(100 * time.Millisecond):
	}

	// a second Stop is a no-op
	l.Stop()
}

func TestHandleMessageWaitsForFullChannel(t *testing.T) {
	out := make(chan []store.LiveTrade, 1)
	l := NewListener("ws://unused", out)

	out <- nil
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.handleMessage(context.Background(), []byte(`{"trades":[{"id":"t1","timestamp":100}]}`))
	}()

	select {
	case <-done:
		t.Fatal("batch was dropped instead of waiting")
	case <-time.After(50 * time.Millisecond):
	}

	<-out
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	batch := <-out
	require.Len(t, batch, 1)
	require.Equal(t, "t1", batch[0].ID)
}

func TestHandleMessageReturnsOnStop(t *testing.T) {
	out := make(chan []store.LiveTrade)
	l := NewListener("ws://unused", out)

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.handleMessage(context.Background(), []byte(`{"trades":[{"id":"t1","timestamp":100}]}`))
	}()
	l.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleMessage blocked after Stop")
	}
	require.Empty(t, out)
}
