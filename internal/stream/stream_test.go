package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// tickerServer upgrades connections, consumes the subscribe request and
// then hands the connection to the scenario function.
func tickerServer(t *testing.T, connects *int32, scenario func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(connects, 1)

		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if sub["event"] != "subscribe" {
			t.Errorf("expected subscribe event, got %v", sub["event"])
			return
		}
		scenario(conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	config := DefaultConfig()
	config.URL = url
	config.Assets = []string{"BTC"}
	config.InitialBackoff = 10 * time.Millisecond
	config.MaxBackoff = 50 * time.Millisecond
	return config
}

func TestTicker_DeliversMarkPrices(t *testing.T) {
	var connects int32
	server := tickerServer(t, &connects, func(conn *websocket.Conn) {
		status := `{"event":"subscriptionStatus","status":"subscribed","pair":"XBT/USD","channelName":"ticker"}`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(status)))

		frame := `[42,{"c":["50123.5","0.001"]},"ticker","XBT/USD"]`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

		time.Sleep(200 * time.Millisecond)
	})
	defer server.Close()

	marks := make(chan MarkPrice, 1)
	ticker := NewTicker(testConfig(wsURL(server)), func(mark MarkPrice) {
		select {
		case marks <- mark:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ticker.Run(ctx)

	select {
	case mark := <-marks:
		assert.Equal(t, "BTC", mark.Asset)
		assert.Equal(t, 50123.5, mark.Price)
		assert.False(t, mark.Time.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no mark price received")
	}
}

func TestTicker_ReconnectsAfterDrop(t *testing.T) {
	var connects int32
	server := tickerServer(t, &connects, func(conn *websocket.Conn) {
		// Drop the connection immediately after the subscribe.
		conn.Close()
	})
	defer server.Close()

	ticker := NewTicker(testConfig(wsURL(server)), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ticker.Run(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&connects) >= 2
	}, 2*time.Second, 10*time.Millisecond, "ticker did not reconnect")
}

func TestTicker_RunStopsOnCancel(t *testing.T) {
	var connects int32
	server := tickerServer(t, &connects, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	ticker := NewTicker(testConfig(wsURL(server)), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ticker.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestProcessMessage_IgnoresUnknownPairsAndChannels(t *testing.T) {
	var calls int
	ticker := NewTicker(testConfig("ws://unused"), func(MarkPrice) { calls++ })

	require.NoError(t, ticker.processMessage([]byte(`[1,{"c":["100.0"]},"ticker","DOGE/USD"]`)))
	require.NoError(t, ticker.processMessage([]byte(`[1,{},"trade","XBT/USD"]`)))
	require.NoError(t, ticker.processMessage([]byte(`{"event":"heartbeat"}`)))
	assert.Zero(t, calls)

	assert.Error(t, ticker.processMessage([]byte(`[1,{"c":["-5"]},"ticker","XBT/USD"]`)))
	assert.Error(t, ticker.processMessage([]byte(`[1,{"c":["junk"]},"ticker","XBT/USD"]`)))
	assert.Error(t, ticker.processMessage([]byte(`[1]`)))
	assert.Zero(t, calls)
}

func TestPairFor(t *testing.T) {
	assert.Equal(t, "XBT/USD", pairFor("BTC"))
	assert.Equal(t, "XBT/USD", pairFor("btc"))
	assert.Equal(t, "ETH/USD", pairFor("ETH"))
	assert.Equal(t, "SOL/USD", pairFor("sol"))
}
