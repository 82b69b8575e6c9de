// Package stream maintains a live mark price feed over the exchange
// WebSocket. Prices are pushed to a handler so callers can keep their
// own view current between decision cycles.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// MarkPrice is a single last-trade price observation for an asset.
type MarkPrice struct {
	Asset string
	Price float64
	Time  time.Time
}

// Handler receives mark price updates. It is called from the read loop
// and must not block.
type Handler func(MarkPrice)

// Config holds the WebSocket feed settings.
type Config struct {
	URL              string        `yaml:"url"`
	Assets           []string      `yaml:"assets"`
	HandshakeTimeout time.Duration `yaml:"-"`
	PingInterval     time.Duration `yaml:"-"`
	ReadTimeout      time.Duration `yaml:"-"`
	InitialBackoff   time.Duration `yaml:"-"`
	MaxBackoff       time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts Go duration strings for the feed timings.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	aux := struct {
		plain            `yaml:",inline"`
		HandshakeTimeout string `yaml:"handshake_timeout"`
		PingInterval     string `yaml:"ping_interval"`
		ReadTimeout      string `yaml:"read_timeout"`
		InitialBackoff   string `yaml:"initial_backoff"`
		MaxBackoff       string `yaml:"max_backoff"`
	}{plain: plain(*c)}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	*c = Config(aux.plain)

	for _, field := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{aux.HandshakeTimeout, "handshake_timeout", &c.HandshakeTimeout},
		{aux.PingInterval, "ping_interval", &c.PingInterval},
		{aux.ReadTimeout, "read_timeout", &c.ReadTimeout},
		{aux.InitialBackoff, "initial_backoff", &c.InitialBackoff},
		{aux.MaxBackoff, "max_backoff", &c.MaxBackoff},
	} {
		if field.raw == "" {
			continue
		}
		d, err := time.ParseDuration(field.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = d
	}
	return nil
}

// DefaultConfig returns settings for the public Kraken ticker feed.
func DefaultConfig() Config {
	return Config{
		URL:              "wss://ws.kraken.com",
		Assets:           []string{"BTC", "ETH"},
		HandshakeTimeout: 30 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		InitialBackoff:   time.Second,
		MaxBackoff:       60 * time.Second,
	}
}

// Ticker subscribes to the exchange ticker channel and reconnects with
// exponential backoff when the connection drops.
type Ticker struct {
	config      Config
	handler     Handler
	assetByPair map[string]string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
}

// NewTicker builds a ticker feed for the configured assets.
func NewTicker(config Config, handler Handler) *Ticker {
	assetByPair := make(map[string]string, len(config.Assets))
	for _, asset := range config.Assets {
		assetByPair[pairFor(asset)] = asset
	}
	return &Ticker{
		config:      config,
		handler:     handler,
		assetByPair: assetByPair,
	}
}

// pairFor maps an asset symbol to the exchange pair notation. Kraken
// quotes bitcoin as XBT.
func pairFor(asset string) string {
	symbol := strings.ToUpper(asset)
	if symbol == "BTC" {
		symbol = "XBT"
	}
	return symbol + "/USD"
}

// Connected reports whether the feed currently has a live connection.
func (t *Ticker) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Run connects and serves mark prices until the context is cancelled.
// Connection failures are retried with exponential backoff.
func (t *Ticker) Run(ctx context.Context) error {
	backoff := t.config.InitialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := t.connect(ctx)
		if err == nil {
			backoff = t.config.InitialBackoff
			t.readLoop(ctx)
			t.disconnect()
		} else {
			log.Warn().Err(err).Str("url", t.config.URL).Msg("mark price feed connect failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > t.config.MaxBackoff {
			backoff = t.config.MaxBackoff
		}
	}
}

func (t *Ticker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: t.config.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, t.config.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	pairs := make([]string, 0, len(t.assetByPair))
	for pair := range t.assetByPair {
		pairs = append(pairs, pair)
	}

	sub := map[string]any{
		"event":        "subscribe",
		"pair":         pairs,
		"subscription": map[string]any{"name": "ticker"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("ticker subscribe: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	log.Info().Str("url", t.config.URL).Strs("pairs", pairs).Msg("mark price feed connected")
	return nil
}

func (t *Ticker) disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.connected = false
}

// readLoop consumes messages until the connection fails or the context
// is cancelled. The caller owns reconnection.
func (t *Ticker) readLoop(ctx context.Context) {
	pingTicker := time.NewTicker(t.config.PingInterval)
	defer pingTicker.Stop()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-ctx.Done():
				t.disconnect()
				return
			case <-done:
				return
			case <-pingTicker.C:
				t.mu.RLock()
				conn := t.conn
				t.mu.RUnlock()
				if conn == nil {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Warn().Err(err).Msg("mark price feed ping failed")
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		t.mu.RLock()
		conn := t.conn
		t.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("mark price feed read failed, reconnecting")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := t.processMessage(data); err != nil {
			log.Debug().Err(err).Msg("skipping unparsable feed message")
		}
	}
}

// processMessage routes one raw frame. Event objects (subscription
// status, heartbeats) are acknowledged and dropped; ticker frames are
// arrays of the form [channelID, payload, "ticker", "XBT/USD"].
func (t *Ticker) processMessage(data []byte) error {
	var event struct {
		Event  string `json:"event"`
		Status string `json:"status"`
		Pair   string `json:"pair"`
	}
	if err := json.Unmarshal(data, &event); err == nil && event.Event != "" {
		if event.Event == "subscriptionStatus" {
			log.Debug().Str("pair", event.Pair).Str("status", event.Status).Msg("ticker subscription status")
		}
		return nil
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("parse frame: %w", err)
	}
	if len(frame) < 4 {
		return fmt.Errorf("short frame: %d elements", len(frame))
	}

	var channel, pair string
	if err := json.Unmarshal(frame[len(frame)-2], &channel); err != nil {
		return fmt.Errorf("parse channel name: %w", err)
	}
	if channel != "ticker" {
		return nil
	}
	if err := json.Unmarshal(frame[len(frame)-1], &pair); err != nil {
		return fmt.Errorf("parse pair: %w", err)
	}

	asset, ok := t.assetByPair[pair]
	if !ok {
		return nil
	}

	var payload struct {
		C []string `json:"c"`
	}
	if err := json.Unmarshal(frame[1], &payload); err != nil {
		return fmt.Errorf("parse ticker payload: %w", err)
	}
	if len(payload.C) == 0 {
		return fmt.Errorf("ticker payload missing last trade")
	}

	price, err := strconv.ParseFloat(payload.C[0], 64)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", payload.C[0], err)
	}
	if price <= 0 {
		return fmt.Errorf("non-positive price %f for %s", price, asset)
	}

	if t.handler != nil {
		t.handler(MarkPrice{Asset: asset, Price: price, Time: time.Now().UTC()})
	}
	return nil
}
