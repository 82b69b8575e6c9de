// Package upstream talks to the external reasoning service that produces
// the suggested BUY/SELL/HOLD for each asset. The service is advisory: any
// failure here degrades to the locally computed outcome, never blocks a
// cycle.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// ErrUnavailable wraps every failure mode of the reasoning service: HTTP
// errors, timeouts, malformed payloads and an open circuit all look the
// same to the caller.
var ErrUnavailable = errors.New("reasoning service unavailable")

// Suggestion is the reasoning service's advisory output for one asset.
type Suggestion struct {
	Asset      string  `json:"asset"`
	Action     string  `json:"action"` // BUY, SELL or HOLD
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Request carries the local context the reasoning service synthesizes
// over.
type Request struct {
	Asset         string  `json:"asset"`
	Regime        string  `json:"regime"`
	Price         float64 `json:"price"`
	RSI           float64 `json:"rsi"`
	FearScore     float64 `json:"fear_score"`
	FactorSummary string  `json:"factor_summary"`
}

// Config holds client tuning.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"-"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Burst          int           `yaml:"burst"`
}

// UnmarshalYAML accepts a Go duration string for the request timeout.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	aux := struct {
		plain   `yaml:",inline"`
		Timeout string `yaml:"timeout"`
	}{plain: plain(*c)}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	*c = Config(aux.plain)

	if aux.Timeout != "" {
		d, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

// DefaultConfig returns conservative production settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8090",
		Timeout:        10 * time.Second,
		RequestsPerSec: 2,
		Burst:          4,
	}
}

// Client is the circuit-broken, rate-limited reasoning service client.
type Client struct {
	config  Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewClient builds a client. The breaker opens after 3 consecutive
// failures or a >5% failure rate over a meaningful sample, and probes
// again after 60s.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.RequestsPerSec <= 0 {
		config.RequestsPerSec = DefaultConfig().RequestsPerSec
	}
	if config.Burst <= 0 {
		config.Burst = DefaultConfig().Burst
	}

	settings := gobreaker.Settings{Name: "reasoning-service"}
	settings.Interval = 60 * time.Second
	settings.Timeout = 60 * time.Second
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSec), config.Burst),
	}
}

// Suggest asks the reasoning service for an action. Every failure returns
// an error wrapping ErrUnavailable; callers fall back to their local
// outcome.
func (c *Client) Suggest(ctx context.Context, req Request) (*Suggestion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrUnavailable, err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.post(ctx, req)
	})
	if err != nil {
		log.Debug().Err(err).Str("asset", req.Asset).Msg("reasoning service call failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	suggestion := result.(*Suggestion)
	return suggestion, nil
}

func (c *Client) post(ctx context.Context, req Request) (*Suggestion, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/suggest", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var suggestion Suggestion
	if err := json.NewDecoder(resp.Body).Decode(&suggestion); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	switch suggestion.Action {
	case "BUY", "SELL", "HOLD":
	default:
		return nil, fmt.Errorf("invalid action %q", suggestion.Action)
	}
	return &suggestion, nil
}
