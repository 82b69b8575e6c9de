// Package cache provides the Redis layer for cross-cycle state: the most
// recent regime analysis and sentiment snapshot per asset, and the durable
// safety switch state.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gopkg.in/yaml.v3"

	"contraguard/internal/confirm"
	"contraguard/internal/regime"
	"contraguard/internal/safety"
)

// Key layout. Keys carry the app prefix so a shared Redis can host other
// tenants.
const (
	keyPrefix    = "contraguard:"
	keyRegime    = keyPrefix + "regime:"    // + asset
	keySentiment = keyPrefix + "sentiment:" // + asset
	keySafety    = keyPrefix + "safety:state"
)

// Config holds connection and TTL settings.
type Config struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	RegimeTTL    time.Duration `yaml:"-"`
	SentimentTTL time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts Go duration strings ("4h", "15m") for the TTLs.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	aux := struct {
		plain        `yaml:",inline"`
		RegimeTTL    string `yaml:"regime_ttl"`
		SentimentTTL string `yaml:"sentiment_ttl"`
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
		{aux.RegimeTTL, "regime_ttl", &c.RegimeTTL},
		{aux.SentimentTTL, "sentiment_ttl", &c.SentimentTTL},
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

// DefaultConfig returns production TTLs: regime is a daily-resolution
// signal, sentiment goes stale within a cycle interval.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		RegimeTTL:    4 * time.Hour,
		SentimentTTL: 15 * time.Minute,
	}
}

// Cache wraps the Redis client with typed accessors.
type Cache struct {
	client *redis.Client
	config Config
}

// New dials Redis and verifies the connection.
func New(config Config) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewWithClient(rdb, config), nil
}

// NewWithClient wraps an existing client, used by tests with a mock.
func NewWithClient(client *redis.Client, config Config) *Cache {
	if config.RegimeTTL <= 0 {
		config.RegimeTTL = DefaultConfig().RegimeTTL
	}
	if config.SentimentTTL <= 0 {
		config.SentimentTTL = DefaultConfig().SentimentTTL
	}
	return &Cache{client: client, config: config}
}

// SetRegime caches the latest regime analysis for an asset.
func (c *Cache) SetRegime(ctx context.Context, asset string, analysis regime.Analysis) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal regime analysis: %w", err)
	}
	if err := c.client.Set(ctx, keyRegime+asset, data, c.config.RegimeTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// GetRegime returns the cached regime analysis, or found=false on a miss.
func (c *Cache) GetRegime(ctx context.Context, asset string) (regime.Analysis, bool, error) {
	var analysis regime.Analysis

	val, err := c.client.Get(ctx, keyRegime+asset).Result()
	if err != nil {
		if err == redis.Nil {
			return analysis, false, nil
		}
		return analysis, false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal([]byte(val), &analysis); err != nil {
		return analysis, false, fmt.Errorf("unmarshal regime analysis: %w", err)
	}
	return analysis, true, nil
}

// SetSentiment caches the latest sentiment record for an asset.
func (c *Cache) SetSentiment(ctx context.Context, asset string, record confirm.SentimentRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal sentiment: %w", err)
	}
	if err := c.client.Set(ctx, keySentiment+asset, data, c.config.SentimentTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// GetSentiment returns the cached sentiment record, or found=false on a
// miss or expiry.
func (c *Cache) GetSentiment(ctx context.Context, asset string) (confirm.SentimentRecord, bool, error) {
	var record confirm.SentimentRecord

	val, err := c.client.Get(ctx, keySentiment+asset).Result()
	if err != nil {
		if err == redis.Nil {
			return record, false, nil
		}
		return record, false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return record, false, fmt.Errorf("unmarshal sentiment: %w", err)
	}
	return record, true, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.client.Close() }

// SafetyStore returns a safety state store sharing this cache's client.
func (c *Cache) SafetyStore() *SafetyStore {
	return NewSafetyStore(c.client)
}

// SafetyStore persists the safety switch state in Redis. It satisfies the
// safety package's StateStore so a restart resumes in the same state.
type SafetyStore struct {
	client *redis.Client
}

// NewSafetyStore wraps a Redis client as a safety state store.
func NewSafetyStore(client *redis.Client) *SafetyStore {
	return &SafetyStore{client: client}
}

type safetyRecord struct {
	State  string `json:"state"`
	Reason string `json:"reason"`
}

// LoadState reads the persisted switch state. A missing key reads as
// ACTIVE (fresh deployment); a read error propagates so the switch can
// fail safe.
func (s *SafetyStore) LoadState(ctx context.Context) (safety.State, error) {
	val, err := s.client.Get(ctx, keySafety).Result()
	if err != nil {
		if err == redis.Nil {
			return safety.Active, nil
		}
		return safety.EmergencyStop, fmt.Errorf("redis get: %w", err)
	}

	var record safetyRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return safety.EmergencyStop, fmt.Errorf("unmarshal safety state: %w", err)
	}
	return safety.ParseState(record.State), nil
}

// SaveState writes the switch state without expiry.
func (s *SafetyStore) SaveState(ctx context.Context, state safety.State, reason string) error {
	data, err := json.Marshal(safetyRecord{State: state.String(), Reason: reason})
	if err != nil {
		return fmt.Errorf("marshal safety state: %w", err)
	}
	if err := s.client.Set(ctx, keySafety, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
