package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contraguard/internal/confirm"
	"contraguard/internal/regime"
	"contraguard/internal/safety"
)

func TestCache_RegimeRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewWithClient(db, DefaultConfig())
	ctx := context.Background()

	analysis := regime.Analysis{
		Regime:        regime.Bear,
		PriceVs200DMA: -12.5,
		Confidence:    85,
		Reasoning:     "price below 200dma with death cross",
		Timestamp:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(analysis)
	require.NoError(t, err)

	mock.ExpectSet("contraguard:regime:BTC", payload, 4*time.Hour).SetVal("OK")
	require.NoError(t, c.SetRegime(ctx, "BTC", analysis))

	mock.ExpectGet("contraguard:regime:BTC").SetVal(string(payload))
	got, found, err := c.GetRegime(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, regime.Bear, got.Regime)
	assert.Equal(t, 85.0, got.Confidence)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_RegimeMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewWithClient(db, DefaultConfig())

	mock.ExpectGet("contraguard:regime:ETH").RedisNil()
	_, found, err := c.GetRegime(context.Background(), "ETH")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_SentimentRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewWithClient(db, DefaultConfig())
	ctx := context.Background()

	record := confirm.SentimentRecord{
		FearScore:   18,
		SourceCount: 4,
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Valid:       true,
	}
	payload, err := json.Marshal(record)
	require.NoError(t, err)

	mock.ExpectSet("contraguard:sentiment:BTC", payload, 15*time.Minute).SetVal("OK")
	require.NoError(t, c.SetSentiment(ctx, "BTC", record))

	mock.ExpectGet("contraguard:sentiment:BTC").SetVal(string(payload))
	got, found, err := c.GetSentiment(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 18, got.FearScore)
	assert.True(t, got.Valid)
}

func TestSafetyStore_RoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewSafetyStore(db)
	ctx := context.Background()

	payload, err := json.Marshal(safetyRecord{State: "paused", Reason: "maintenance"})
	require.NoError(t, err)

	mock.ExpectSet("contraguard:safety:state", payload, time.Duration(0)).SetVal("OK")
	require.NoError(t, store.SaveState(ctx, safety.Paused, "maintenance"))

	mock.ExpectGet("contraguard:safety:state").SetVal(string(payload))
	state, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, safety.Paused, state)
}

func TestSafetyStore_MissingKeyReadsActive(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewSafetyStore(db)

	mock.ExpectGet("contraguard:safety:state").RedisNil()
	state, err := store.LoadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, safety.Active, state)
}

func TestSafetyStore_ReadErrorPropagates(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewSafetyStore(db)

	mock.ExpectGet("contraguard:safety:state").SetErr(errors.New("connection reset"))
	_, err := store.LoadState(context.Background())
	assert.Error(t, err, "the switch treats this as trading disabled")
}

func TestSafetyStore_CorruptStateReadsAsEmergencyStop(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewSafetyStore(db)

	payload, _ := json.Marshal(safetyRecord{State: "garbage"})
	mock.ExpectGet("contraguard:safety:state").SetVal(string(payload))
	state, err := store.LoadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, safety.EmergencyStop, state)
}
