package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barAt(ts time.Time, close float64) Candle {
	return Candle{Timestamp: ts, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestNewSeries_RejectsOutOfOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewSeries([]Candle{
		barAt(base.Add(time.Hour), 100),
		barAt(base, 101),
	})
	assert.Error(t, err)
}

func TestNewSeries_RejectsDuplicateTimestamps(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewSeries([]Candle{
		barAt(base, 100),
		barAt(base, 101),
	})
	assert.Error(t, err)
}

func TestSeries_Accessors(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewSeries([]Candle{
		barAt(base, 100),
		barAt(base.Add(time.Hour), 102),
		barAt(base.Add(2*time.Hour), 99),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 99.0, s.LastClose())
	assert.Equal(t, []float64{100, 102, 99}, s.Closes())

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 99.0, last.Close)

	assert.Equal(t, 2, s.Tail(2).Len())
	assert.Equal(t, 3, s.Tail(10).Len())
}

func TestSeries_EmptyDefaults(t *testing.T) {
	var s Series
	assert.Equal(t, 0.0, s.LastClose())
	_, ok := s.Last()
	assert.False(t, ok)
}
