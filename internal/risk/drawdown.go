package risk

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Snapshot is one append-only portfolio equity observation. Peak is
// monotonic non-decreasing across the log.
type Snapshot struct {
	Timestamp     time.Time `json:"ts" db:"ts"`
	Value         float64   `json:"value" db:"value"`
	Peak          float64   `json:"peak" db:"peak"`
	DrawdownPct   float64   `json:"drawdown_pct" db:"drawdown_pct"`
	OpenPositions int       `json:"open_positions" db:"open_positions"`
}

// SnapshotStore persists the append-only snapshot log. Implemented by the
// postgres repository; tests supply in-memory fakes.
type SnapshotStore interface {
	Append(ctx context.Context, snapshot Snapshot) error
	Latest(ctx context.Context) (*Snapshot, error)
}

// DrawdownTracker maintains peak-equity memory and the current drawdown.
// Constructed once at process start and injected wherever drawdown state is
// read; the peak only ever increases.
type DrawdownTracker struct {
	mu         sync.Mutex
	store      SnapshotStore
	peak       float64
	current    float64
	dayOpen    float64
	dayOpenDay time.Time
}

// NewDrawdownTracker creates a tracker, recovering the peak from the latest
// persisted snapshot so a restart cannot lower it.
func NewDrawdownTracker(ctx context.Context, store SnapshotStore) (*DrawdownTracker, error) {
	t := &DrawdownTracker{store: store}
	if store != nil {
		latest, err := store.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to recover peak equity: %w", err)
		}
		if latest != nil {
			t.peak = latest.Peak
			t.current = latest.Value
		}
	}
	return t, nil
}

// Update records a new portfolio value, raises the peak if exceeded, and
// appends a snapshot. The returned snapshot carries the recomputed
// drawdown percentage.
func (t *DrawdownTracker) Update(ctx context.Context, now time.Time, value float64, openPositions int) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if value > t.peak {
		t.peak = value
	}
	t.current = value

	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(t.dayOpenDay) {
		t.dayOpenDay = day
		t.dayOpen = value
	}

	snapshot := Snapshot{
		Timestamp:     now,
		Value:         value,
		Peak:          t.peak,
		DrawdownPct:   drawdownPct(t.peak, value),
		OpenPositions: openPositions,
	}

	if t.store != nil {
		if err := t.store.Append(ctx, snapshot); err != nil {
			return snapshot, fmt.Errorf("failed to append portfolio snapshot: %w", err)
		}
	}
	return snapshot, nil
}

// Drawdown returns the current drawdown percentage from peak.
func (t *DrawdownTracker) Drawdown() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return drawdownPct(t.peak, t.current)
}

// Peak returns the monotonic peak equity.
func (t *DrawdownTracker) Peak() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// DailyLossPct returns today's loss from the session open as a positive
// percentage; gains report 0.
func (t *DrawdownTracker) DailyLossPct() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dayOpen <= 0 || t.current >= t.dayOpen {
		return 0
	}
	return (t.dayOpen - t.current) / t.dayOpen * 100.0
}

func drawdownPct(peak, value float64) float64 {
	if peak <= 0 || value >= peak {
		return 0
	}
	return (peak - value) / peak * 100.0
}
