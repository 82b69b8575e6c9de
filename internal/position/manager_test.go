package position

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingExecutor captures order requests; fails when failing is set.
type recordingExecutor struct {
	requests []OrderRequest
	failing  bool
}

func (e *recordingExecutor) Execute(_ context.Context, req OrderRequest) error {
	if e.failing {
		return errors.New("venue rejected order")
	}
	e.requests = append(e.requests, req)
	return nil
}

// memoryTradeStore accumulates immutable trade records.
type memoryTradeStore struct {
	trades []TradeRecord
}

func (s *memoryTradeStore) Insert(_ context.Context, tr TradeRecord) error {
	s.trades = append(s.trades, tr)
	return nil
}

func newTestManager() (*Manager, *recordingExecutor, *memoryTradeStore) {
	exec := &recordingExecutor{}
	store := &memoryTradeStore{}
	return NewManager(DefaultManagerConfig(), exec, store), exec, store
}

func TestEvaluate_StopLossFiresFirst(t *testing.T) {
	m, exec, store := newTestManager()
	p := openLong(t, 1, 100, 95, 120)
	m.Track(p)

	// Price breaches the stop while a sell signal is also present: the
	// stop-loss rule strictly precedes the council sell.
	event, err := m.Evaluate(context.Background(), p, EvalInputs{Price: 94, ATR: 2, SellSignal: true, Now: testTime})
	require.NoError(t, err)

	assert.Equal(t, ActionExit, event.Action)
	assert.Equal(t, StopLoss, event.Reason)
	assert.Equal(t, Closed, p.Status)
	require.Len(t, store.trades, 1)
	assert.Equal(t, StopLoss, store.trades[0].Reason)
	require.Len(t, exec.requests, 1)
	assert.Equal(t, "sell", exec.requests[0].Side)
}

func TestEvaluate_CouncilSell(t *testing.T) {
	m, _, store := newTestManager()
	p := openLong(t, 2, 100, 90, 0)
	m.Track(p)

	event, err := m.Evaluate(context.Background(), p, EvalInputs{Price: 101, ATR: 2, SellSignal: true, Now: testTime})
	require.NoError(t, err)

	assert.Equal(t, CouncilSell, event.Reason)
	assert.Equal(t, Closed, p.Status)
	assert.Equal(t, CouncilSell, store.trades[0].Reason)
}

func TestEvaluate_TakeProfitPartialExit(t *testing.T) {
	m, _, store := newTestManager()
	p := openLong(t, 2, 100, 90, 120)
	m.Track(p)

	event, err := m.Evaluate(context.Background(), p, EvalInputs{Price: 121, ATR: 2, Now: testTime})
	require.NoError(t, err)

	assert.Equal(t, ActionPartialExit, event.Action)
	assert.Equal(t, TakeProfit, event.Reason)
	assert.Equal(t, 1.0, p.Size, "half scaled out")
	assert.Equal(t, Open, p.Status, "position stays open with remaining size")
	assert.True(t, p.ScaledOut)
	require.Len(t, store.trades, 1)
	assert.InDelta(t, 21.0, store.trades[0].RealizedPnL, 1e-9)

	// The target only fires once.
	again, err := m.Evaluate(context.Background(), p, EvalInputs{Price: 122, ATR: 2, Now: testTime})
	require.NoError(t, err)
	assert.NotEqual(t, TakeProfit, again.Reason)
}

func TestEvaluate_BreakevenMovesStopNoExit(t *testing.T) {
	m, exec, _ := newTestManager()
	p := openLong(t, 1, 100, 95, 0)
	m.Track(p)

	// Gain of 2x ATR (2*2=4): price 104 triggers breakeven.
	event, err := m.Evaluate(context.Background(), p, EvalInputs{Price: 104, ATR: 2, Now: testTime})
	require.NoError(t, err)

	assert.Equal(t, ActionBreakeven, event.Action)
	assert.Equal(t, 100.0, p.StopLoss, "stop moved to entry")
	assert.Equal(t, Open, p.Status)
	assert.Empty(t, exec.requests, "breakeven is not an exit")
}

func TestEvaluate_TrailingStopOnlyRaises(t *testing.T) {
	m, _, _ := newTestManager()
	p := openLong(t, 1, 100, 95, 0)
	p.BreakevenSet = true // skip the breakeven rule
	m.Track(p)

	event, err := m.Evaluate(context.Background(), p, EvalInputs{Price: 110, ATR: 2, Now: testTime})
	require.NoError(t, err)
	assert.Equal(t, ActionTrailingStop, event.Action)
	assert.Equal(t, 106.0, p.StopLoss) // 110 - 2x ATR

	// Price retreat must not lower the stop; with the trail below the
	// current stop the rule simply does not fire.
	event, err = m.Evaluate(context.Background(), p, EvalInputs{Price: 108, ATR: 2, Now: testTime})
	require.NoError(t, err)
	assert.NotEqual(t, ActionTrailingStop, event.Action)
	assert.Equal(t, 106.0, p.StopLoss)
}

func TestEvaluate_ScaleInOnPullback(t *testing.T) {
	m, exec, _ := newTestManager()
	p := openLong(t, 2, 100, 80, 0)
	m.Track(p)

	// 5% pullback to 95, still above the stop: add half the size.
	event, err := m.Evaluate(context.Background(), p, EvalInputs{Price: 95, Now: testTime})
	require.NoError(t, err)

	assert.Equal(t, ActionScaleIn, event.Action)
	assert.Equal(t, 3.0, p.Size)
	assert.InDelta(t, (2*100.0+1*95.0)/3.0, p.AverageEntry(), 1e-9)
	assert.True(t, p.ScaledIn)
	require.Len(t, exec.requests, 1)
	assert.Equal(t, "buy", exec.requests[0].Side)

	// One add only.
	again, err := m.Evaluate(context.Background(), p, EvalInputs{Price: 92, Now: testTime})
	require.NoError(t, err)
	assert.NotEqual(t, ActionScaleIn, again.Action)
}

func TestEvaluate_ExactlyOneActionPerCycle(t *testing.T) {
	m, _, store := newTestManager()
	// Everything is simultaneously true: stop hit, sell signal, target
	// passed. Only the highest-priority rule may fire.
	p := openLong(t, 1, 100, 99, 98)
	m.Track(p)

	event, err := m.Evaluate(context.Background(), p, EvalInputs{Price: 98.5, ATR: 0.1, SellSignal: true, Now: testTime})
	require.NoError(t, err)

	assert.Equal(t, StopLoss, event.Reason)
	assert.Len(t, store.trades, 1, "a single exit record for a single cycle")
}

func TestEvaluate_NoRuleFired(t *testing.T) {
	m, exec, _ := newTestManager()
	p := openLong(t, 1, 100, 90, 0)
	m.Track(p)

	event, err := m.Evaluate(context.Background(), p, EvalInputs{Price: 101, ATR: 6, Now: testTime})
	require.NoError(t, err)
	assert.Equal(t, ActionNone, event.Action)
	assert.Empty(t, exec.requests)
}

func TestEvaluate_ExecutionFailureLeavesPositionIntact(t *testing.T) {
	m, exec, store := newTestManager()
	exec.failing = true
	p := openLong(t, 1, 100, 95, 0)
	m.Track(p)

	_, err := m.Evaluate(context.Background(), p, EvalInputs{Price: 94, SellSignal: false, Now: testTime})
	require.Error(t, err)
	assert.Equal(t, Open, p.Status, "state mutates only after successful execution")
	assert.Empty(t, store.trades)
}

func TestCloseAll_Liquidation(t *testing.T) {
	m, _, store := newTestManager()
	p1 := openLong(t, 1, 100, 90, 0)
	p2 := openLong(t, 2, 50, 40, 0)
	p2.Asset = "ETH"
	m.Track(p1)
	m.Track(p2)

	events, err := m.CloseAll(context.Background(), map[string]float64{"BTC": 105}, testTime)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	for _, p := range []*Position{p1, p2} {
		assert.Equal(t, Closed, p.Status)
	}
	for _, tr := range store.trades {
		assert.Equal(t, Emergency, tr.Reason)
	}
}

func TestEvaluateAll_FiltersByAsset(t *testing.T) {
	m, _, _ := newTestManager()
	btc := openLong(t, 1, 100, 90, 0)
	eth := openLong(t, 1, 50, 40, 0)
	eth.Asset = "ETH"
	m.Track(btc)
	m.Track(eth)

	events, err := m.EvaluateAll(context.Background(), "BTC", EvalInputs{Price: 101, ATR: 5, Now: testTime})
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, btc.ID, events[0].PositionID)
}

func TestOpenExposure(t *testing.T) {
	m, _, _ := newTestManager()
	p := openLong(t, 2, 100, 0, 0)
	m.Track(p)

	exposure := m.OpenExposure()
	assert.InDelta(t, 200.0, exposure["BTC"], 1e-9)
}
