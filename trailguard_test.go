package trailguard

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trailguard/trailguard/core"
	zerologger "github.com/trailguard/trailguard/logger/zerolog"
	"github.com/trailguard/trailguard/storage"
)

type stubFeeder struct {
	snapshots map[string]core.CurrentSnapshot
	daily     map[string][]core.PriceObservation
	failing   map[string]error
}

func (f *stubFeeder) Snapshot(_ context.Context, symbol string) (core.CurrentSnapshot, error) {
	if err, ok := f.failing[symbol]; ok {
		return core.CurrentSnapshot{}, err
	}
	snap, ok := f.snapshots[symbol]
	if !ok {
		return core.CurrentSnapshot{}, core.ErrFetchFailed
	}
	return snap, nil
}

func (f *stubFeeder) Daily(_ context.Context, symbol string, _, _ core.Day) ([]core.PriceObservation, error) {
	return f.daily[symbol], nil
}

// brokenStorage fails every operation the way a store with a dead
// connection would.
type brokenStorage struct{}

func (brokenStorage) fail(op string) error {
	return fmt.Errorf("%w: %s: database is locked", core.ErrPersistence, op)
}

func (s brokenStorage) UpsertObservation(context.Context, core.PriceObservation) error {
	return s.fail("upsert")
}

func (s brokenStorage) UpsertBatch(context.Context, []core.PriceObservation) error {
	return s.fail("upsert batch")
}

func (s brokenStorage) LatestDate(context.Context, string) (core.Day, bool, error) {
	return core.Day{}, false, s.fail("latest date")
}

func (s brokenStorage) HighWaterMark(context.Context, string, *core.Day) (float64, bool, error) {
	return 0, false, s.fail("high-water mark")
}

func (s brokenStorage) LatestWeek52High(context.Context, string) (float64, bool, error) {
	return 0, false, s.fail("latest 52-week high")
}

func (s brokenStorage) RecentHistory(context.Context, string, int) ([]core.PriceObservation, error) {
	return nil, s.fail("recent history")
}

func quietLogger() core.Logger {
	return zerologger.NewConsole(io.Discard)
}

func snap(symbol string, price float64) core.CurrentSnapshot {
	return core.CurrentSnapshot{
		Symbol:      symbol,
		Price:       price,
		Currency:    "USD",
		RetrievedAt: time.Now(),
	}
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	feeder := &stubFeeder{
		snapshots: map[string]core.CurrentSnapshot{
			"AAPL": snap("AAPL", 150),
			"MSFT": snap("MSFT", 300),
		},
		failing: map[string]error{"GOOGL": core.ErrFetchFailed},
	}

	app := New(feeder, WithLogger(quietLogger()))
	outcomes := app.Run(context.Background(), []string{"AAPL", "GOOGL", "MSFT"}, RunParams{
		Strategy:    core.StrategySimple,
		Percentage:  5.0,
		SkipHistory: true,
	})

	require.Len(t, outcomes, 3)
	require.NotNil(t, outcomes[0].Result)
	require.ErrorIs(t, outcomes[1].Err, core.ErrFetchFailed)
	require.NotNil(t, outcomes[2].Result)
	require.Equal(t, 142.5, outcomes[0].Result.StopLoss)
}

func TestRun_DedupePreservesInputOrder(t *testing.T) {
	feeder := &stubFeeder{snapshots: map[string]core.CurrentSnapshot{
		"AAPL": snap("AAPL", 150),
		"MSFT": snap("MSFT", 300),
	}}

	app := New(feeder, WithLogger(quietLogger()))
	outcomes := app.Run(context.Background(), []string{"aapl", "AAPL", " msft "}, RunParams{
		Strategy:    core.StrategySimple,
		Percentage:  5.0,
		SkipHistory: true,
	})

	require.Len(t, outcomes, 2)
	require.Equal(t, "AAPL", outcomes[0].Symbol)
	require.Equal(t, "MSFT", outcomes[1].Symbol)
}

func TestRun_TrailingUsesStoredHighWaterMark(t *testing.T) {
	store, err := storage.NewFromSQLite(filepath.Join(t.TempDir(), "series.db"), storage.DefaultConfig())
	require.NoError(t, err)
	defer store.Close()

	day := core.NewDay(2024, time.June, 3)
	low := 118.0
	require.NoError(t, store.UpsertObservation(context.Background(), core.PriceObservation{
		Symbol: "AAPL", Date: day, High: 120, Low: &low, Close: 119,
	}))

	feeder := &stubFeeder{snapshots: map[string]core.CurrentSnapshot{"AAPL": snap("AAPL", 100)}}
	app := New(feeder, WithLogger(quietLogger()), WithStorage(store))

	outcomes := app.Run(context.Background(), []string{"AAPL"}, RunParams{
		Strategy:   core.StrategyTrailing,
		Percentage: 10.0,
	})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	require.Equal(t, 108.0, outcomes[0].Result.StopLoss)
	require.Equal(t, 120.0, outcomes[0].Result.BasePrice)
}

func TestRun_TrailingFallsBackToCurrentPrice(t *testing.T) {
	feeder := &stubFeeder{snapshots: map[string]core.CurrentSnapshot{"AAPL": snap("AAPL", 100)}}
	app := New(feeder, WithLogger(quietLogger()))

	outcomes := app.Run(context.Background(), []string{"AAPL"}, RunParams{
		Strategy:    core.StrategyTrailing,
		Percentage:  10.0,
		SkipHistory: true,
	})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	require.Equal(t, 90.0, outcomes[0].Result.StopLoss)
	require.Equal(t, 100.0, outcomes[0].Result.BasePrice)
}

func TestRun_ATRNeedsStoredHistory(t *testing.T) {
	feeder := &stubFeeder{snapshots: map[string]core.CurrentSnapshot{"AAPL": snap("AAPL", 100)}}
	app := New(feeder, WithLogger(quietLogger()))

	outcomes := app.Run(context.Background(), []string{"AAPL"}, RunParams{
		Strategy:      core.StrategyATR,
		Percentage:    5.0,
		ATRPeriod:     14,
		ATRMultiplier: 2.0,
		SkipHistory:   true,
	})

	require.Len(t, outcomes, 1)
	require.ErrorIs(t, outcomes[0].Err, core.ErrInsufficientData)
}

func TestRun_ATRFromStoredSeries(t *testing.T) {
	store, err := storage.NewFromSQLite(filepath.Join(t.TempDir(), "series.db"), storage.DefaultConfig())
	require.NoError(t, err)
	defer store.Close()

	day := core.NewDay(2024, time.January, 2)
	var batch []core.PriceObservation
	for i := 0; i < 15; i++ {
		low := 100.0
		batch = append(batch, core.PriceObservation{
			Symbol: "AAPL", Date: day.AddDays(i), High: 105, Low: &low, Close: 102.5,
		})
	}
	require.NoError(t, store.UpsertBatch(context.Background(), batch))

	// The snapshot write would land a 16th row for today whose price sits
	// inside the historical range, so keep the quote consistent with it.
	feeder := &stubFeeder{snapshots: map[string]core.CurrentSnapshot{"AAPL": snap("AAPL", 102.5)}}
	app := New(feeder, WithLogger(quietLogger()), WithStorage(store))

	outcomes := app.Run(context.Background(), []string{"AAPL"}, RunParams{
		Strategy:      core.StrategyATR,
		Percentage:    5.0,
		ATRPeriod:     14,
		ATRMultiplier: 2.0,
	})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	res := outcomes[0].Result
	require.Equal(t, core.StrategyATR, res.Strategy)
	require.Greater(t, res.ATR, 0.0)
	require.InDelta(t, res.CurrentPrice-res.ATR*2.0, res.StopLoss, 1e-9)
}

func TestRun_Week52AnchorObservableFallback(t *testing.T) {
	withHigh := snap("AAPL", 259.04)
	withHigh.Week52High = func() *float64 { v := 288.62; return &v }()

	feeder := &stubFeeder{snapshots: map[string]core.CurrentSnapshot{
		"AAPL": withHigh,
		"MSFT": snap("MSFT", 300),
	}}
	app := New(feeder, WithLogger(quietLogger()))

	outcomes := app.Run(context.Background(), []string{"AAPL", "MSFT"}, RunParams{
		Strategy:      core.StrategySimple,
		Percentage:    8.0,
		UseWeek52High: true,
		SkipHistory:   true,
	})

	require.Len(t, outcomes, 2)

	anchored := outcomes[0].Result
	require.True(t, anchored.Anchored)
	require.InDelta(t, 265.5304, anchored.StopLoss, 1e-9)
	require.Negative(t, anchored.DollarRisk)

	// No 52-week data: falls back to current price, and the flag says so.
	fallback := outcomes[1].Result
	require.False(t, fallback.Anchored)
	require.Equal(t, 300.0, fallback.BasePrice)
}

func TestRun_StoreFailureDegradesRun(t *testing.T) {
	feeder := &stubFeeder{snapshots: map[string]core.CurrentSnapshot{
		"AAPL": snap("AAPL", 150),
		"MSFT": snap("MSFT", 100),
		"NVDA": snap("NVDA", 100),
	}}
	app := New(feeder, WithLogger(quietLogger()), WithStorage(brokenStorage{}))

	// Simple mode does not need the store at all.
	outcomes := app.Run(context.Background(), []string{"AAPL"}, RunParams{
		Strategy:   core.StrategySimple,
		Percentage: 5.0,
	})
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	require.Equal(t, 142.5, outcomes[0].Result.StopLoss)

	// Trailing falls back to the live price as the mark.
	outcomes = app.Run(context.Background(), []string{"MSFT"}, RunParams{
		Strategy:   core.StrategyTrailing,
		Percentage: 10.0,
	})
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	require.Equal(t, 90.0, outcomes[0].Result.StopLoss)
	require.Equal(t, 100.0, outcomes[0].Result.BasePrice)

	// ATR has nothing to compute from without stored history.
	outcomes = app.Run(context.Background(), []string{"NVDA"}, RunParams{
		Strategy:      core.StrategyATR,
		Percentage:    5.0,
		ATRPeriod:     14,
		ATRMultiplier: 2.0,
	})
	require.Len(t, outcomes, 1)
	require.ErrorIs(t, outcomes[0].Err, core.ErrInsufficientData)
}

func TestRun_SnapshotCacheAvoidsRefetch(t *testing.T) {
	cache, err := storage.NewSnapshotCache(storage.BuntConfig{})
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Put(snap("AAPL", 111)))

	// The feeder knows nothing about AAPL; only the cache can answer.
	feeder := &stubFeeder{}
	app := New(feeder, WithLogger(quietLogger()), WithSnapshotCache(cache))

	outcomes := app.Run(context.Background(), []string{"AAPL"}, RunParams{
		Strategy:    core.StrategySimple,
		Percentage:  5.0,
		SkipHistory: true,
	})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	require.Equal(t, 111.0, outcomes[0].Result.CurrentPrice)
}
