// Package trailguard orchestrates the per-ticker stop-loss flow: refresh
// stored history, take a quote, write today's row, read the aggregates the
// chosen strategy needs and hand everything to the engine. One ticker
// failing never aborts the rest of the batch.
package trailguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/StudioSol/set"
	"github.com/markcheno/go-talib"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"

	"github.com/trailguard/trailguard/core"
	"github.com/trailguard/trailguard/engine"
)

// App wires the market-data feeder, the series store and the engine
// together for batch runs.
type App struct {
	feeder       core.Feeder
	storage      core.SeriesStorage
	cache        core.SnapshotCache
	log          core.Logger
	showProgress bool
}

// RunParams selects the strategy and its inputs for one batch run.
type RunParams struct {
	Strategy      core.StrategyType
	Percentage    float64
	ATRPeriod     int
	ATRMultiplier float64

	// Since restricts the high-water-mark window in trailing mode and
	// caps the first-run backfill start.
	Since *core.Day

	// UseWeek52High anchors Simple and ATR stops to the most recent known
	// 52-week high instead of the current price.
	UseWeek52High bool

	// Lookback is the first-run backfill window. ATR mode enforces a
	// floor of max(3x period in days, 180d) so enough trading days land
	// in the store.
	Lookback time.Duration

	// SkipHistory disables all store access for this run.
	SkipHistory bool
}

// New creates an App around a market-data feeder.
func New(feeder core.Feeder, opts ...Option) *App {
	a := &App{feeder: feeder}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = defaultLogger()
	}
	return a
}

// Run calculates stop-losses for the given tickers and returns one outcome
// per distinct symbol, in input order.
func (a *App) Run(ctx context.Context, tickers []string, params RunParams) []core.TickerOutcome {
	symbols := dedupeSymbols(tickers)

	var bar *progressbar.ProgressBar
	if a.showProgress {
		bar = progressbar.Default(int64(len(symbols)), "calculating")
	}

	outcomes := make([]core.TickerOutcome, 0, len(symbols))
	for _, symbol := range symbols {
		outcome := a.runOne(ctx, symbol, params)
		outcomes = append(outcomes, outcome)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return outcomes
}

func (a *App) runOne(ctx context.Context, symbol string, params RunParams) core.TickerOutcome {
	useStore := a.storage != nil && !params.SkipHistory

	// Degraded means the store failed mid-run; "no data" never sets it.
	degraded := false

	if useStore {
		if err := a.refreshHistory(ctx, symbol, params); err != nil {
			if errors.Is(err, core.ErrPersistence) {
				degraded = true
			}
			a.log.WithError(err).WithField("symbol", symbol).Warn("could not refresh history")
		}
	}

	snap, err := a.snapshot(ctx, symbol)
	if err != nil {
		return core.TickerOutcome{Symbol: symbol, Err: err}
	}

	if useStore && !degraded {
		if err := a.storage.UpsertObservation(ctx, snap.Observation()); err != nil {
			degraded = true
			a.log.WithError(err).WithField("symbol", symbol).Warn("could not store today's quote")
		}
	}

	storeUsable := useStore && !degraded
	movingAvg50 := a.movingAvg50(ctx, symbol, snap, storeUsable)

	result, err := a.dispatch(ctx, symbol, snap, params, movingAvg50, storeUsable)
	if err != nil {
		return core.TickerOutcome{Symbol: symbol, Err: err}
	}
	return core.TickerOutcome{Symbol: symbol, Result: &result}
}

// refreshHistory tops the store up to today, fetching only dates strictly
// after the latest stored one. First runs backfill the configured
// lookback window.
func (a *App) refreshHistory(ctx context.Context, symbol string, params RunParams) error {
	today := core.Today()

	latest, ok, err := a.storage.LatestDate(ctx, symbol)
	if err != nil {
		return err
	}

	var start core.Day
	if ok {
		start = latest.AddDays(1)
		if start.After(today) {
			return nil
		}
	} else {
		start = today.AddDays(-lookbackDays(params))
		if params.Since != nil && params.Since.Before(start) {
			start = *params.Since
		}
	}

	series, err := a.feeder.Daily(ctx, symbol, start, today)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return nil
	}

	if err := a.storage.UpsertBatch(ctx, series); err != nil {
		return err
	}
	a.log.WithField("symbol", symbol).Debugf("stored %d historical rows", len(series))
	return nil
}

func (a *App) snapshot(ctx context.Context, symbol string) (core.CurrentSnapshot, error) {
	if a.cache != nil {
		if snap, ok := a.cache.Get(symbol); ok {
			return snap, nil
		}
	}

	snap, err := a.feeder.Snapshot(ctx, symbol)
	if err != nil {
		return core.CurrentSnapshot{}, err
	}

	if a.cache != nil {
		if err := a.cache.Put(snap); err != nil {
			a.log.WithError(err).WithField("symbol", symbol).Warn("could not cache snapshot")
		}
	}
	return snap, nil
}

// movingAvg50 computes the 50-day simple moving average from stored
// closes. Less than 50 rows, or no usable store, yields nil and guidance
// degrades to not-applicable.
func (a *App) movingAvg50(ctx context.Context, symbol string, snap core.CurrentSnapshot, storeUsable bool) *float64 {
	if snap.MovingAvg50 != nil {
		return snap.MovingAvg50
	}
	if !storeUsable {
		return nil
	}

	rows, err := a.storage.RecentHistory(ctx, symbol, 50)
	if err != nil || len(rows) < 50 {
		return nil
	}

	closes := lo.Map(rows, func(obs core.PriceObservation, _ int) float64 { return obs.Close })
	sma := talib.Sma(closes, 50)
	value := sma[len(sma)-1]
	return &value
}

func (a *App) dispatch(ctx context.Context, symbol string, snap core.CurrentSnapshot, params RunParams, movingAvg50 *float64, storeUsable bool) (core.StopLossResult, error) {
	switch params.Strategy {
	case core.StrategyTrailing:
		return a.calcTrailing(ctx, symbol, snap, params, movingAvg50, storeUsable)
	case core.StrategyATR:
		return a.calcATR(ctx, symbol, snap, params, movingAvg50, storeUsable)
	case core.StrategySimple, "":
		base := a.anchorPrice(ctx, symbol, snap, params, storeUsable)
		return engine.CalculateSimple(snap, params.Percentage, movingAvg50, base)
	default:
		return core.StopLossResult{}, fmt.Errorf("%w: unknown strategy %q",
			core.ErrInvalidParameter, params.Strategy)
	}
}

func (a *App) calcTrailing(ctx context.Context, symbol string, snap core.CurrentSnapshot, params RunParams, movingAvg50 *float64, storeUsable bool) (core.StopLossResult, error) {
	// Fall back to the live price as the mark when no history is
	// available; the first sighting of a symbol is its own high.
	highWaterMark := snap.Price

	if storeUsable {
		mark, ok, err := a.storage.HighWaterMark(ctx, symbol, params.Since)
		switch {
		case err != nil:
			a.log.WithError(err).WithField("symbol", symbol).Warn("high-water mark unavailable, using current price")
		case ok && mark > highWaterMark:
			highWaterMark = mark
		}
	}

	return engine.CalculateTrailing(snap, params.Percentage, highWaterMark, movingAvg50)
}

func (a *App) calcATR(ctx context.Context, symbol string, snap core.CurrentSnapshot, params RunParams, movingAvg50 *float64, storeUsable bool) (core.StopLossResult, error) {
	if !storeUsable {
		return core.StopLossResult{}, fmt.Errorf("%w: ATR mode requires stored history for %s",
			core.ErrInsufficientData, symbol)
	}

	series, err := a.storage.RecentHistory(ctx, symbol, params.ATRPeriod+1)
	if err != nil {
		return core.StopLossResult{}, err
	}

	atr, err := engine.CalculateATR(series, params.ATRPeriod)
	if err != nil {
		return core.StopLossResult{}, err
	}

	base := a.anchorPrice(ctx, symbol, snap, params, storeUsable)
	return engine.CalculateATRStopLoss(snap, params.Percentage, atr, params.ATRMultiplier, movingAvg50, base)
}

// anchorPrice resolves the 52-week-high override. Returning nil makes the
// engine fall back to the current price with the anchored flag off, which
// is how "52-week data unavailable" stays observable.
func (a *App) anchorPrice(ctx context.Context, symbol string, snap core.CurrentSnapshot, params RunParams, storeUsable bool) *float64 {
	if !params.UseWeek52High {
		return nil
	}

	if storeUsable {
		if value, ok, err := a.storage.LatestWeek52High(ctx, symbol); err == nil && ok {
			return &value
		} else if err != nil {
			a.log.WithError(err).WithField("symbol", symbol).Warn("52-week high unavailable")
		}
	}
	return snap.Week52High
}

func lookbackDays(params RunParams) int {
	days := int(params.Lookback / (24 * time.Hour))
	if params.Strategy == core.StrategyATR {
		if floor := params.ATRPeriod * 3; days < floor {
			days = floor
		}
		if days < 180 {
			days = 180
		}
	}
	// An unset Lookback (zero-value params) gets the stock 90-day window;
	// configured values under a day are rejected at config load.
	if days < 1 {
		days = 90
	}
	return days
}

func dedupeSymbols(tickers []string) []string {
	symbols := set.NewLinkedHashSetString()
	for _, ticker := range tickers {
		normalized := strings.ToUpper(strings.TrimSpace(ticker))
		if normalized != "" {
			symbols.Add(normalized)
		}
	}

	out := make([]string, 0, len(tickers))
	for symbol := range symbols.Iter() {
		out = append(out, symbol)
	}
	return out
}
