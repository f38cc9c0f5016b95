// Package engine computes stop-loss prices. Everything here is pure: no
// I/O, no state between calls, rounding left to the presentation layer.
package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/trailguard/trailguard/core"
)

// CalculateSimple computes a fixed-percentage stop below the anchor price.
// The anchor defaults to the current price; passing basePrice (e.g. a
// 52-week high) overrides it, in which case the result is flagged as
// anchored. Dollar risk is always measured against the live price, so an
// anchored stop above it yields a negative risk.
func CalculateSimple(snap core.CurrentSnapshot, percentage float64, movingAvg50, basePrice *float64) (core.StopLossResult, error) {
	if err := validatePercentage(percentage); err != nil {
		return core.StopLossResult{}, err
	}

	base, anchored := resolveAnchor(snap.Price, basePrice)
	stop := base * (1 - percentage/100)

	res := newResult(snap, core.StrategySimple, stop, base, anchored, movingAvg50)
	res.Percentage = percentage
	return res, nil
}

// CalculateTrailing computes a fixed-percentage stop below the high-water
// mark. The mark is mandatory here; the caller decides what fallback, if
// any, stands in when no stored history exists.
func CalculateTrailing(snap core.CurrentSnapshot, percentage, highWaterMark float64, movingAvg50 *float64) (core.StopLossResult, error) {
	if err := validatePercentage(percentage); err != nil {
		return core.StopLossResult{}, err
	}
	if highWaterMark <= 0 {
		return core.StopLossResult{}, fmt.Errorf("%w: %s", core.ErrNoHighWaterMark, snap.Symbol)
	}

	stop := highWaterMark * (1 - percentage/100)

	res := newResult(snap, core.StrategyTrailing, stop, highWaterMark, false, movingAvg50)
	res.Percentage = percentage
	return res, nil
}

// CalculateATR computes the Average True Range over the given period as a
// simple moving average of true ranges, no exponential smoothing. The
// series must be ascending by date and hold at least period+1 rows, since
// each true range needs the prior close.
func CalculateATR(series []core.PriceObservation, period int) (float64, error) {
	if period < 1 {
		return 0, fmt.Errorf("%w: ATR period must be >= 1, got %d", core.ErrInvalidParameter, period)
	}
	if len(series) < period+1 {
		return 0, fmt.Errorf("%w: ATR(%d) needs %d rows, have %d",
			core.ErrInsufficientData, period, period+1, len(series))
	}

	trueRanges := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		trueRanges = append(trueRanges, trueRange(series[i], series[i-1].Close))
	}

	return stat.Mean(trueRanges[len(trueRanges)-period:], nil), nil
}

// CalculateATRStopLoss computes stop = anchor - ATR*multiplier. The anchor
// override works exactly as in CalculateSimple. The percentage parameter is
// carried onto the result for reporting parity with the other strategies
// but plays no part in the distance.
func CalculateATRStopLoss(snap core.CurrentSnapshot, percentage, atr, multiplier float64, movingAvg50, basePrice *float64) (core.StopLossResult, error) {
	if multiplier <= 0 {
		return core.StopLossResult{}, fmt.Errorf("%w: ATR multiplier must be positive, got %v",
			core.ErrInvalidParameter, multiplier)
	}
	if atr < 0 {
		return core.StopLossResult{}, fmt.Errorf("%w: negative ATR %v", core.ErrInvalidParameter, atr)
	}

	base, anchored := resolveAnchor(snap.Price, basePrice)
	stop := base - atr*multiplier

	res := newResult(snap, core.StrategyATR, stop, base, anchored, movingAvg50)
	res.Percentage = percentage
	res.ATR = atr
	res.ATRMultiplier = multiplier
	return res, nil
}

// Classify derives the guidance signal. The above-current check has
// priority regardless of the moving average; without a moving average the
// remaining cases are not classifiable.
func Classify(stopLoss, currentPrice float64, movingAvg50 *float64) core.Guidance {
	switch {
	case stopLoss > currentPrice:
		return core.GuidanceAboveCurrent
	case movingAvg50 == nil:
		return core.GuidanceNone
	case stopLoss < *movingAvg50:
		return core.GuidanceRaiseStop
	default:
		return core.GuidanceKeepCurrent
	}
}

// trueRange is the largest of the three single-day movement measures. A
// missing low falls back to the close, which keeps the gap terms intact.
func trueRange(obs core.PriceObservation, prevClose float64) float64 {
	low := obs.Close
	if obs.Low != nil {
		low = *obs.Low
	}
	return math.Max(obs.High-low,
		math.Max(math.Abs(obs.High-prevClose), math.Abs(low-prevClose)))
}

func resolveAnchor(currentPrice float64, basePrice *float64) (base float64, anchored bool) {
	if basePrice != nil {
		return *basePrice, true
	}
	return currentPrice, false
}

func validatePercentage(percentage float64) error {
	if percentage <= 0 || percentage >= 100 {
		return fmt.Errorf("%w: percentage must be between 0 and 100, got %v",
			core.ErrInvalidParameter, percentage)
	}
	return nil
}

func newResult(snap core.CurrentSnapshot, strategy core.StrategyType, stop, base float64, anchored bool, movingAvg50 *float64) core.StopLossResult {
	return core.StopLossResult{
		Symbol:       snap.Symbol,
		CurrentPrice: snap.Price,
		StopLoss:     stop,
		Currency:     snap.Currency,
		Strategy:     strategy,
		DollarRisk:   snap.Price - stop,
		BasePrice:    base,
		Anchored:     anchored,
		MovingAvg50:  movingAvg50,
		Week52High:   snap.Week52High,
		Guidance:     Classify(stop, snap.Price, movingAvg50),
	}
}
