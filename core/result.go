package core

// StrategyType tags which stop-loss strategy produced a result. The set is
// closed: the 52-week-high variant is an anchor override on Simple or ATR,
// not a strategy of its own.
type StrategyType string

const (
	StrategySimple   StrategyType = "simple"
	StrategyTrailing StrategyType = "trailing"
	StrategyATR      StrategyType = "atr"
)

// Guidance is a secondary signal derived from comparing the stop price
// against the current price and the 50-day moving average.
type Guidance string

const (
	// GuidanceAboveCurrent means the stop sits above the live price and
	// would trigger immediately. It wins over every other classification.
	GuidanceAboveCurrent Guidance = "above current"
	GuidanceRaiseStop    Guidance = "raise stop"
	GuidanceKeepCurrent  Guidance = "keep current"
	GuidanceNone         Guidance = "n/a"
)

// StopLossResult is the outcome of one stop-loss calculation. DollarRisk
// is always measured against the live price, so an anchored stop above the
// current price yields a negative risk; that is a valid state, not an
// error.
type StopLossResult struct {
	Symbol        string
	CurrentPrice  float64
	StopLoss      float64
	Currency      string
	Strategy      StrategyType
	Percentage    float64
	ATR           float64
	ATRMultiplier float64
	DollarRisk    float64

	// BasePrice records the anchor the distance was measured from.
	// Anchored is true only when a 52-week high actually replaced the
	// default anchor, so callers can tell an explicit anchor from the
	// current-price fallback.
	BasePrice   float64
	Anchored    bool
	MovingAvg50 *float64
	Week52High  *float64
	Guidance    Guidance
}

// TickerOutcome pairs a symbol with either its result or the error that
// prevented one. A batch run yields one outcome per requested symbol.
type TickerOutcome struct {
	Symbol string
	Result *StopLossResult
	Err    error
}
