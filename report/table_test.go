package report

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trailguard/trailguard/core"
)

func TestRender_MixedOutcomes(t *testing.T) {
	ma := 140.0
	outcomes := []core.TickerOutcome{
		{
			Symbol: "AAPL",
			Result: &core.StopLossResult{
				Symbol:       "AAPL",
				CurrentPrice: 150.0,
				StopLoss:     142.5,
				Currency:     "USD",
				Strategy:     core.StrategySimple,
				Percentage:   5.0,
				DollarRisk:   7.5,
				BasePrice:    150.0,
				MovingAvg50:  &ma,
				Guidance:     core.GuidanceKeepCurrent,
			},
		},
		{Symbol: "GOOGL", Err: fmt.Errorf("%w: GOOGL", core.ErrFetchFailed)},
	}

	var buf bytes.Buffer
	Render(&buf, outcomes)
	out := buf.String()

	require.Contains(t, out, "AAPL")
	require.Contains(t, out, "142.50")
	require.Contains(t, out, "ERROR")
	require.Contains(t, out, "calculated 1/2 stop-losses")
	// No result carries a 52-week high, so the column stays hidden.
	require.NotContains(t, out, "52w High")
}

func TestRender_AnchoredShowsWeek52Column(t *testing.T) {
	week52 := 288.62
	outcomes := []core.TickerOutcome{
		{
			Symbol: "AAPL",
			Result: &core.StopLossResult{
				Symbol:       "AAPL",
				CurrentPrice: 259.04,
				StopLoss:     265.5304,
				Currency:     "USD",
				Strategy:     core.StrategySimple,
				Percentage:   8.0,
				DollarRisk:   -6.4904,
				BasePrice:    288.62,
				Anchored:     true,
				Week52High:   &week52,
				Guidance:     core.GuidanceAboveCurrent,
			},
		},
	}

	var buf bytes.Buffer
	Render(&buf, outcomes)
	out := buf.String()

	require.Contains(t, out, "52w High")
	require.Contains(t, out, "simple @52w")
	// Negative risk is rendered as-is, it is a valid state.
	require.Contains(t, out, "-6.49")
	require.Contains(t, out, "above current")
}
