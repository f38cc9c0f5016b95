// Package report renders batch outcomes for the terminal. All display
// rounding happens here; the engine hands over raw floats.
package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/trailguard/trailguard/core"
)

// Render writes the results table followed by a one-line summary. Failed
// tickers get an inline error row instead of aborting the table.
func Render(w io.Writer, outcomes []core.TickerOutcome) {
	showWeek52 := lo.SomeBy(outcomes, func(o core.TickerOutcome) bool {
		return o.Result != nil && o.Result.Week52High != nil
	})

	table := tablewriter.NewWriter(w)
	table.SetHeader(headers(showWeek52))
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			table.Append(errorRow(outcome, showWeek52))
			continue
		}
		table.Append(resultRow(*outcome.Result, showWeek52))
	}
	table.Render()

	succeeded := lo.CountBy(outcomes, func(o core.TickerOutcome) bool { return o.Err == nil })
	fmt.Fprintf(w, "calculated %d/%d stop-losses\n", succeeded, len(outcomes))
}

func headers(showWeek52 bool) []string {
	cols := []string{"Ticker", "Price"}
	if showWeek52 {
		cols = append(cols, "52w High")
	}
	return append(cols, "50d SMA", "Stop-Loss", "Strategy", "Distance", "Risk/Share", "Guidance")
}

func resultRow(res core.StopLossResult, showWeek52 bool) []string {
	row := []string{
		res.Symbol,
		money(res.Currency, res.CurrentPrice),
	}
	if showWeek52 {
		row = append(row, optMoney(res.Currency, res.Week52High))
	}

	strategy := string(res.Strategy)
	if res.Anchored {
		strategy += " @52w"
	}

	return append(row,
		optMoney(res.Currency, res.MovingAvg50),
		money(res.Currency, res.StopLoss),
		strategy,
		distance(res),
		money(res.Currency, res.DollarRisk),
		string(res.Guidance),
	)
}

func errorRow(outcome core.TickerOutcome, showWeek52 bool) []string {
	row := []string{outcome.Symbol, "ERROR"}
	if showWeek52 {
		row = append(row, "-")
	}
	return append(row, "-", "-", "-", "-", "-", truncate(outcome.Err.Error(), 48))
}

func distance(res core.StopLossResult) string {
	if res.Strategy == core.StrategyATR {
		return fmt.Sprintf("%.2f x ATR %.2f", res.ATRMultiplier, res.ATR)
	}
	return fmt.Sprintf("%.2f%%", res.Percentage)
}

func money(currency string, value float64) string {
	return fmt.Sprintf("%s %.2f", currency, value)
}

func optMoney(currency string, value *float64) string {
	if value == nil {
		return "-"
	}
	return money(currency, *value)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
