package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailguard/trailguard"
	"github.com/trailguard/trailguard/config"
	"github.com/trailguard/trailguard/core"
	zerologger "github.com/trailguard/trailguard/logger/zerolog"
	"github.com/trailguard/trailguard/quote"
	"github.com/trailguard/trailguard/report"
	"github.com/trailguard/trailguard/storage"
)

const (
	version    = "1.0.0"
	dateLayout = "2006-01-02"
)

// Command line flags
var (
	configFile    string
	percentage    float64
	simpleMode    bool
	trailingMode  bool
	atrMode       bool
	atrPeriod     int
	atrMultiplier float64
	sinceDate     string
	noHistory     bool
	week52High    bool
	verbose       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "trailguard",
		Short:   "Stop-loss price calculator for stock positions",
		Version: version,
	}

	rootCmd.AddCommand(buildCalculateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildCalculateCmd() *cobra.Command {
	calculateCmd := &cobra.Command{
		Use:   "calculate [TICKERS...]",
		Short: "Calculate stop-loss prices for configured or given tickers",
		RunE:  runCalculate,
	}

	calculateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")
	calculateCmd.Flags().Float64VarP(&percentage, "percentage", "p", 0, "Stop-loss percentage (overrides config)")
	calculateCmd.Flags().BoolVarP(&simpleMode, "simple", "s", false, "Use simple stop-loss")
	calculateCmd.Flags().BoolVarP(&trailingMode, "trailing", "t", false, "Use trailing stop-loss")
	calculateCmd.Flags().BoolVarP(&atrMode, "atr", "a", false, "Use ATR-based stop-loss")
	calculateCmd.Flags().IntVarP(&atrPeriod, "atr-period", "P", 0, "ATR calculation period in trading days")
	calculateCmd.Flags().Float64VarP(&atrMultiplier, "atr-multiplier", "m", 0, "ATR multiplier for stop distance")
	calculateCmd.Flags().StringVarP(&sinceDate, "since", "d", "", "Start date for the trailing window (YYYY-MM-DD)")
	calculateCmd.Flags().BoolVarP(&noHistory, "no-history", "H", false, "Skip historical data persistence")
	calculateCmd.Flags().BoolVarP(&week52High, "week52-high", "w", false, "Anchor the stop to the 52-week high instead of the current price")
	calculateCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return calculateCmd
}

func runCalculate(cmd *cobra.Command, args []string) error {
	log := zerologger.NewConsole(os.Stderr)
	if verbose {
		log.SetLevel(core.DebugLevel)
	} else {
		log.SetLevel(core.InfoLevel)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	tickers := args
	if len(tickers) == 0 {
		tickers = cfg.Tickers
	}
	if len(tickers) == 0 {
		return fmt.Errorf("no tickers specified: add them to the config file or pass them as arguments")
	}

	params, err := buildRunParams(cfg)
	if err != nil {
		return err
	}

	opts := []trailguard.Option{
		trailguard.WithLogger(log),
		trailguard.WithProgress(!verbose),
	}

	if !noHistory {
		store, err := storage.NewFromSQLite(cfg.DatabasePath, storage.DefaultConfig())
		if err != nil {
			// The store being down degrades the run, it does not end it.
			log.WithError(err).Warn("history store unavailable, running current-price-only")
		} else {
			defer store.Close()
			opts = append(opts, trailguard.WithStorage(store))
		}
	}

	cache, err := storage.NewSnapshotCache(storage.BuntConfig{TTL: 5 * time.Minute})
	if err == nil {
		defer cache.Close()
		opts = append(opts, trailguard.WithSnapshotCache(cache))
	}

	app := trailguard.New(quote.NewYahoo(), opts...)
	outcomes := app.Run(cmd.Context(), tickers, params)

	fmt.Println()
	report.Render(os.Stdout, outcomes)
	return nil
}

func buildRunParams(cfg *config.Config) (trailguard.RunParams, error) {
	modes := 0
	for _, enabled := range []bool{simpleMode, trailingMode, atrMode} {
		if enabled {
			modes++
		}
	}
	if modes > 1 {
		return trailguard.RunParams{}, fmt.Errorf("only one mode (--simple, --trailing, --atr) can be specified")
	}

	strategy := core.StrategySimple
	switch {
	case atrMode:
		strategy = core.StrategyATR
	case trailingMode:
		strategy = core.StrategyTrailing
	case simpleMode:
		strategy = core.StrategySimple
	case cfg.TrailingEnabled:
		strategy = core.StrategyTrailing
	}

	params := trailguard.RunParams{
		Strategy:      strategy,
		Percentage:    cfg.StopLossPercentage,
		ATRPeriod:     cfg.ATRPeriod,
		ATRMultiplier: cfg.ATRMultiplier,
		UseWeek52High: week52High,
		Lookback:      cfg.HistoryLookback,
		SkipHistory:   noHistory,
	}

	if percentage > 0 {
		params.Percentage = percentage
	}
	if atrPeriod > 0 {
		params.ATRPeriod = atrPeriod
	}
	if atrMultiplier > 0 {
		params.ATRMultiplier = atrMultiplier
	}

	if sinceDate != "" {
		since, err := core.ParseDay(sinceDate)
		if err != nil {
			return trailguard.RunParams{}, fmt.Errorf("invalid date %q, use %s", sinceDate, dateLayout)
		}
		params.Since = &since
	}

	return params, nil
}
