// Package config loads the TOML configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/trailguard/trailguard/core"
)

// Defaults applied when the file omits a key or does not exist at all.
const (
	DefaultPercentage      = 5.0
	DefaultATRPeriod       = 14
	DefaultATRMultiplier   = 2.0
	DefaultDatabasePath    = ".data/trailguard.db"
	DefaultHistoryLookback = 90 * 24 * time.Hour
)

// Config is the runtime configuration. CLI flags override any of it.
type Config struct {
	Tickers            []string
	StopLossPercentage float64
	TrailingEnabled    bool
	ATRPeriod          int
	ATRMultiplier      float64
	DatabasePath       string
	HistoryLookback    time.Duration
}

// Load reads a TOML config file. A missing file is not an error: defaults
// apply and the ticker list stays empty, which the CLI only rejects when
// no tickers were passed as arguments either.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetDefault("stop_loss_percentage", DefaultPercentage)
	v.SetDefault("trailing_enabled", false)
	v.SetDefault("atr_period", DefaultATRPeriod)
	v.SetDefault("atr_multiplier", DefaultATRMultiplier)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("history_lookback", "90d")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	lookback, err := str2duration.ParseDuration(v.GetString("history_lookback"))
	if err != nil {
		return nil, fmt.Errorf("parse history_lookback: %w", err)
	}
	if lookback < 24*time.Hour {
		return nil, fmt.Errorf("%w: history_lookback must cover at least one day, got %q",
			core.ErrInvalidParameter, v.GetString("history_lookback"))
	}

	return &Config{
		Tickers:            v.GetStringSlice("tickers"),
		StopLossPercentage: v.GetFloat64("stop_loss_percentage"),
		TrailingEnabled:    v.GetBool("trailing_enabled"),
		ATRPeriod:          v.GetInt("atr_period"),
		ATRMultiplier:      v.GetFloat64("atr_multiplier"),
		DatabasePath:       v.GetString("database_path"),
		HistoryLookback:    lookback,
	}, nil
}
