package trailguard

import (
	"os"

	"github.com/trailguard/trailguard/core"
	zerologger "github.com/trailguard/trailguard/logger/zerolog"
)

// Option configures an App.
type Option func(*App)

// WithStorage attaches the durable time-series store. Without one the app
// runs current-price-only: trailing falls back to the live price and ATR
// mode reports insufficient data.
func WithStorage(storage core.SeriesStorage) Option {
	return func(a *App) { a.storage = storage }
}

// WithSnapshotCache attaches a per-invocation quote cache.
func WithSnapshotCache(cache core.SnapshotCache) Option {
	return func(a *App) { a.cache = cache }
}

// WithLogger replaces the default console logger.
func WithLogger(log core.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithProgress toggles the terminal progress bar.
func WithProgress(show bool) Option {
	return func(a *App) { a.showProgress = show }
}

func defaultLogger() core.Logger {
	return zerologger.NewConsole(os.Stderr)
}
