package core

import "errors"

var (
	// ErrInvalidParameter marks caller-supplied percentages, periods or
	// multipliers outside their valid range. Values are never clamped.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientData marks a historical series too short for the
	// requested computation. The engine never shortens the window instead.
	ErrInsufficientData = errors.New("insufficient historical data")

	// ErrPersistence marks a storage-layer failure, as opposed to an
	// empty-but-healthy store. Orchestration may degrade to
	// current-price-only calculation when it sees this.
	ErrPersistence = errors.New("persistence unavailable")

	// ErrFetchFailed marks an upstream market-data failure for a single
	// symbol. It never aborts the rest of a batch.
	ErrFetchFailed = errors.New("market data fetch failed")

	// ErrNoHighWaterMark means trailing mode had neither stored history
	// nor a usable fallback anchor.
	ErrNoHighWaterMark = errors.New("no high-water mark available")
)
