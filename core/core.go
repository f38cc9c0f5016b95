package core

import "context"

// SeriesStorage is the durable, deduplicated per-(symbol, date) OHLC
// archive. Implementations distinguish "no data" (ok == false, nil error)
// from "operation failed" (error wrapping ErrPersistence) so callers can
// degrade only when the store is actually broken.
type SeriesStorage interface {
	// UpsertObservation inserts or fully replaces the row for the
	// observation's (symbol, date) key. This is not a field merge: a
	// re-send with fewer fields nulls out the ones it omits.
	UpsertObservation(ctx context.Context, obs PriceObservation) error

	// UpsertBatch applies UpsertObservation semantics to a slice inside a
	// single transaction.
	UpsertBatch(ctx context.Context, obs []PriceObservation) error

	// LatestDate returns the most recent stored date for the symbol, used
	// to compute the incremental fetch window.
	LatestDate(ctx context.Context, symbol string) (Day, bool, error)

	// HighWaterMark returns MAX(high) for the symbol, optionally limited
	// to dates on or after since.
	HighWaterMark(ctx context.Context, symbol string, since *Day) (float64, bool, error)

	// LatestWeek52High returns the 52-week high from the most recent row
	// that has one. Most-recent-known, not a maximum: the 52-week high
	// can decline as old peaks roll off the window.
	LatestWeek52High(ctx context.Context, symbol string) (float64, bool, error)

	// RecentHistory returns the last lookback rows ascending by date.
	RecentHistory(ctx context.Context, symbol string, lookback int) ([]PriceObservation, error)
}

// Feeder is the market-data collaborator. Either call may fail per-symbol;
// callers must tolerate partial absence (empty series, nil 52-week fields).
type Feeder interface {
	Snapshot(ctx context.Context, symbol string) (CurrentSnapshot, error)
	Daily(ctx context.Context, symbol string, start, end Day) ([]PriceObservation, error)
}

// SnapshotCache holds quotes for the lifetime of one invocation so a
// symbol appearing twice in a batch is fetched once. No process-wide
// singleton; the orchestrator owns the handle.
type SnapshotCache interface {
	Get(symbol string) (CurrentSnapshot, bool)
	Put(snap CurrentSnapshot) error
	Close() error
}
