// Package storage persists the per-symbol OHLC time series.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/trailguard/trailguard/core"
)

// SQLSeriesStorage implements core.SeriesStorage on a SQL database via GORM.
type SQLSeriesStorage struct {
	db *gorm.DB
}

// Config holds connection-pool settings for SQL databases.
type Config struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns pool settings suitable for a short-lived CLI run.
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:    2,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Hour,
	}
}

// NewFromSQLite opens (creating if needed) a SQLite-backed series store and
// ensures the schema. Parent directories are created for file paths.
func NewFromSQLite(dbPath string, config Config, opts ...gorm.Option) (*SQLSeriesStorage, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data directory: %v", core.ErrPersistence, err)
		}
	}
	return newFromSQL(sqlite.Open(dbPath), config, opts...)
}

func newFromSQL(dialect gorm.Dialector, config Config, opts ...gorm.Option) (*SQLSeriesStorage, error) {
	if len(opts) == 0 {
		opts = []gorm.Option{&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}}
	}

	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", core.ErrPersistence, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: get database instance: %v", core.ErrPersistence, err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	// Additive schema evolution: AutoMigrate creates the table on first use
	// and adds any columns introduced since the database was created. It
	// never drops columns or rows, and it is idempotent, so running it on
	// every open is safe.
	if err := db.AutoMigrate(&core.PriceObservation{}); err != nil {
		return nil, fmt.Errorf("%w: migrate schema: %v", core.ErrPersistence, err)
	}

	return &SQLSeriesStorage{db: db}, nil
}

// UpsertObservation inserts or fully replaces the row for the observation's
// (symbol, date) key.
func (s *SQLSeriesStorage) UpsertObservation(ctx context.Context, obs core.PriceObservation) error {
	return s.UpsertBatch(ctx, []core.PriceObservation{obs})
}

// UpsertBatch applies last-write-wins upserts for a slice of observations
// in one transaction, so a mid-write failure never leaves a partial batch.
func (s *SQLSeriesStorage) UpsertBatch(ctx context.Context, obs []core.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	rows := lo.Map(obs, func(o core.PriceObservation, _ int) core.PriceObservation {
		o.Symbol = normalizeSymbol(o.Symbol)
		return o
	})

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// ON CONFLICT ... DO UPDATE over every column: a replace, not a
		// field merge, matching upstream data corrections.
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
			UpdateAll: true,
		}).Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %d observations: %v", core.ErrPersistence, len(obs), err)
	}
	return nil
}

// LatestDate returns the most recent stored date for the symbol.
func (s *SQLSeriesStorage) LatestDate(ctx context.Context, symbol string) (core.Day, bool, error) {
	var raw sql.NullString
	err := s.db.WithContext(ctx).
		Model(&core.PriceObservation{}).
		Where("symbol = ?", normalizeSymbol(symbol)).
		Select("MAX(date)").
		Row().Scan(&raw)
	if err != nil {
		return core.Day{}, false, fmt.Errorf("%w: latest date for %s: %v", core.ErrPersistence, symbol, err)
	}
	if !raw.Valid {
		return core.Day{}, false, nil
	}

	day, err := core.ParseDay(raw.String)
	if err != nil {
		return core.Day{}, false, fmt.Errorf("%w: latest date for %s: %v", core.ErrPersistence, symbol, err)
	}
	return day, true, nil
}

// HighWaterMark returns MAX(high) for the symbol, optionally restricted to
// dates on or after since. A symbol (or range) with no rows is not an
// error: ok is false and err is nil.
func (s *SQLSeriesStorage) HighWaterMark(ctx context.Context, symbol string, since *core.Day) (float64, bool, error) {
	query := s.db.WithContext(ctx).
		Model(&core.PriceObservation{}).
		Where("symbol = ?", normalizeSymbol(symbol))
	if since != nil {
		query = query.Where("date >= ?", since.String())
	}

	var raw sql.NullFloat64
	if err := query.Select("MAX(high)").Row().Scan(&raw); err != nil {
		return 0, false, fmt.Errorf("%w: high-water mark for %s: %v", core.ErrPersistence, symbol, err)
	}
	if !raw.Valid {
		return 0, false, nil
	}
	return raw.Float64, true, nil
}

// LatestWeek52High returns the 52-week high from the most recent row that
// carries one. Deliberately not MAX(week_52_high): the 52-week window
// rolls, so older rows can hold peaks that no longer count.
func (s *SQLSeriesStorage) LatestWeek52High(ctx context.Context, symbol string) (float64, bool, error) {
	var obs core.PriceObservation
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND week_52_high IS NOT NULL", normalizeSymbol(symbol)).
		Order("date DESC").
		First(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: latest 52-week high for %s: %v", core.ErrPersistence, symbol, err)
	}
	return *obs.Week52High, true, nil
}

// RecentHistory returns the last lookback rows for the symbol, ascending by
// date. Fewer rows than requested is not an error; length checks belong to
// the computation that consumes the series.
func (s *SQLSeriesStorage) RecentHistory(ctx context.Context, symbol string, lookback int) ([]core.PriceObservation, error) {
	var rows []core.PriceObservation
	err := s.db.WithContext(ctx).
		Where("symbol = ?", normalizeSymbol(symbol)).
		Order("date DESC").
		Limit(lookback).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: recent history for %s: %v", core.ErrPersistence, symbol, err)
	}
	return lo.Reverse(rows), nil
}

// Close releases the underlying connection pool.
func (s *SQLSeriesStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: get database instance: %v", core.ErrPersistence, err)
	}
	return sqlDB.Close()
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
