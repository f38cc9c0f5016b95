package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/trailguard/trailguard/core"
)

// SnapshotQuoteCache implements core.SnapshotCache on an in-memory BuntDB
// instance. It exists so a symbol requested twice within one invocation is
// quoted once; the handle is created and closed by the caller, never shared
// across runs.
type SnapshotQuoteCache struct {
	db  *buntdb.DB
	ttl time.Duration
}

// BuntConfig holds options for the snapshot cache.
type BuntConfig struct {
	// TTL expires cached quotes after this duration. Zero disables expiry,
	// which is fine for a cache that lives for one invocation anyway.
	TTL time.Duration
}

// NewSnapshotCache creates an in-memory snapshot cache.
func NewSnapshotCache(config BuntConfig) (*SnapshotQuoteCache, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open snapshot cache: %w", err)
	}
	return &SnapshotQuoteCache{db: db, ttl: config.TTL}, nil
}

// Put stores a snapshot under its symbol, replacing any previous quote.
func (c *SnapshotQuoteCache) Put(snap core.CurrentSnapshot) error {
	content, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s: %w", snap.Symbol, err)
	}

	return c.db.Update(func(tx *buntdb.Tx) error {
		opts := c.setOptions()
		_, _, err := tx.Set(normalizeSymbol(snap.Symbol), string(content), opts)
		return err
	})
}

// Get returns the cached snapshot for the symbol, if any.
func (c *SnapshotQuoteCache) Get(symbol string) (core.CurrentSnapshot, bool) {
	var snap core.CurrentSnapshot
	err := c.db.View(func(tx *buntdb.Tx) error {
		content, err := tx.Get(normalizeSymbol(symbol))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(content), &snap)
	})
	if err != nil {
		return core.CurrentSnapshot{}, false
	}
	return snap, true
}

// Close releases the cache.
func (c *SnapshotQuoteCache) Close() error {
	return c.db.Close()
}

func (c *SnapshotQuoteCache) setOptions() *buntdb.SetOptions {
	if c.ttl <= 0 {
		return nil
	}
	return &buntdb.SetOptions{Expires: true, TTL: c.ttl}
}
