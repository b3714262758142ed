// Package sqlite implements the shared result cache and counter store
// backed by SQLite. Entries are immutable once written and expire by TTL;
// counters mutate through a single atomic UPSERT so rate-limit buckets can
// increment-and-check without a second round trip.
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atelier-ai/atelier/pkg/models"
)

// Logical namespaces. Each carries its own TTL so classification results,
// prompt enhancements and parameter bags age out independently.
const (
	NamespaceClassification = "classification"
	NamespaceEnhancement    = "enhancement"
	NamespaceParams         = "params"
	NamespaceStats          = "stats"
	NamespaceSessions       = "sessions"
	NamespaceLimits         = "limits"
)

// Cache is a namespaced key/value store with per-entry TTL and atomic
// counters. Any backing-store failure degrades to a miss: Get never returns
// an error and callers always get a usable answer.
type Cache struct {
	db     *sql.DB
	hits   atomic.Int64
	misses atomic.Int64
}

// Timestamps and TTLs are unix milliseconds so expiry arithmetic stays in
// plain integer SQL.
const createTables = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	ttl_ms INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);
CREATE TABLE IF NOT EXISTS cache_counters (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	ttl_ms INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);
`

// New opens the cache database and creates the schema.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db}, nil
}

// Key computes a SHA-256 content hash over the given parts. Semantically
// identical inputs collide by construction.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get retrieves a cached value. Returns false if absent, expired, or the
// store is unavailable.
func (c *Cache) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	var value []byte
	var createdMs, ttlMs int64

	err := c.db.QueryRowContext(ctx,
		`SELECT value, created_at, ttl_ms FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value, &createdMs, &ttlMs)

	if err != nil {
		c.misses.Add(1)
		return nil, false
	}

	if time.Now().UnixMilli()-createdMs > ttlMs {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return value, true
}

// Set stores a value with the given TTL, replacing any previous entry.
func (c *Cache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (namespace, key, value, created_at, ttl_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		namespace, key, value, time.Now().UnixMilli(), ttl.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Increment atomically adds amount to a counter and returns the new value.
// An expired counter restarts from amount with a fresh window. The whole
// operation is one UPSERT so concurrent callers never lose updates.
func (c *Cache) Increment(ctx context.Context, namespace, key string, amount int64, ttl time.Duration) (int64, error) {
	var value int64
	err := c.db.QueryRowContext(ctx,
		`INSERT INTO cache_counters (namespace, key, value, created_at, ttl_ms)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET
			value = CASE WHEN excluded.created_at - created_at > ttl_ms
				THEN excluded.value ELSE value + excluded.value END,
			created_at = CASE WHEN excluded.created_at - created_at > ttl_ms
				THEN excluded.created_at ELSE created_at END,
			ttl_ms = excluded.ttl_ms
		 RETURNING value`,
		namespace, key, amount, time.Now().UnixMilli(), ttl.Milliseconds(),
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("cache increment: %w", err)
	}
	return value, nil
}

// GetOrCompute returns the cached value, computing and storing it on a miss.
// The first writer wins: concurrent computers may both run fn, but only one
// write is durable and the durable value is what everyone gets back.
// The bool reports whether the value came from cache.
func (c *Cache) GetOrCompute(ctx context.Context, namespace, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, bool, error) {
	if value, ok := c.Get(ctx, namespace, key); ok {
		return value, true, nil
	}

	computed, err := fn()
	if err != nil {
		return nil, false, err
	}

	_, insErr := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_entries (namespace, key, value, created_at, ttl_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		namespace, key, computed, time.Now().UnixMilli(), ttl.Milliseconds(),
	)
	if insErr != nil {
		// Store outage: hand back the computed value, nothing is cached.
		return computed, false, nil
	}

	if durable, ok := c.Get(ctx, namespace, key); ok {
		return durable, false, nil
	}
	return computed, false, nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var entries, counters int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&entries); err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_counters`).Scan(&counters); err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries:  entries,
		Counters: counters,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}, nil
}

// Clear removes entries and counters. If expiredOnly is true, only expired
// rows are removed.
func (c *Cache) Clear(expiredOnly bool) error {
	tables := []string{"cache_entries", "cache_counters"}
	for _, table := range tables {
		query := `DELETE FROM ` + table
		var args []any
		if expiredOnly {
			query += ` WHERE ? - created_at > ttl_ms`
			args = append(args, time.Now().UnixMilli())
		}
		if _, err := c.db.Exec(query, args...); err != nil {
			return fmt.Errorf("cache clear %s: %w", strings.TrimPrefix(table, "cache_"), err)
		}
	}
	return nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
