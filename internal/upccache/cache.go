// Package upccache holds generated pack UPC sets in Redis for a bounded
// retry window.
//
// The cache exists so that pack deactivation can emit a Delete price-book
// document containing the exact codes that were exported at activation,
// without regenerating or re-reading the catalog. Failures here are never
// fatal to callers: every operation reports a boolean outcome and logs the
// underlying error server-side.
package upccache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultWindow is the retry window a cached entry stays useful for.
// Expiry is advisory metadata for consumers; Redis is additionally given
// the same duration as a TTL hint.
const DefaultWindow = time.Hour

const keyPrefix = "lottery:pack:upcs:"

// Entry is the cached UPC set for one pack.
type Entry struct {
	PackID      string    `json:"packId"`
	StoreID     string    `json:"storeId"`
	GameCode    string    `json:"gameCode"`
	GameName    string    `json:"gameName"`
	PackNumber  string    `json:"packNumber"`
	TicketPrice float64   `json:"ticketPrice"`
	UPCs        []string  `json:"upcs"`
	GeneratedAt time.Time `json:"generatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// kv is the slice of Redis this package uses. *redis.Client satisfies it
// through redisKV; tests substitute an in-memory fake.
type kv interface {
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	get(ctx context.Context, key string) ([]byte, error) // nil, nil when absent
	del(ctx context.Context, key string) error
}

type redisKV struct {
	client *redis.Client
}

func (r redisKV) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r redisKV) get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r redisKV) del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Cache is a write-through ephemeral cache keyed by pack id.
type Cache struct {
	kv     kv
	window time.Duration
	now    func() time.Time
}

// New creates a cache backed by the given Redis client. window <= 0
// selects DefaultWindow.
func New(client *redis.Client, window time.Duration) *Cache {
	return newCache(redisKV{client: client}, window)
}

func newCache(store kv, window time.Duration) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache{kv: store, window: window, now: time.Now}
}

// Key returns the Redis key for a pack id.
func Key(packID string) string {
	return keyPrefix + packID
}

// Store writes the entry, stamping GeneratedAt and ExpiresAt. Returns true
// iff the write succeeded; failure is logged and non-fatal to callers.
func (c *Cache) Store(ctx context.Context, e Entry) bool {
	now := c.now()
	e.GeneratedAt = now
	e.ExpiresAt = now.Add(c.window)

	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("upccache: marshal entry", "pack_id", e.PackID, "error", err)
		return false
	}

	if err := c.kv.set(ctx, Key(e.PackID), data, c.window); err != nil {
		slog.Error("upccache: store entry", "pack_id", e.PackID, "error", err)
		return false
	}
	return true
}

// Get returns the cached entry for a pack, or ok=false when the entry is
// absent, expired, unreadable, or the backing store is unreachable.
func (c *Cache) Get(ctx context.Context, packID string) (*Entry, bool) {
	data, err := c.kv.get(ctx, Key(packID))
	if err != nil {
		slog.Error("upccache: get entry", "pack_id", packID, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		slog.Error("upccache: unmarshal entry", "pack_id", packID, "error", err)
		return nil, false
	}

	// The store does not enforce eviction; treat a stale entry as absent.
	if !e.ExpiresAt.IsZero() && c.now().After(e.ExpiresAt) {
		return nil, false
	}
	return &e, true
}

// Delete removes the cached entry. Returns true iff the delete succeeded.
func (c *Cache) Delete(ctx context.Context, packID string) bool {
	if err := c.kv.del(ctx, Key(packID)); err != nil {
		slog.Error("upccache: delete entry", "pack_id", packID, "error", err)
		return false
	}
	return true
}
