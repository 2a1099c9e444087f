// Package cache provides the TTL result-cache contract and a factory that
// picks a durable backing with an in-memory degraded fallback.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"github.com/lazylama/memeswap/internal/cache/memcache"
	"github.com/lazylama/memeswap/internal/cache/pgcache"
	"github.com/lazylama/memeswap/internal/cache/rediscache"
)

// Cache stores expensive results keyed by content identity. An entry is
// valid only while now - created < ttl; expired entries are treated as
// absent and overwritten lazily. Implementations are safe for concurrent
// use with last-writer-wins semantics.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte) error
	Invalidate(ctx context.Context, key string) error
	InvalidateAll(ctx context.Context) error
}

// NewMemeCache returns the durable cache for generated swap results,
// falling back to in-memory when the DB connection is absent.
func NewMemeCache(db *dbpg.DB, ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if db == nil {
		zlog.Logger.Warn().Msg("No DB connection, meme cache degraded to in-memory")
		return memcache.New(ttl)
	}
	return pgcache.New(db, ttl)
}

// NewTrendsCache returns the redis-backed cache for trending listings,
// falling back to in-memory when redis is unreachable.
func NewTrendsCache(addr, password string, ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(context.Background()).Err(); err != nil {
		zlog.Logger.Warn().Err(err).Str("addr", addr).
			Msg("Redis not available, trends cache degraded to in-memory")
		return memcache.New(ttl)
	}

	return rediscache.New(client, "trends:", ttl)
}

// KeyForURL derives the canonical cache key for fetched content: sha256
// of the normalized source URL (query/fragment stripped, host and scheme
// lowercased).
func KeyForURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return digest([]byte(raw))
	}

	u.Fragment = ""
	u.RawQuery = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	return digest([]byte(u.String()))
}

// KeyForContent derives the cache key for uploaded content: sha256 of the
// original bytes.
func KeyForContent(data []byte) string {
	return digest(data)
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
