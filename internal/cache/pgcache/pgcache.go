// Package pgcache backs the result cache with a postgres table so cached
// swap results survive process restarts.
package pgcache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/wb-go/wbf/dbpg"
)

type PgCache struct {
	DB  *dbpg.DB
	ttl time.Duration
	now func() time.Time
}

func New(db *dbpg.DB, ttl time.Duration) *PgCache {
	return &PgCache{DB: db, ttl: ttl, now: time.Now}
}

func (c *PgCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `SELECT payload, created_at
	FROM meme_cache
	WHERE cache_key = $1`

	var payload []byte
	var created time.Time

	err := c.DB.QueryRowContext(ctx, query, key).Scan(&payload, &created)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, false, nil
		default:
			return nil, false, err
		}
	}

	// expired rows stay in place, the next Put overwrites them
	if c.now().Sub(created) >= c.ttl {
		return nil, false, nil
	}

	return payload, true, nil
}

func (c *PgCache) Put(ctx context.Context, key string, payload []byte) error {
	query := `INSERT INTO meme_cache (cache_key, payload, created_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`

	return c.DB.QueryRowContext(ctx, query, key, payload, c.now().UTC()).Err()
}

func (c *PgCache) Invalidate(ctx context.Context, key string) error {
	query := `DELETE FROM meme_cache
	WHERE cache_key = $1`

	return c.DB.QueryRowContext(ctx, query, key).Err()
}

func (c *PgCache) InvalidateAll(ctx context.Context) error {
	query := `DELETE FROM meme_cache`

	return c.DB.QueryRowContext(ctx, query).Err()
}
