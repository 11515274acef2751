// Package rendercache memoizes rendered PNG bytes keyed by the image name
// and the exact price values stamped onto it.
package rendercache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joshbuysell/pt-bb-beds/internal/backend/pricebook"
)

// Cache stores rendered images. Implementations treat failures as misses:
// rendering must keep working without the cache, only slower.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte)
	Close() error
}

// Key builds the memoization key for one rendered image. The filename and
// the three price fields are hashed NUL-separated so adjacent fields
// cannot collide by concatenation; images without a price row hash a miss
// marker instead, which lets their pass-through encoding be cached too.
func Key(name string, row pricebook.Row, priced bool) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	if priced {
		h.Write([]byte(row.Crib))
		h.Write([]byte{0})
		h.Write([]byte(row.Pendulum))
		h.Write([]byte{0})
		h.Write([]byte(row.Drawer))
	} else {
		h.Write([]byte("unpriced"))
	}
	return "render:" + hex.EncodeToString(h.Sum(nil))
}

// Redis keeps rendered images in a shared Redis instance with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr and verifies the connection with a ping, so a
// dead cache is discovered at startup rather than on the first render.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("render cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

func (c *Redis) Set(ctx context.Context, key string, data []byte) {
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("render cache write failed", "key", key, "size_bytes", len(data), "error", err)
	}
}

func (c *Redis) Close() error {
	return c.client.Close()
}

// Noop serves when Redis is not configured or unreachable.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (Noop) Set(context.Context, string, []byte) {}

func (Noop) Close() error { return nil }
