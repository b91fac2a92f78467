// Package qrcache renders admission credentials into scannable PNGs behind a
// Redis cache. The cache is never the system of record: any cache failure
// degrades to a direct render, not an error.
package qrcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	qrgen "github.com/skip2/go-qrcode"

	"admission/internal/metrics"
	"admission/internal/token"
)

// ErrEncode indicates the QR engine could not encode the payload.
var ErrEncode = errors.New("failed to encode QR code")

// Store is the cache backend. renewTTL > 0 refreshes the entry's TTL on read.
type Store interface {
	Get(ctx context.Context, key string, renewTTL time.Duration) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// RedisStore backs the cache with Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get fetches a cached image, optionally renewing its TTL.
func (s *RedisStore) Get(ctx context.Context, key string, renewTTL time.Duration) ([]byte, bool, error) {
	var cmd *redis.StringCmd
	if renewTTL > 0 {
		cmd = s.client.GetEx(ctx, key, renewTTL)
	} else {
		cmd = s.client.Get(ctx, key)
	}
	val, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

// Set stores a rendered image with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, val, ttl).Err()
}

// Config tunes the cache.
type Config struct {
	RotationInterval time.Duration
	StaticTTL        time.Duration
	Size             int
	OpTimeout        time.Duration
}

// Cache maps credentials to rendered PNGs.
type Cache struct {
	store Store
	cfg   Config
	clock token.Clock
}

// New builds a cache over the given store (nil clock means time.Now).
func New(store Store, cfg Config, clock token.Clock) *Cache {
	if clock == nil {
		clock = time.Now
	}
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 200 * time.Millisecond
	}
	return &Cache{store: store, cfg: cfg, clock: clock}
}

// RenderRotating returns the PNG for a rotating subject token. The key is
// derived from (subject, current window) with TTL equal to the rotation
// interval, so entries fall out exactly when a fresh token would be required.
// Medium error correction: on-screen codes are ephemeral and well-lit.
func (c *Cache) RenderRotating(ctx context.Context, subject, tok string) ([]byte, error) {
	win := token.Window(c.clock(), c.cfg.RotationInterval)
	key := "qr:r:" + hashKey(subject+"|"+strconv.FormatInt(win, 10))
	return c.getOrRender(ctx, key, tok, qrgen.Medium, c.cfg.RotationInterval, 0)
}

// RenderStatic returns the PNG for a printed stall token. Keyed on the token
// itself; the TTL is renewed on every read so frequently scanned stalls stay
// hot. High error correction: printed codes get scratched and sun-faded.
func (c *Cache) RenderStatic(ctx context.Context, tok string) ([]byte, error) {
	key := "qr:s:" + hashKey(tok)
	return c.getOrRender(ctx, key, tok, qrgen.High, c.cfg.StaticTTL, c.cfg.StaticTTL)
}

// getOrRender is the cache-aside path. Concurrent callers for the same key
// may both render and store; the overwrite is idempotent and accepted.
func (c *Cache) getOrRender(ctx context.Context, key, payload string, level qrgen.RecoveryLevel, ttl, renewTTL time.Duration) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	val, ok, err := c.store.Get(opCtx, key, renewTTL)
	cancel()
	if err == nil && ok {
		metrics.QRCacheHitsTotal.Inc()
		return val, nil
	}
	metrics.QRCacheMissesTotal.Inc()

	img, rerr := render(payload, level, c.cfg.Size)
	if rerr != nil {
		return nil, rerr
	}

	opCtx, cancel = context.WithTimeout(ctx, c.cfg.OpTimeout)
	_ = c.store.Set(opCtx, key, img, ttl)
	cancel()
	return img, nil
}

func render(payload string, level qrgen.RecoveryLevel, size int) ([]byte, error) {
	png, err := qrgen.Encode(payload, level, size)
	if err != nil {
		return nil, errors.Join(ErrEncode, err)
	}
	metrics.QRRendersTotal.Inc()
	return png, nil
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
