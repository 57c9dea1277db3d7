package render

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by a Store that holds no entry for a key.
var ErrCacheMiss = errors.New("render: cache miss")

// Store is the byte cache used by Cached.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// RedisStore keeps rendered PDFs in Redis under a key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a Store backed by client. Keys are stored as
// "pdf:<hash>".
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "pdf:"}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, data, ttl).Err()
}

// CachedRenderer serves repeated renders of identical input from a Store.
type CachedRenderer struct {
	next  Renderer
	store Store
	ttl   time.Duration
	log   *zap.Logger
}

// Cached wraps next with a content-addressed cache. Cache failures are logged
// and fall through to rendering; they never fail a render.
func Cached(next Renderer, store Store, ttl time.Duration, log *zap.Logger) *CachedRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedRenderer{next: next, store: store, ttl: ttl, log: log}
}

// Render implements Renderer.
func (c *CachedRenderer) Render(ctx context.Context, html string, opts Options) ([]byte, error) {
	key := Key(html, opts)

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil && len(data) > 0:
		c.log.Debug("render cache hit", zap.String("key", key))
		return data, nil
	case err != nil && !errors.Is(err, ErrCacheMiss):
		c.log.Warn("render cache read failed", zap.String("key", key), zap.Error(err))
	}

	data, err = c.next.Render(ctx, html, opts)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.log.Warn("render cache write failed", zap.String("key", key), zap.Error(err))
	}
	return data, nil
}
