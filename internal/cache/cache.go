package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tiered layers an in-process LRU in front of an optional Redis client.
// A nil Redis client makes Tiered behave as a plain LRU, so callers
// never branch on whether Redis is configured.
type Tiered struct {
	local *LRU
	redis *redis.Client
	ttl   time.Duration
	keyFn func(string) string
}

// NewTiered builds a Tiered cache. keyPrefix namespaces Redis keys so
// multiple caches (Plex metadata, AniList lists) can share one Redis
// instance.
func NewTiered(local *LRU, redisClient *redis.Client, keyPrefix string, ttl time.Duration) *Tiered {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tiered{
		local: local,
		redis: redisClient,
		ttl:   ttl,
		keyFn: func(k string) string { return keyPrefix + ":" + k },
	}
}

// Get looks in the local LRU first, then Redis. A Redis hit populates
// the local tier before returning, out must be a pointer for
// json.Unmarshal.
func (t *Tiered) Get(ctx context.Context, key string, out any) (bool, error) {
	if v, ok := t.local.Get(key); ok {
		data := v.([]byte)
		return true, json.Unmarshal(data, out)
	}
	if t.redis == nil {
		return false, nil
	}

	raw, err := t.redis.Get(ctx, t.keyFn(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	t.local.Set(key, raw)
	return true, json.Unmarshal(raw, out)
}

// Set writes value to both tiers. Marshal failures are returned;
// Redis write failures are swallowed so a flaky cache tier never fails
// the caller's sync.
func (t *Tiered) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	t.local.Set(key, raw)
	if t.redis != nil {
		t.redis.Set(ctx, t.keyFn(key), raw, t.ttl)
	}
	return nil
}

// Invalidate removes key from both tiers.
func (t *Tiered) Invalidate(ctx context.Context, key string) {
	t.local.Delete(key)
	if t.redis != nil {
		t.redis.Del(ctx, t.keyFn(key))
	}
}

// NewRedisClient dials Redis with short timeouts and pings once so a
// misconfigured URL fails fast at startup rather than on first sync.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
