package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	kindPatient  = "patient"
	kindProvider = "provider"
)

// Cache maps an identifier type name (patient identifier type or provider
// attribute type) to its internal id. Type ids never change once created,
// so entries need no invalidation; matching entities are always counted in
// the store.
type Cache interface {
	Get(ctx context.Context, kind, typeName string) (uuid.UUID, bool, error)
	Set(ctx context.Context, kind, typeName string, id uuid.UUID) error
}

// NoopCache never hits.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (NoopCache) Set(context.Context, string, string, uuid.UUID) error { return nil }

// RedisCache stores type ids under shr:identity:type:<kind>:<escaped name>.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// cacheKey escapes each part so names containing ':' cannot collide.
func cacheKey(kind, typeName string) string {
	return "shr:identity:type:" + url.QueryEscape(kind) + ":" + url.QueryEscape(typeName)
}

func (c *RedisCache) Get(ctx context.Context, kind, typeName string) (uuid.UUID, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(kind, typeName)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("identity cache get: %w", err)
	}
	parsed, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("identity cache value %q: %w", val, err)
	}
	return parsed, true, nil
}

func (c *RedisCache) Set(ctx context.Context, kind, typeName string, id uuid.UUID) error {
	if err := c.client.Set(ctx, cacheKey(kind, typeName), id.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("identity cache set: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
