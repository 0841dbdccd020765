package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

const redisKeyPrefix = "tenant:slug:"

// Redis is a TenantCache shared across API instances, so one instance's
// suspension eviction is visible to the whole fleet.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client. ttl <= 0 stores entries without expiry.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if client == nil {
		panic("redis cache requires a client")
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, slug string) (tenant.Info, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+slug).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return tenant.Info{}, ErrMiss
		}
		return tenant.Info{}, fmt.Errorf("redis get %q: %w", slug, err)
	}

	var info tenant.Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return tenant.Info{}, fmt.Errorf("decode cached tenant %q: %w", slug, err)
	}
	return info, nil
}

func (r *Redis) Put(ctx context.Context, slug string, info tenant.Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode tenant %q: %w", slug, err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+slug, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", slug, err)
	}
	return nil
}

func (r *Redis) Forget(ctx context.Context, slug string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+slug).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", slug, err)
	}
	return nil
}
