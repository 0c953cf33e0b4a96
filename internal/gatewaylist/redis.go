// internal/gatewaylist/redis.go
// Redis-backed provider for deployments where gateway membership changes
// at runtime (scale events, rolling upgrades). Adapted from the gateway's
// Redis retention store (internal/gateway/retention/redis.go): same
// lenient error handling (log and return what's available rather than
// fail the caller), same go-redis/v9 client.
package gatewaylist

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/hiveswarm/hive/internal/logging"
)

// RedisProvider resolves the gateway list from a Redis set, so a fleet of
// gateways can register/deregister themselves without a config push.
type RedisProvider struct {
	cli *redis.Client
	key string
}

// NewRedis returns a Provider backed by cli, reading members of the Redis
// set named key.
func NewRedis(cli *redis.Client, key string) *RedisProvider {
	return &RedisProvider{cli: cli, key: key}
}

// Gateways performs a SMEMBERS read against key. A read error is logged
// and returns an empty list rather than failing, matching the retention
// store's lenient-read convention; callers needing a hard failure should
// check for an empty result themselves.
func (r *RedisProvider) Gateways(ctx context.Context) ([]string, error) {
	members, err := r.cli.SMembers(ctx, r.key).Result()
	if err != nil {
		logging.Sugar().Warnw("gatewaylist: redis smembers failed", "key", r.key, "error", err)
		return nil, nil
	}
	return members, nil
}
