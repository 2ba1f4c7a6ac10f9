package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(
		NewRedisClient,
		newBucket,
		newLocker,
		NewGenerationLimiter,
	),
)

func newBucket(client redis.UniversalClient) *TokenBucket {
	return NewTokenBucket(client)
}

func newLocker(client redis.UniversalClient) *Locker {
	return NewLocker(client)
}
