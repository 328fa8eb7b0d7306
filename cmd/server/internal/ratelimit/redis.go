package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "huntserver-ratelimit-"

// Fixed one minute window counter per identifier, shared by every server replica through redis.
type RedisLimiterStore struct {
	db         *redis.Client
	limiterKey string
	perMinute  int64
	failOpen   bool
}

type RedisLimiterConfig struct {
	RedisClient *redis.Client
	LimiterKey  string
	PerMinute   int64
	FailOpen    bool
}

func (store *RedisLimiterStore) key(identifier string) string {
	return keyPrefix + store.limiterKey + "-" + identifier
}

func (store *RedisLimiterStore) Allow(identifier string) (bool, error) {
	// This method might let N-1 extra requests in due to race condition where N is the possible number of concurrent writers
	// This is a smaller concern than the possibility that we will lose a distributed lock

	ctx := context.Background()

	key := store.key(identifier)

	reqsLeftStr, err := store.db.Get(ctx, key).Result()
	switch {
	case err == nil:
		reqsLeft, err := strconv.Atoi(reqsLeftStr)
		if err != nil {
			return store.failOpen, err
		}

		if reqsLeft <= 0 {
			return false, nil
		}
	case errors.Is(err, redis.Nil):
		if err := store.db.Set(ctx, key, store.perMinute, 60*time.Second).Err(); err != nil {
			return store.failOpen, err
		}
	default:
		return store.failOpen, err
	}

	if err := store.db.Decr(ctx, key).Err(); err != nil {
		return store.failOpen, err
	}

	return true, nil
}

func NewRedisLimitStore(config RedisLimiterConfig) (store *RedisLimiterStore) {
	return &RedisLimiterStore{
		perMinute:  config.PerMinute,
		db:         config.RedisClient,
		limiterKey: config.LimiterKey,
		failOpen:   config.FailOpen,
	}
}
