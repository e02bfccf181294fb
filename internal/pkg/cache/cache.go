package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/curavoy/curavoy/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

var client *redis.Client

// SetupCache connects the shared Redis client. Redis backs the job queue,
// the rate limiter storage and the daily stat counters; a failed ping is
// logged but not fatal so the API can serve reads while Redis recovers.
func SetupCache() {
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warnf("[Cache] redis not reachable at startup: %v", err)
		return
	}
	log.Info("[Cache] redis connection established")
}

// GetClient returns the shared Redis client, connecting lazily if needed.
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}
