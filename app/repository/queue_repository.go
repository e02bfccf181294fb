package repository

import (
	"context"
	"sort"
	"time"

	"github.com/curavoy/curavoy/internal/pkg/cache"
)

// queueRepository implements the QueueRepository interface on Redis. Admin
// tooling uses it to inspect and clean up the background job queue.
type queueRepository struct{}

// NewQueueRepository creates a new queue repository instance
func NewQueueRepository() QueueRepository {
	return &queueRepository{}
}

// GetAllKeys retrieves all keys from Redis cache
func (r *queueRepository) GetAllKeys() ([]string, error) {
	ctx := context.Background()

	keys, err := cache.GetClient().Keys(ctx, "*").Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// GetValue retrieves a value for a specific key from Redis
func (r *queueRepository) GetValue(key string) (string, error) {
	ctx := context.Background()
	return cache.GetClient().Get(ctx, key).Result()
}

// GetTTL retrieves the time-to-live for a specific key
func (r *queueRepository) GetTTL(key string) (time.Duration, error) {
	ctx := context.Background()

	ttl, err := cache.GetClient().TTL(ctx, key).Result()
	if err != nil {
		return -1, err
	}
	return ttl, nil
}

// DeleteKey deletes a specific key from Redis
func (r *queueRepository) DeleteKey(key string) (int64, error) {
	ctx := context.Background()
	return cache.GetClient().Del(ctx, key).Result()
}

// GetListLength returns the length of a Redis list
func (r *queueRepository) GetListLength(key string) (int64, error) {
	ctx := context.Background()
	return cache.GetClient().LLen(ctx, key).Result()
}

// FindKeysByPatterns returns all keys matching any of the given patterns
func (r *queueRepository) FindKeysByPatterns(patterns []string) ([]string, error) {
	ctx := context.Background()
	client := cache.GetClient()

	seen := make(map[string]struct{})
	var result []string
	for _, pattern := range patterns {
		keys, err := client.Keys(ctx, pattern).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			result = append(result, k)
		}
	}
	sort.Strings(result)
	return result, nil
}

// DeleteKeys deletes multiple keys and returns the number removed
func (r *queueRepository) DeleteKeys(keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx := context.Background()
	return cache.GetClient().Del(ctx, keys...).Result()
}
