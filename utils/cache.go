// File: utils/cache.go
package utils

import (
	"context"
	"log"
	"time"

	"gigchat/config"

	"github.com/go-redis/redis/v8"
)

var (
	// CacheClient is the generic cache client.
	CacheClient *redis.Client
	// EventsClient carries cross-instance workflow events over Redis pub/sub.
	EventsClient *redis.Client
)

func newRedisClient(db int, name string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (%s): %v", name, err)
	}
	return client
}

// InitCache initializes the generic Redis cache client.
func InitCache() {
	CacheClient = newRedisClient(config.AppConfig.RedisCacheDB, "Cache")
}

// GetCacheClient returns the generic cache client.
func GetCacheClient() *redis.Client {
	if CacheClient == nil {
		InitCache()
	}
	return CacheClient
}

// InitEvents initializes the Redis client used for event fan-out.
func InitEvents() {
	EventsClient = newRedisClient(config.AppConfig.RedisEventsDB, "Events")
}

// GetEventsClient returns the Redis client used for event fan-out.
func GetEventsClient() *redis.Client {
	if EventsClient == nil {
		InitEvents()
	}
	return EventsClient
}
