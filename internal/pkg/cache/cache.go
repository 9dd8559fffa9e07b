package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/stakeaware/accessgate/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// Enabled reports whether a cache server is configured. Everything the cache
// backs (gateway verify responses, rate limiter state) degrades gracefully
// without it.
func Enabled() bool {
	return env.GetEnv("CACHE_ENABLED", "false") == "true"
}

// SetupCache initializes the connection to the Redis cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0, // use default DB
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Redis cache: %v", err)
	} else {
		log.Printf("Successfully connected to Redis cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// VerificationCache adapts the shared Redis client to the paystack package's
// cache interface.
type VerificationCache struct{}

func (VerificationCache) Get(key string) (string, error) {
	return Get(key)
}

func (VerificationCache) Set(key string, value string, ttl time.Duration) error {
	return Set(key, value, ttl)
}

// LimiterStorage returns a Redis-backed fiber storage for the rate limiter,
// or nil when no cache is configured (the limiter then falls back to its
// in-memory default).
func LimiterStorage() fiber.Storage {
	if !Enabled() {
		return nil
	}

	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	return redisstorage.New(redisstorage.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     port,
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		Database: 1,
	})
}
