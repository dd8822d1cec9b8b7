package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RedisServiceInterface is the slice of redis the relay needs: an atomic
// fixed-window counter for the rate limiter.
type RedisServiceInterface interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RedisService struct {
	client *redis.Client
}

func NewRedisService(config *RedisConfig) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisService{
		client: client,
	}, nil
}

// IncrWindow atomically increments key and, when this call created it,
// arms the window expiry. Returns the counter value after the increment.
// Concurrent in-flight requests never lose updates: INCR is atomic and the
// expiry is set only by the request that observed count == 1.
func (r *RedisService) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to bump window counter: %w", err)
	}
	return incr.Val(), nil
}

// Close releases the underlying connection pool.
func (r *RedisService) Close() error {
	return r.client.Close()
}
