package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long cached vectors live in Redis.
const DefaultTTL = 30 * 24 * time.Hour

// RedisBackend stores vectors in Redis as little-endian float32 blobs.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig holds configuration for the Redis cache backend.
type RedisConfig struct {
	// Addr is the Redis host:port.
	Addr string

	// Password authenticates against Redis. Empty means no auth.
	Password string

	// DB selects the Redis logical database.
	DB int

	// TTL overrides DefaultTTL when positive.
	TTL time.Duration
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisBackend{client: client, ttl: ttl}, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]float32, bool, error) {
	blob, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	if len(blob)%4 != 0 {
		return nil, false, fmt.Errorf("corrupt cached vector: %d bytes", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, vec []float32) error {
	blob := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(f))
	}

	if err := b.client.Set(ctx, key, blob, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

var _ Backend = (*RedisBackend)(nil)
