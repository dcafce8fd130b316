package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is prepended to every secret id
const DefaultKeyPrefix = "provisioner:secret:"

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string

	// Password is the Redis password (empty if no auth)
	Password string

	// DB is the Redis database number
	DB int

	// KeyPrefix is the prefix for all secret keys
	KeyPrefix string
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig(addr string) *RedisConfig {
	return &RedisConfig{
		Addr:      addr,
		KeyPrefix: DefaultKeyPrefix,
	}
}

// RedisStore is a Redis-backed secret store
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis secret store
func NewRedisStore(config *RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	return NewRedisStoreFromClient(client, config.KeyPrefix)
}

// NewRedisStoreFromClient creates a new Redis store from an existing client
func NewRedisStoreFromClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: keyPrefix,
	}
}

// GetSecret implements Store
func (s *RedisStore) GetSecret(ctx context.Context, id string) (string, error) {
	value, err := s.client.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get error: %w", err)
	}
	return value, nil
}

// PutSecret stores a secret without expiry
func (s *RedisStore) PutSecret(ctx context.Context, id, value string) error {
	if err := s.client.Set(ctx, s.key(id), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping error: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}
