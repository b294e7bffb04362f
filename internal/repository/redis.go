package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wxsync/internal/config"
	"wxsync/internal/database"

	"github.com/redis/go-redis/v9"
)

type RedisTokenCache struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

func tokenKey(operatorID, corpID string) string {
	return fmt.Sprintf("wxwork:token:%s:%s", operatorID, corpID)
}

// GetToken returns the cached token, or database.ErrNotFound when the key is
// missing or expired.
func (r *RedisTokenCache) GetToken(ctx context.Context, operatorID, corpID string) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, tokenKey(operatorID, corpID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", database.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token from redis: %w", err)
	}
	return val, nil
}

func (r *RedisTokenCache) SetToken(ctx context.Context, operatorID, corpID, token string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, tokenKey(operatorID, corpID), token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set token in redis: %w", err)
	}
	return nil
}

func (r *RedisTokenCache) DeleteToken(ctx context.Context, operatorID, corpID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, tokenKey(operatorID, corpID)).Err(); err != nil {
		return fmt.Errorf("failed to delete token from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
