package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound возвращается, когда ключ отсутствует в кэше.
var ErrNotFound = errors.New("cache: ключ не найден")

// RedisCache реализует domain.Cache через Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Ping проверяет доступность Redis.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Set задаёт значение с TTL. Нулевой TTL означает ключ без срока жизни.
func (c *RedisCache) Set(key string, value []byte, ttl time.Duration) error {
	return c.client.Set(context.Background(), key, value, ttl).Err()
}

// Get возвращает значение или ErrNotFound.
func (c *RedisCache) Get(key string) ([]byte, error) {
	data, err := c.client.Get(context.Background(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

// Delete удаляет ключ.
func (c *RedisCache) Delete(key string) error {
	return c.client.Del(context.Background(), key).Err()
}

// AddToSet добавляет элементы в множество.
func (c *RedisCache) AddToSet(set string, members ...string) error {
	args := make([]interface{}, 0, len(members))
	for _, m := range members {
		args = append(args, m)
	}
	return c.client.SAdd(context.Background(), set, args...).Err()
}

// SetMembers возвращает все элементы множества.
func (c *RedisCache) SetMembers(set string) ([]string, error) {
	return c.client.SMembers(context.Background(), set).Result()
}

// RemoveFromSet убирает элементы из множества.
func (c *RedisCache) RemoveFromSet(set string, members ...string) error {
	args := make([]interface{}, 0, len(members))
	for _, m := range members {
		args = append(args, m)
	}
	return c.client.SRem(context.Background(), set, args...).Err()
}
