package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kokopos/backend/internal/domain"
)

const barcodeKeyPrefix = "barcode:"

type RedisBarcodeCache struct {
	client *redis.Client
}

func NewRedisBarcodeCache(addr string, password string, db int) *RedisBarcodeCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBarcodeCache{client: client}
}

func (c *RedisBarcodeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBarcodeCache) Close() error {
	return c.client.Close()
}

func (c *RedisBarcodeCache) Get(ctx context.Context, code string) (*domain.BarcodeMatch, bool, error) {
	val, err := c.client.Get(ctx, barcodeKeyPrefix+code).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var match domain.BarcodeMatch
	if err := json.Unmarshal([]byte(val), &match); err != nil {
		return nil, false, err
	}
	return &match, true, nil
}

func (c *RedisBarcodeCache) Set(ctx context.Context, code string, match *domain.BarcodeMatch, ttl time.Duration) error {
	if match == nil {
		return nil
	}
	payload, err := json.Marshal(match)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, barcodeKeyPrefix+code, payload, ttl).Err()
}

// Flush drops every cached barcode match. Called after catalog writes; the
// SCAN loop keeps it safe on a Redis instance shared with other keyspaces.
func (c *RedisBarcodeCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, barcodeKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
