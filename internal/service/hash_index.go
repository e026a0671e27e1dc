package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HashIndex maps a content hash to the public URL it was uploaded under.
type HashIndex interface {
	Get(ctx context.Context, hash string) (string, bool, error)
	Put(ctx context.Context, hash, url string) error
}

type redisHashIndex struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisHashIndex keeps hash entries for ttl. Entries are only a shortcut:
// a miss falls through to the provider search.
func NewRedisHashIndex(rdb *redis.Client, ttl time.Duration) HashIndex {
	return &redisHashIndex{rdb: rdb, prefix: "media:hash:", ttl: ttl}
}

func (h *redisHashIndex) Get(ctx context.Context, hash string) (string, bool, error) {
	url, err := h.rdb.Get(ctx, h.prefix+hash).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hash index get: %w", err)
	}
	return url, true, nil
}

func (h *redisHashIndex) Put(ctx context.Context, hash, url string) error {
	if err := h.rdb.Set(ctx, h.prefix+hash, url, h.ttl).Err(); err != nil {
		return fmt.Errorf("hash index put: %w", err)
	}
	return nil
}
