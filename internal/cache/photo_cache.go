package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// PhotoCache keeps downloaded photo bytes for a short while so that repeated
// renders of the same profile do not hit the file host again.
type PhotoCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewPhotoCache(client *redisv9.Client, ttl time.Duration) *PhotoCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PhotoCache{client: client, ttl: ttl}
}

func (c *PhotoCache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, photoKey(url)).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get photo failed: %w", err)
	}
	return raw, true, nil
}

func (c *PhotoCache) Set(ctx context.Context, url string, data []byte) error {
	if err := c.client.Set(ctx, photoKey(url), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set photo failed: %w", err)
	}
	return nil
}

// Photo URLs from Baserow are long signed links, so the key is a digest.
func photoKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "scholarbridge:photo:" + hex.EncodeToString(sum[:])
}
