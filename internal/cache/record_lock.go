package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RecordLock serializes provisioning of a single record id across replicas.
type RecordLock struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewRecordLock(client *redisv9.Client, ttl time.Duration) *RecordLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RecordLock{client: client, ttl: ttl}
}

// TryLock returns ok=false when another holder owns the lock. The returned
// token must be passed to Unlock.
func (l *RecordLock) TryLock(ctx context.Context, recordID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(recordID), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis acquire record lock failed: %w", err)
	}
	return token, ok, nil
}

// Unlock releases the lock only if it is still held with token.
func (l *RecordLock) Unlock(ctx context.Context, recordID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{lockKey(recordID)}, token).Err(); err != nil {
		return fmt.Errorf("redis release record lock failed: %w", err)
	}
	return nil
}

func lockKey(recordID string) string {
	return "scholarbridge:lock:record:" + recordID
}
