package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/forum-crawler/pkg/utils"
)

const runLockPrefix = "crawler:lock:"

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLockImpl implements repository.RunLock with SET NX PX so that crawl runs
// are serialized across processes sharing one Redis.
type RunLockImpl struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

// NewRunLock scopes the lock to one forum, identified by its base URL.
func NewRunLock(client *redis.Client, baseURL string, ttl time.Duration) *RunLockImpl {
	return &RunLockImpl{client: client, key: lockKey(baseURL), ttl: ttl}
}

// lockKey creates a consistent Redis key for a forum by hashing its base URL.
func lockKey(baseURL string) string {
	return fmt.Sprintf("%s%s", runLockPrefix, utils.HashURL(baseURL))
}

// Acquire sets the lock key if it is absent. The key expires after ttl so a
// crashed run cannot hold it forever.
func (l *RunLockImpl) Acquire(ctx context.Context) (bool, error) {
	token, err := newToken()
	if err != nil {
		return false, err
	}
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return true, nil
}

// Release deletes the key if this instance still owns it.
func (l *RunLockImpl) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
}

// Ping checks connectivity for the health endpoint.
func (l *RunLockImpl) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
