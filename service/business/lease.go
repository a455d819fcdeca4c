package business

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLeaseHeld = errors.New("sweep lease is held by another worker")

// Lease makes sure a single worker sweeps at a time.
type Lease interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

const sweepLeaseKey = "service-payments:sweep-lease"

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

// NewRedisLease shares the lease across replicas. The ttl bounds how long a
// crashed holder blocks the others.
func NewRedisLease(client *redis.Client, ttl time.Duration) Lease {
	return &redisLease{client: client, key: sweepLeaseKey, ttl: ttl}
}

func (rl *redisLease) TryAcquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := rl.client.SetNX(ctx, rl.key, token, rl.ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	rl.mu.Lock()
	rl.token = token
	rl.mu.Unlock()
	return true, nil
}

func (rl *redisLease) Release(ctx context.Context) error {
	rl.mu.Lock()
	token := rl.token
	rl.token = ""
	rl.mu.Unlock()

	if token == "" {
		return nil
	}
	return releaseScript.Run(ctx, rl.client, []string{rl.key}, token).Err()
}

type localLease struct {
	mu sync.Mutex
}

// NewLocalLease only guards against overlapping sweeps inside this process.
func NewLocalLease() Lease {
	return &localLease{}
}

func (ll *localLease) TryAcquire(_ context.Context) (bool, error) {
	return ll.mu.TryLock(), nil
}

func (ll *localLease) Release(_ context.Context) error {
	ll.mu.Unlock()
	return nil
}
