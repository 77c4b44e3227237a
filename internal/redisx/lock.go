package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// OrderLocker is a best-effort cross-process mutex per order id.
type OrderLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewOrderLocker(rdb *redis.Client, ttl time.Duration) *OrderLocker {
	if ttl <= 0 {
		ttl = TTLOrderLock
	}
	return &OrderLocker{rdb: rdb, ttl: ttl}
}

// Lock tries once to take the lock for orderID. When ok is false the lock is
// held elsewhere. The returned release func is always safe to call.
func (l *OrderLocker) Lock(ctx context.Context, orderID string) (release func(), ok bool, err error) {
	key := fmt.Sprintf(KeyOrderLock, orderID)
	token := uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil || !ok {
		return func() {}, ok, err
	}
	return func() {
		// the request context may already be done; release on a fresh one
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.rdb, []string{key}, token).Err()
	}, true, nil
}
