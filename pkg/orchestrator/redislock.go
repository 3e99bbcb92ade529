package orchestrator

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nordicgov/citizenship-review/pkg/apperr"
)

// releaseScript deletes a lock key only if it is still held by the caller,
// so a worker can never release a lock another worker has since acquired
// after this one's TTL expired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCaseLocker implements CaseLocker with SET NX PX, the alternate
// per-case lock backend named in spec.md §4.4 alongside the Postgres
// conditional-upsert implementation in pkg/store.
type RedisCaseLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisCaseLocker wraps an already-configured Redis client.
func NewRedisCaseLocker(client *redis.Client) *RedisCaseLocker {
	return &RedisCaseLocker{client: client, prefix: "case_lock:"}
}

func (l *RedisCaseLocker) key(caseID string) string { return l.prefix + caseID }

// AcquireLock is a non-blocking SET NX PX; it never retries.
func (l *RedisCaseLocker) AcquireLock(ctx context.Context, caseID, holder string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(caseID), holder, ttl).Result()
	if err != nil {
		return false, apperr.Storage(err, "acquire redis case lock")
	}
	return ok, nil
}

// ReleaseLock deletes the lock only if holder still owns it.
func (l *RedisCaseLocker) ReleaseLock(ctx context.Context, caseID, holder string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(caseID)}, holder).Err(); err != nil && err != redis.Nil {
		return apperr.Storage(err, "release redis case lock")
	}
	return nil
}

// LockHeld reports whether a lock key currently exists. Redis expires stale
// keys itself, so this never observes an expired-but-present lock.
func (l *RedisCaseLocker) LockHeld(ctx context.Context, caseID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(caseID)).Result()
	if err != nil {
		return false, apperr.Storage(err, "check redis case lock")
	}
	return n > 0, nil
}

// ReclaimStale is a no-op for the Redis backend: PX expiry already reclaims
// the key, so there is nothing left for the orchestrator to find here. The
// Postgres-backed locker is the one that needs an explicit sweep, since it
// has no native key-expiry primitive.
func (l *RedisCaseLocker) ReclaimStale(ctx context.Context) ([]string, error) {
	return nil, nil
}
