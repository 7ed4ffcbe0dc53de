// Package lock provides per-(user, week) mutual exclusion for sync runs.
//
// The local store gives no isolation between a manual sync and a
// load-triggered recovery touching the same week, so each run takes a Redis
// lock keyed by (user, week) for its duration. A second caller gets
// ErrAlreadyLocked instead of interleaving writes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrAlreadyLocked is returned when another run holds the lock.
var ErrAlreadyLocked = errors.New("sync lock already held")

// unlockScript releases the lock only if the caller still owns it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SyncLocker acquires per-(user, week) locks backed by Redis.
type SyncLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSyncLocker creates a locker. ttl bounds how long a crashed run can
// block its week; normal runs release explicitly.
func NewSyncLocker(client *redis.Client, ttl time.Duration) *SyncLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &SyncLocker{client: client, ttl: ttl}
}

// Lease represents a held lock.
type Lease struct {
	locker *SyncLocker
	key    string
	token  string
}

func lockKey(userID uuid.UUID, weekStart time.Time) string {
	return fmt.Sprintf("sync:lock:%s:%s", userID, weekStart.Format("2006-01-02"))
}

// Acquire takes the (user, week) lock or returns ErrAlreadyLocked.
func (l *SyncLocker) Acquire(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*Lease, error) {
	key := lockKey(userID, weekStart)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyLocked
	}

	return &Lease{locker: l, key: key, token: token}, nil
}

// Release frees the lock if this lease still owns it. A zero lease is a
// no-op.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.locker == nil {
		return nil
	}
	return unlockScript.Run(ctx, le.locker.client, []string{le.key}, le.token).Err()
}
