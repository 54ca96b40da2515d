package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/transitline/ticketing-core/pkg/redis"
)

const lockKey = "sweeper:leader"

// releaseScript deletes lockKey only if it still holds our token, so a
// sweeper that stalls past the lock's TTL can't delete the next leader's
// lock out from under it, adapted from the reference reserve-seats
// Lua-script-backed lock pattern.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// leaderLock is a best-effort, Redis-backed mutual-exclusion hint letting
// multiple sweeper replicas coexist without every one of them expiring the
// same batch of reservations concurrently (§4.5's single-logical-worker
// note). It is a hint, not a correctness requirement: row locks in the
// write store are what actually prevent double-expiry, so a nil client just
// means every replica scans every tick, and a failed acquire means this
// replica sits out the current tick.
type leaderLock struct {
	client *redis.Client
	token  string
	ttl    time.Duration
}

func newLeaderLock(client *redis.Client, ttl time.Duration) *leaderLock {
	return &leaderLock{client: client, token: uuid.New().String(), ttl: ttl}
}

// acquire reports whether this replica became leader for the current tick.
func (l *leaderLock) acquire(ctx context.Context) bool {
	if l == nil || l.client == nil {
		return true
	}
	ok, err := l.client.SetNX(ctx, lockKey, l.token, l.ttl).Result()
	if err != nil {
		return false
	}
	return ok
}

// release gives up leadership early instead of waiting out the TTL.
func (l *leaderLock) release(ctx context.Context) {
	if l == nil || l.client == nil {
		return
	}
	l.client.EvalWithFallback(ctx, "sweeper_release", releaseScript, []string{lockKey}, l.token)
}
