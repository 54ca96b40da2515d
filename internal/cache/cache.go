// Package cache defines the Cache (K) contract used by the query core and
// the projector's invalidation step, and a Redis-backed implementation
// adapted from the reference pkg/redis client.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Key prefixes and TTLs fixed by the query core's cache-aside policy.
const (
	TicketListTTL   = 60 * time.Second
	TicketDetailTTL = 300 * time.Second
)

// TicketKey renders the per-booking detail cache key.
func TicketKey(bookingID string) string {
	return fmt.Sprintf("ticket:%s", bookingID)
}

// TicketListKey renders the per-user, paginated list cache key.
func TicketListKey(userID string, page, limit int) string {
	return fmt.Sprintf("user:%s:tickets:page:%d:limit:%d", userID, page, limit)
}

// TicketListPrefix renders the prefix under which every page of a user's
// ticket list is cached, for bulk invalidation.
func TicketListPrefix(userID string) string {
	return fmt.Sprintf("user:%s:tickets:", userID)
}

// Cache is the minimal cache-aside surface the query core and projector
// depend on. Kept narrow so command/query code is testable against an
// in-memory fake without pulling in a real Redis client.
type Cache interface {
	// Get reads the raw bytes stored at key. Returns ok=false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value at key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key. Absence is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix removes every key beginning with prefix, used to
	// invalidate all cached pages of a user's ticket list at once.
	DeleteByPrefix(ctx context.Context, prefix string) error
}
