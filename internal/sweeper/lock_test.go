package sweeper

import (
	"context"
	"testing"
	"time"
)

func TestLeaderLock_NilClientAlwaysAcquires(t *testing.T) {
	l := newLeaderLock(nil, time.Minute)

	if !l.acquire(context.Background()) {
		t.Fatalf("expected a lock with no backing client to always acquire")
	}
	l.release(context.Background()) // must not panic
}
