package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLocker_TryLock(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	release, err := l.TryLock(ctx, "reconcile", time.Minute)
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	if _, err := l.TryLock(ctx, "reconcile", time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected ErrLocked, got %v", err)
	}

	if _, err := l.TryLock(ctx, "repair", time.Minute); err != nil {
		t.Fatalf("independent key should lock: %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := l.TryLock(ctx, "reconcile", time.Minute); err != nil {
		t.Errorf("TryLock after release failed: %v", err)
	}
}

func TestMemoryLocker_Expiry(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	staleRelease, err := l.TryLock(ctx, "job", time.Second)
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := l.TryLock(ctx, "job", time.Second); err != nil {
		t.Fatalf("expired lease should be taken over: %v", err)
	}

	// The stale owner must not release the new owner's lease.
	_ = staleRelease(ctx)
	if _, err := l.TryLock(ctx, "job", time.Second); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked after stale release, got %v", err)
	}
}
