package service

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// keyLock serializes work per (plate, zone) key so concurrent submissions for
// the same vehicle cannot interleave the read-evaluate-write sequence.
// Acquisition is bounded: callers fail with ErrStorage instead of hanging.
type keyLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyLock() *keyLock {
	return &keyLock{slots: make(map[string]chan struct{})}
}

func (k *keyLock) slotFor(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	return ch
}

// acquire takes the key's slot, returning a release func. Gives up after
// timeout or when ctx is cancelled.
func (k *keyLock) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	slot := k.slotFor(key)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: lock timeout for key %s", ErrStorage, key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
