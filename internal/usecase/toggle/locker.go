package toggle

import (
	"context"
	"fmt"
	"sync"
)

// ItemLocker serializes operations per switch item ID. Two concurrent toggles
// on the same item would otherwise race on the status probe.
type ItemLocker struct {
	mu    sync.Mutex
	locks map[string]*itemMutex
}

type itemMutex struct {
	mu       sync.Mutex
	refCount int
}

// NewItemLocker creates a new item locker.
func NewItemLocker() *ItemLocker {
	return &ItemLocker{
		locks: make(map[string]*itemMutex),
	}
}

// Lock acquires the lock for the given item ID. It blocks until the lock is
// acquired or the context is cancelled. The returned unlock function must be
// called exactly once.
func (l *ItemLocker) Lock(ctx context.Context, id string) (unlock func(), err error) {
	l.mu.Lock()
	im, ok := l.locks[id]
	if !ok {
		im = &itemMutex{}
		l.locks[id] = im
	}
	im.refCount++
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		im.mu.Lock()
		close(acquired)
	}()

	release := func() {
		im.mu.Unlock()
		l.mu.Lock()
		im.refCount--
		if im.refCount == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}

	select {
	case <-acquired:
		var once sync.Once
		return func() { once.Do(release) }, nil

	case <-ctx.Done():
		// The goroutine above still owns a pending Lock; release it as soon
		// as it lands so the item is not wedged.
		go func() {
			<-acquired
			release()
		}()
		return nil, fmt.Errorf("item lock %q: %w", id, ctx.Err())
	}
}

// ActiveCount returns the number of items with held or pending locks.
func (l *ItemLocker) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
