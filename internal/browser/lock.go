package browser

import (
	"context"
	"sync"
)

// TabLock serializes operations addressed to the same tab while letting
// unrelated tabs proceed fully in parallel. Each in-flight operation
// publishes a completion signal; the next operation for the same tab waits
// on it, runs, then republishes. Submission order is the order WithLock
// registers under the mutex, so same-tab operations observe a total order.
type TabLock struct {
	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// NewTabLock returns an empty lock registry.
func NewTabLock() *TabLock {
	return &TabLock{inflight: make(map[string]chan struct{})}
}

// WithLock runs fn once every previously submitted operation for tabID has
// finished. A failing fn does not poison the lock; the next queued operation
// still runs. Context cancellation while queued skips fn; the abandoned slot
// is released once the predecessor finishes, so operations queued behind the
// cancelled one stay serialized.
func (l *TabLock) WithLock(ctx context.Context, tabID string, fn func() error) error {
	l.mu.Lock()
	prev := l.inflight[tabID]
	done := make(chan struct{})
	l.inflight[tabID] = done
	l.mu.Unlock()

	finish := func() {
		close(done)
		l.mu.Lock()
		// Only clear the entry if no newer operation replaced it; a slow
		// cleanup must not remove a successor's signal.
		if l.inflight[tabID] == done {
			delete(l.inflight, tabID)
		}
		l.mu.Unlock()
	}

	if prev != nil {
		select {
		case <-prev:
			// Predecessor finished; its error is its own business.
		case <-ctx.Done():
			go func() {
				<-prev
				finish()
			}()
			return ctx.Err()
		}
	}
	defer finish()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

// Forget drops the lock entry for a destroyed tab. Safe to call while an
// operation is in flight: the entry check in WithLock's cleanup tolerates
// the missing key.
func (l *TabLock) Forget(tabID string) {
	l.mu.Lock()
	delete(l.inflight, tabID)
	l.mu.Unlock()
}

// pending reports whether an operation is currently registered for tabID.
func (l *TabLock) pending(tabID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[tabID]
	return ok
}
