package dialogue

import (
	"context"
	"sync"
)

// lockTable hands out one lock per user id. Entries are reference counted and
// removed once nobody holds or waits for them, so the table only grows with
// concurrent users.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	ch   chan struct{} // capacity 1; a send acquires
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*userLock)}
}

// acquire blocks until the lock for key is held or ctx is done. The returned
// release must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, key string) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &userLock{ch: make(chan struct{}, 1)}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		t.unref(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			t.unref(key, l)
		})
	}, nil
}

func (t *lockTable) unref(key string, l *userLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
}

func (t *lockTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
