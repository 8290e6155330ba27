package linkauth

import (
	"context"
	"sort"
	"sync"
)

// KeyLocker serializes read-decide-write sequences on identity keys.
type KeyLocker interface {
	// Lock acquires every key or none. The returned func releases them.
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// SortKeys orders and dedups keys so lockers always acquire in the same order.
func SortKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// MemoryLocker is an in-process KeyLocker. Entries are reference counted and
// dropped once nobody holds or waits on them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

func (m *MemoryLocker) acquireRef(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[string]*keyLock)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *MemoryLocker) releaseRef(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

func (m *MemoryLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = SortKeys(keys)
	var held []func()
	unlockAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, key := range keys {
		l := m.acquireRef(key)
		select {
		case l.sem <- struct{}{}:
			key := key
			held = append(held, func() {
				<-l.sem
				m.releaseRef(key, l)
			})
		case <-ctx.Done():
			m.releaseRef(key, l)
			unlockAll()
			return nil, ctx.Err()
		}
	}
	return unlockAll, nil
}

// Len reports how many keys are currently tracked.
func (m *MemoryLocker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
