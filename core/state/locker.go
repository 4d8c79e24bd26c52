package state

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedLocker hands out one mutex per key and forgets it once nobody holds or waits on it.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*lockEntry)}
}

func (l *keyedLocker) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.release(key, e)
		})
	}
}

// TryLock acquires the key only if no one holds or waits for it.
func (l *keyedLocker) TryLock(key string) (func(), bool) {
	l.mu.Lock()
	if _, busy := l.locks[key]; busy {
		l.mu.Unlock()
		return nil, false
	}
	e := &lockEntry{refs: 1}
	e.mu.Lock()
	l.locks[key] = e
	l.mu.Unlock()

	return func() {
		e.mu.Unlock()
		l.release(key, e)
	}, true
}

func (l *keyedLocker) release(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *keyedLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
