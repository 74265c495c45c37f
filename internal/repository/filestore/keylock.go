package filestore

import "sync"

// keyedMutex hands out one mutex per key and forgets keys nobody holds,
// so unrelated showtimes and screens never wait on each other.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock acquires the keys in the given order and returns a function that
// releases them in reverse.  Callers must always pass keys in the same
// relative order (screen before showtime).
func (k *keyedMutex) Lock(keys ...string) func() {
	held := make([]*refLock, len(keys))
	for i, key := range keys {
		held[i] = k.ref(key)
		held[i].Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.unref(keys[i], held[i])
		}
	}
}

func (k *keyedMutex) ref(key string) *refLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedMutex) unref(key string, l *refLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
