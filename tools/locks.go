package tools

import (
	"sync"
)

// KeyedMutex provides one mutex per string key. Entries are reference
// counted and removed once the last holder unlocks, so the map does not
// grow with the universe of keys ever seen.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

func (km *KeyedMutex) Lock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()
}

func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	defer km.mu.Unlock()

	l, ok := km.locks[key]
	if !ok {
		panic("unlock of unlocked keyed mutex")
	}
	l.refs--
	if l.refs == 0 {
		delete(km.locks, key)
	}
	l.mu.Unlock()
}

func (km *KeyedMutex) Locked(key string) bool {
	km.mu.Lock()
	defer km.mu.Unlock()
	l, ok := km.locks[key]
	return ok && l.refs > 0
}
