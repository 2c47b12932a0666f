package database

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Lock is a named exclusive lock whose acquisition observes context cancellation.
type Lock struct {
	name string
	sem  *semaphore.Weighted
}

func NewLock(name string) *Lock {
	return &Lock{name: name, sem: semaphore.NewWeighted(1)}
}

func (l *Lock) Name() string {
	return l.name
}

// Acquire blocks until the lock is held or ctx is done. The returned release func
// must be called exactly once; it is safe to defer.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", l.name, err)
	}
	released := false
	return func() {
		if !released {
			released = true
			l.sem.Release(1)
		}
	}, nil
}

// KeyedLock hands out one exclusive Lock per key. Entries are dropped once nobody
// holds or waits for them.
type KeyedLock struct {
	name  string
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	lock *Lock
	refs int
}

func NewKeyedLock(name string) *KeyedLock {
	return &KeyedLock{name: name, locks: make(map[string]*keyedEntry)}
}

// Acquire blocks until the lock for key is held or ctx is done.
func (k *KeyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{lock: NewLock(k.name + ":" + key)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	release, err := e.lock.Acquire(ctx)
	if err != nil {
		k.drop(key, e)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			k.drop(key, e)
		})
	}, nil
}

func (k *KeyedLock) drop(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *KeyedLock) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
