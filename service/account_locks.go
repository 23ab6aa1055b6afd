package service

import (
	"context"
	"sync"
)

// AccountLocks hands out one mutual-exclusion scope per account. Unrelated
// accounts never contend; a lock is dropped from the arena once nobody holds
// or waits on it.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sem  chan struct{}
	refs int
}

// NewAccountLocks creates an empty lock arena
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[string]*accountLock)}
}

// Acquire blocks until the account scope is held or ctx is done. The
// returned func releases the scope and must be called exactly once.
func (l *AccountLocks) Acquire(ctx context.Context, accountID string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[accountID]
	if !ok {
		lock = &accountLock{sem: make(chan struct{}, 1)}
		l.locks[accountID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lock.sem
				l.release(accountID, lock)
			})
		}, nil
	case <-ctx.Done():
		l.release(accountID, lock)
		return nil, ctx.Err()
	}
}

func (l *AccountLocks) release(accountID string, lock *accountLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, accountID)
	}
}

// Len returns the number of accounts currently locked or awaited
func (l *AccountLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
