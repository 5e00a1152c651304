package usecase

import (
	"context"
	"sync"
)

// LocalRunLock serializes runs within one process.
type LocalRunLock struct {
	mu   sync.Mutex
	held bool
}

// NewLocalRunLock creates an unlocked LocalRunLock.
func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{}
}

// Acquire takes the lock if it is free.
func (l *LocalRunLock) Acquire(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

// Release frees the lock.
func (l *LocalRunLock) Release(_ context.Context) error {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
	return nil
}
