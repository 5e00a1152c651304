package repository

import "context"

// RunLock serializes crawl runs.
type RunLock interface {
	// Acquire returns false without error when another run holds the lock.
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
