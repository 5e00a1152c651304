package usecase

import "errors"

var (
	// ErrPersist marks a batch that the post store rejected. It aborts the run.
	ErrPersist = errors.New("failed to persist posts")
	// ErrIndexLoad means the existing post ids could not be read.
	ErrIndexLoad = errors.New("failed to load existing post ids")
	// ErrRunInProgress is returned when another crawl holds the run lock.
	ErrRunInProgress = errors.New("a crawl run is already in progress")
)
