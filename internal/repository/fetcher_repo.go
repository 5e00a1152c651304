package repository

import (
	"context"

	"github.com/user/forum-crawler/internal/entity"
)

// Fetcher defines the contract for retrieving raw pages from the forum.
type Fetcher interface {
	// Fetch returns the body of url. A nil result with a non-nil error means
	// the page could not be retrieved after all retries.
	Fetch(ctx context.Context, url string) (*entity.FetchResult, error)
}
