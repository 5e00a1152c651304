package repository

import (
	"context"

	"github.com/user/forum-crawler/internal/entity"
)

// PostRepository defines the interface for persisting forum posts.
type PostRepository interface {
	// ExistingIDs returns every stored post id as a decimal string.
	ExistingIDs(ctx context.Context) ([]string, error)
	// Upsert inserts rows, updating every column of rows whose id already exists.
	Upsert(ctx context.Context, rows []entity.PostRow) error
	// UpdateContent updates only title, content, images and updated_at of existing rows.
	UpdateContent(ctx context.Context, rows []entity.PostRow) error
	// Ping checks connectivity to the store.
	Ping(ctx context.Context) error
}
