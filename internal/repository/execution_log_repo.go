package repository

import (
	"context"

	"github.com/user/forum-crawler/internal/entity"
)

// ExecutionLogRepository records crawler runs.
type ExecutionLogRepository interface {
	// Start inserts a running entry and returns its id.
	Start(ctx context.Context, log *entity.ExecutionLog) (int64, error)
	// Finish sets the terminal status of an entry.
	Finish(ctx context.Context, id int64, status entity.RunStatus, message string, postsCount int) error
	// Recent returns the newest entries first.
	Recent(ctx context.Context, limit int) ([]entity.ExecutionLog, error)
}
