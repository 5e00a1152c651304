package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/internal/repository"
	"github.com/user/forum-crawler/pkg/metrics"
	"github.com/user/forum-crawler/pkg/utils"
)

// BatchWriter turns enriched posts into rows and writes them in one call.
type BatchWriter struct {
	posts   repository.PostRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewBatchWriter creates a BatchWriter.
func NewBatchWriter(posts repository.PostRepository, m *metrics.Metrics, logger *zap.Logger) *BatchWriter {
	return &BatchWriter{posts: posts, metrics: m, logger: logger.Named("writer")}
}

// Write persists posts and returns the number of rows submitted. Posts
// without a positive integer id are dropped; a repeated id keeps its last
// occurrence. In overwrite mode only title, content and images are updated.
// Store errors are wrapped in ErrPersist and never retried.
func (w *BatchWriter) Write(ctx context.Context, posts []entity.Post, overwrite bool) (int, error) {
	rows := make([]entity.PostRow, 0, len(posts))
	position := make(map[int64]int, len(posts))
	dropped := 0
	for _, p := range posts {
		row, ok := ToRow(p)
		if !ok {
			dropped++
			continue
		}
		if i, dup := position[row.ForumPostID]; dup {
			rows[i] = row
			continue
		}
		position[row.ForumPostID] = len(rows)
		rows = append(rows, row)
	}
	if dropped > 0 {
		w.logger.Debug("dropped unpersistable posts", zap.Int("count", dropped))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	mode := "upsert"
	var err error
	if overwrite {
		mode = "overwrite"
		err = w.posts.UpdateContent(ctx, rows)
	} else {
		err = w.posts.Upsert(ctx, rows)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	w.metrics.PostsPersistedTotal.WithLabelValues(mode).Add(float64(len(rows)))
	w.logger.Info("batch written", zap.String("mode", mode), zap.Int("rows", len(rows)))
	return len(rows), nil
}

// ToRow normalizes a post for storage. It returns false for sticky posts and
// for ids that are not positive integers.
func ToRow(p entity.Post) (entity.PostRow, bool) {
	if p.IsSticky {
		return entity.PostRow{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(p.ID), 10, 64)
	if err != nil || id <= 0 {
		return entity.PostRow{}, false
	}

	images := p.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return entity.PostRow{}, false
	}

	return entity.PostRow{
		ForumPostID: id,
		Title:       utils.Truncate(p.Title, entity.MaxTitleLength),
		URL:         utils.Truncate(p.URL, entity.MaxURLLength),
		UserID:      p.UserID,
		Username:    utils.Truncate(p.Username, entity.MaxUsernameLength),
		AvatarURL:   nullable(p.AvatarURL),
		PublishTime: nullable(p.PublishTime),
		ReplyCount:  max(p.ReplyCount, 0),
		ViewCount:   max(p.ViewCount, 0),
		ImagesJSON:  string(imagesJSON),
		Category:    utils.Truncate(p.Category, entity.MaxCategoryLength),
		IsSticky:    false,
		IsEssence:   p.IsEssence,
		CrawlTime:   p.CrawlTime,
		SectionID:   p.SectionID,
		IsCrawl:     p.IsCrawl,
		Content:     utils.Truncate(p.Content, entity.MaxContentLength),
	}, true
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
