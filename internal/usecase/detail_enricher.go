package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/internal/repository"
	"github.com/user/forum-crawler/pkg/metrics"
	"github.com/user/forum-crawler/pkg/utils"
)

// DetailEnricher fills a post's content and images from its detail page.
type DetailEnricher struct {
	fetcher   repository.Fetcher
	extractor repository.Extractor
	images    repository.ImageMaterializer
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewDetailEnricher creates a DetailEnricher.
func NewDetailEnricher(
	fetcher repository.Fetcher,
	extractor repository.Extractor,
	images repository.ImageMaterializer,
	m *metrics.Metrics,
	logger *zap.Logger,
) *DetailEnricher {
	return &DetailEnricher{
		fetcher:   fetcher,
		extractor: extractor,
		images:    images,
		metrics:   m,
		logger:    logger.Named("enricher"),
	}
}

// FetchDetail returns the content and remote image URLs of a detail page.
// Any failure yields an empty detail.
func (e *DetailEnricher) FetchDetail(ctx context.Context, url string) entity.PostDetail {
	d, _ := e.fetchDetail(ctx, url)
	return d
}

func (e *DetailEnricher) fetchDetail(ctx context.Context, url string) (entity.PostDetail, bool) {
	res, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		e.logger.Warn("detail fetch failed", zap.String("url", url), zap.Error(err))
		e.metrics.DetailFetchesTotal.WithLabelValues("failed").Inc()
		return entity.PostDetail{Images: []string{}}, false
	}
	d := e.extractor.ExtractDetail(res.Body)
	if d.Content == "" {
		e.metrics.DetailFetchesTotal.WithLabelValues("empty").Inc()
	} else {
		e.metrics.DetailFetchesTotal.WithLabelValues("ok").Inc()
	}
	return d, true
}

// EnrichOutcome reports what Enrich did with a post.
type EnrichOutcome int

const (
	// EnrichSkipped means the post had no detail URL and nothing was fetched.
	EnrichSkipped EnrichOutcome = iota
	EnrichFailed
	EnrichOK
)

// Enrich sets p.Content and replaces p.Images with local tokens of the
// materialized content images.
func (e *DetailEnricher) Enrich(ctx context.Context, p *entity.Post) EnrichOutcome {
	if p.URL == "" {
		p.Images = []string{}
		return EnrichSkipped
	}
	d, ok := e.fetchDetail(ctx, p.URL)
	p.Content = utils.Truncate(d.Content, entity.MaxContentLength)
	p.Images = []string{}
	if len(d.Images) > 0 {
		p.Images = e.images.DownloadAll(ctx, d.Images, "")
	}
	if p.Content == "" {
		e.logger.Warn("no content extracted", zap.String("id", p.ID), zap.String("url", p.URL))
	} else {
		e.logger.Debug("post enriched", zap.String("id", p.ID), zap.Int("chars", len([]rune(p.Content))), zap.Int("images", len(p.Images)))
	}
	if !ok {
		return EnrichFailed
	}
	return EnrichOK
}
