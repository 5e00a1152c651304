package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/internal/repository"
)

// Exporter dumps the first listing page of each section as JSON without
// touching the store or fetching detail pages.
type Exporter struct {
	urls      SiteURLs
	fetcher   repository.Fetcher
	extractor repository.Extractor
	enricher  *DetailEnricher
	logger    *zap.Logger
}

// NewExporter creates an Exporter.
func NewExporter(urls SiteURLs, fetcher repository.Fetcher, extractor repository.Extractor, enricher *DetailEnricher, logger *zap.Logger) *Exporter {
	return &Exporter{urls: urls, fetcher: fetcher, extractor: extractor, enricher: enricher, logger: logger.Named("exporter")}
}

// Collect returns the non-sticky posts on page 1 of every section. A section
// whose page cannot be fetched is skipped.
func (e *Exporter) Collect(ctx context.Context, sectionIDs []string) ([]entity.Post, error) {
	posts := []entity.Post{}
	for _, fid := range sectionIDs {
		if err := ctx.Err(); err != nil {
			return posts, err
		}
		url := e.urls.Listing(fid, 1)
		res, err := e.fetcher.Fetch(ctx, url)
		if err != nil {
			e.logger.Warn("listing fetch failed", zap.String("fid", fid), zap.Error(err))
			continue
		}
		for _, p := range e.extractor.ExtractListing(res.Body, fid) {
			if p.IsSticky || p.ID == "" {
				continue
			}
			posts = append(posts, p)
		}
	}
	return posts, nil
}

// Export writes the collected posts to w as an indented JSON array.
func (e *Exporter) Export(ctx context.Context, sectionIDs []string, w io.Writer) (int, error) {
	posts, err := e.Collect(ctx, sectionIDs)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(posts); err != nil {
		return 0, err
	}
	return len(posts), nil
}

// ExportFile writes the export to path, creating parent directories.
func (e *Exporter) ExportFile(ctx context.Context, sectionIDs []string, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := e.Export(ctx, sectionIDs, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	e.logger.Info("export written", zap.String("path", path), zap.Int("posts", n))
	return n, nil
}

// InspectPost fetches one detail page for debugging. Images stay remote URLs
// and nothing is written anywhere.
func (e *Exporter) InspectPost(ctx context.Context, postID string) (*entity.Post, error) {
	if id, err := strconv.ParseInt(postID, 10, 64); err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid post id %q", postID)
	}
	url := e.urls.Detail(postID)
	d := e.enricher.FetchDetail(ctx, url)
	if d.Content == "" && len(d.Images) == 0 {
		return nil, fmt.Errorf("no content found at %s", url)
	}
	return &entity.Post{
		ID:       postID,
		URL:      url,
		Username: entity.UnknownUsername,
		Content:  d.Content,
		Images:   d.Images,
		IsCrawl:  true,
	}, nil
}
