// Package imagestore downloads post images into a date-partitioned directory
// tree and hands back storage-independent path tokens.
package imagestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/forum-crawler/pkg/metrics"
	"github.com/user/forum-crawler/pkg/utils"
)

// Options configures a Materializer.
type Options struct {
	BasePath    string
	TokenPrefix string
	Timeout     time.Duration
	UserAgent   string
}

// Materializer implements repository.ImageMaterializer on the local filesystem.
type Materializer struct {
	client  *http.Client
	opts    Options
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a Materializer with its own HTTP client.
func New(opts Options, m *metrics.Metrics, logger *zap.Logger) *Materializer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	opts.TokenPrefix = strings.TrimSuffix(opts.TokenPrefix, "/")
	return &Materializer{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		now:     time.Now,
		metrics: m,
		logger:  logger.Named("images"),
	}
}

// Download stores rawURL and returns its token. When savePath is empty the
// file goes under BasePath/<YYYY>/<M>/<D>. An existing file is never fetched again.
func (m *Materializer) Download(ctx context.Context, rawURL, savePath string) (string, bool) {
	now := m.now()
	dir := savePath
	if dir == "" {
		dir = filepath.Join(m.opts.BasePath, datePartition(now))
	}
	name := fileName(rawURL, now)
	local := filepath.Join(dir, name)
	token := m.token(local, name, now)

	if info, err := os.Stat(local); err == nil && info.Mode().IsRegular() {
		m.logger.Debug("image already present", zap.String("path", local))
		m.metrics.ImagesTotal.WithLabelValues("cached").Inc()
		return token, true
	}

	if err := m.fetch(ctx, rawURL, dir, local); err != nil {
		m.logger.Warn("image download failed", zap.String("url", rawURL), zap.Error(err))
		m.metrics.ImagesTotal.WithLabelValues("failed").Inc()
		return "", false
	}
	m.metrics.ImagesTotal.WithLabelValues("downloaded").Inc()
	return token, true
}

// DownloadAll keeps the order of urls and silently drops failures.
func (m *Materializer) DownloadAll(ctx context.Context, urls []string, savePath string) []string {
	tokens := make([]string, 0, len(urls))
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		if token, ok := m.Download(ctx, u, savePath); ok {
			tokens = append(tokens, token)
		}
	}
	if len(urls) > 0 {
		m.logger.Debug("images materialized", zap.Int("ok", len(tokens)), zap.Int("total", len(urls)))
	}
	return tokens
}

func (m *Materializer) fetch(ctx context.Context, rawURL, dir, local string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "image/webp,image/apng,image/*,*/*;q=0.8")
	if m.opts.UserAgent != "" {
		req.Header.Set("User-Agent", m.opts.UserAgent)
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	m.metrics.FetchDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	return os.Rename(tmp.Name(), local)
}

// token maps a local path to <prefix>/<relative path>. Paths outside the
// base directory fall back to <prefix>/<today>/<file>.
func (m *Materializer) token(local, name string, now time.Time) string {
	rel, err := filepath.Rel(m.opts.BasePath, local)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path.Join(m.opts.TokenPrefix, datePartition(now), name)
	}
	return path.Join(m.opts.TokenPrefix, filepath.ToSlash(rel))
}

// datePartition renders YYYY/M/D without zero padding.
func datePartition(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", t.Year(), int(t.Month()), t.Day())
}

// scriptExts mark URLs served by a script, e.g. forum.php?mod=attachment&aid=N,
// whose basename says nothing about the image.
var scriptExts = map[string]bool{".php": true, ".asp": true, ".aspx": true, ".jsp": true, ".cgi": true}

// fileName takes the last URL path segment, synthesizing a timestamped name
// when the segment is missing or has no extension. Script endpoints get a
// short hash of their query so distinct attachments do not collide.
func fileName(rawURL string, now time.Time) string {
	if u, err := url.Parse(rawURL); err == nil {
		name := path.Base(u.Path)
		switch {
		case name == "." || name == ".." || name == "/" || !strings.Contains(strings.Trim(name, "."), "."):
		case scriptExts[strings.ToLower(path.Ext(name))]:
			stem := strings.TrimSuffix(name, path.Ext(name))
			return fmt.Sprintf("%s_%s.jpg", stem, utils.HashURL(u.RawQuery)[:12])
		default:
			return name
		}
	}
	return fmt.Sprintf("image_%s_%06d.jpg", now.Format("150405"), now.Nanosecond()/int(time.Microsecond))
}
