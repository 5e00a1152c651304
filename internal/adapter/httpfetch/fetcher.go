package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloudeng.io/net/ratecontrol"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/pkg/metrics"
)

// maxBodySize caps how much of a single response is read into memory.
const maxBodySize = 16 << 20

// ErrFetch marks a page that could not be retrieved after all retries.
var ErrFetch = errors.New("fetch failed")

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// Retryable reports whether the server might answer differently later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options configures a Fetcher.
type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	RequestsPerMinute int
	Kind              string // metrics label, e.g. "page" or "image"
}

// Fetcher issues GET requests with retry, exponential backoff and UA/proxy rotation.
type Fetcher struct {
	client     *http.Client
	rotator    *Rotator
	controller *ratecontrol.Controller
	limiter    *rate.Limiter
	opts       Options
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New creates a Fetcher that owns its HTTP client.
func New(opts Options, rotator *Rotator, m *metrics.Metrics, logger *zap.Logger) *Fetcher {
	if opts.Kind == "" {
		opts.Kind = "page"
	}
	if rotator == nil {
		rotator = NewRotator(nil, nil)
	}
	var rcOpts []ratecontrol.Option
	if opts.MaxRetries > 0 && opts.RetryBackoff > 0 {
		rcOpts = append(rcOpts, ratecontrol.WithExponentialBackoff(opts.RetryBackoff, opts.MaxRetries))
	}
	f := &Fetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               rotator.Proxy,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rotator:    rotator,
		controller: ratecontrol.New(rcOpts...),
		opts:       opts,
		metrics:    m,
		logger:     logger.Named("fetcher"),
	}
	if opts.RequestsPerMinute > 0 {
		f.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return f
}

// Fetch retrieves url, retrying network errors, 429 and 5xx responses.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*entity.FetchResult, error) {
	backoff := f.controller.Backoff()
	for attempt := 0; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		start := time.Now()
		res, resp, err := f.get(ctx, url)
		f.metrics.FetchDuration.WithLabelValues(f.opts.Kind).Observe(time.Since(start).Seconds())
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) || attempt >= f.opts.MaxRetries {
			return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrFetch, url, attempt+1, err)
		}
		f.logger.Debug("retrying fetch", zap.String("url", url), zap.Int("attempt", attempt+1), zap.Error(err))
		done, werr := backoff.Wait(ctx, resp)
		if werr != nil {
			return nil, werr
		}
		if done {
			return nil, fmt.Errorf("%w: %s, backoff giving up after %d retries: %w", ErrFetch, url, backoff.Retries(), err)
		}
	}
}

func (f *Fetcher) get(ctx context.Context, url string) (*entity.FetchResult, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, &permanentError{err}
	}
	req.Header.Set("User-Agent", f.rotator.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	// Pages are decoded to UTF-8 using the Content-Type header or <meta> charset.
	decoded, err := charset.NewReader(io.LimitReader(resp.Body, maxBodySize), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, resp, fmt.Errorf("failed to read body: %w", err)
	}
	body, err := io.ReadAll(decoded)
	if err != nil {
		return nil, resp, fmt.Errorf("failed to read body: %w", err)
	}
	return &entity.FetchResult{URL: url, StatusCode: resp.StatusCode, Body: body}, resp, nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
