package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/internal/repository"
)

// RunRequest is one crawl invocation.
type RunRequest struct {
	CrawlOptions
	Type    entity.ExecutionType
	Command string
	// Timeout bounds the whole run when positive.
	Timeout time.Duration
}

// CrawlRunner wraps a walk with the run lock and the execution log.
type CrawlRunner struct {
	lock        repository.RunLock
	recorder    *ExecutionRecorder
	walker      *SectionWalker
	environment string
	logger      *zap.Logger
	wg          sync.WaitGroup
}

// NewCrawlRunner creates a CrawlRunner.
func NewCrawlRunner(lock repository.RunLock, recorder *ExecutionRecorder, walker *SectionWalker, environment string, logger *zap.Logger) *CrawlRunner {
	return &CrawlRunner{
		lock:        lock,
		recorder:    recorder,
		walker:      walker,
		environment: environment,
		logger:      logger.Named("runner"),
	}
}

// Run executes one crawl. It returns ErrRunInProgress when another run holds
// the lock. A run that finds nothing new succeeds with zero rows.
func (r *CrawlRunner) Run(ctx context.Context, req RunRequest) (*entity.CrawlStats, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release(ctx)
	return r.execute(ctx, req)
}

// Start acquires the lock and runs the crawl in the background. ctx should
// live as long as the server: cancelling it stops the run, which is still
// recorded. Start returns ErrRunInProgress without launching anything when
// the lock is held.
func (r *CrawlRunner) Start(ctx context.Context, req RunRequest) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(ctx)
		_, _ = r.execute(ctx, req)
	}()
	return nil
}

// Wait blocks until every run launched by Start has returned or ctx ends.
func (r *CrawlRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background crawl still running: %w", ctx.Err())
	}
}

func (r *CrawlRunner) acquire(ctx context.Context) error {
	ok, err := r.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return ErrRunInProgress
	}
	return nil
}

func (r *CrawlRunner) release(ctx context.Context) {
	if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn("failed to release run lock", zap.Error(err))
	}
}

func (r *CrawlRunner) execute(ctx context.Context, req RunRequest) (*entity.CrawlStats, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	meta := ExecutionMeta{
		Type:        req.Type,
		Environment: r.environment,
		Command:     req.Command,
		Pages:       req.MaxPages,
		Parameters: map[string]any{
			"fids":      req.SectionIDs,
			"max_pages": req.MaxPages,
			"delay":     req.Delay.Seconds(),
			"overwrite": req.Overwrite,
		},
	}
	r.logger.Info("crawl started",
		zap.Strings("fids", req.SectionIDs),
		zap.Int("max_pages", req.MaxPages),
		zap.Bool("overwrite", req.Overwrite),
	)

	var stats *entity.CrawlStats
	err := r.recorder.Track(ctx, meta, func(ctx context.Context) (int, error) {
		var werr error
		stats, werr = r.walker.Walk(ctx, req.CrawlOptions)
		if stats == nil {
			return 0, werr
		}
		return stats.Persisted, werr
	})
	if err != nil {
		r.logger.Error("crawl failed", zap.Error(err))
		return stats, err
	}
	if stats.Persisted == 0 {
		r.logger.Info("no new posts found")
	}
	r.logger.Info("crawl finished", zap.Int("persisted", stats.Persisted), zap.Int("pages", stats.Pages))
	return stats, nil
}
