package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/internal/usecase"
)

// Runner executes one crawl synchronously.
type Runner interface {
	Run(ctx context.Context, req usecase.RunRequest) (*entity.CrawlStats, error)
}

// Scheduler triggers crawl runs on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	req    usecase.RunRequest
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New registers a job that runs req on spec (standard five-field cron syntax).
// Scheduled runs are recorded with execution type "scheduled".
func New(spec string, runner Runner, req usecase.RunRequest, logger *zap.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner: runner,
		req:    req,
		logger: logger.Named("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
	s.req.Type = entity.ExecutionScheduled
	if s.req.Command == "" {
		s.req.Command = "cron " + spec
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid crawl schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	s.logger.Info("scheduled crawl triggered")
	stats, err := s.runner.Run(s.ctx, s.req)
	switch {
	case errors.Is(err, usecase.ErrRunInProgress):
		s.logger.Warn("skipping scheduled crawl, another run is in progress")
	case err != nil:
		s.logger.Error("scheduled crawl failed", zap.Error(err))
	default:
		s.logger.Info("scheduled crawl finished", zap.Int("persisted", stats.Persisted))
	}
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("crawl scheduled", zap.Time("next", e.Next))
	}
}

// Stop cancels a running job and waits for it to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
