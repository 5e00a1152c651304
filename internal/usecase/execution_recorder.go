package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/internal/repository"
	"github.com/user/forum-crawler/pkg/metrics"
	"github.com/user/forum-crawler/pkg/utils"
)

// ExecutionMeta describes a run for the execution log.
type ExecutionMeta struct {
	Type        entity.ExecutionType
	Environment string
	Command     string
	Parameters  map[string]any
	Pages       int
}

// ExecutionRecorder writes one execution log entry per run.
type ExecutionRecorder struct {
	logs    repository.ExecutionLogRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewExecutionRecorder creates an ExecutionRecorder.
func NewExecutionRecorder(logs repository.ExecutionLogRepository, m *metrics.Metrics, logger *zap.Logger) *ExecutionRecorder {
	return &ExecutionRecorder{logs: logs, metrics: m, logger: logger.Named("recorder"), now: time.Now}
}

// Execution is the handle of one running entry. Finish takes effect once.
type Execution struct {
	id       int64
	recorded bool
	rec      *ExecutionRecorder
	once     sync.Once
}

// Begin inserts a running entry. The execution log is auxiliary: when the
// insert fails the error is logged and Finish only updates metrics.
func (r *ExecutionRecorder) Begin(ctx context.Context, meta ExecutionMeta) *Execution {
	exec := &Execution{rec: r}
	id, err := r.logs.Start(ctx, &entity.ExecutionLog{
		StartTime:     r.now(),
		Status:        entity.RunStatusRunning,
		ExecutionType: meta.Type,
		Environment:   meta.Environment,
		Command:       meta.Command,
		Parameters:    meta.Parameters,
		Pages:         meta.Pages,
	})
	if err != nil {
		r.logger.Error("failed to record execution start", zap.Error(err))
		return exec
	}
	exec.id, exec.recorded = id, true
	r.logger.Info("execution started", zap.Int64("execution_id", id), zap.String("type", string(meta.Type)))
	return exec
}

// ID returns the log entry id, or 0 when the start was not recorded.
func (e *Execution) ID() int64 {
	return e.id
}

// Finish records the terminal status. Calls after the first are ignored.
func (e *Execution) Finish(ctx context.Context, status entity.RunStatus, message string, postsCount int) {
	e.once.Do(func() {
		e.rec.metrics.RunsTotal.WithLabelValues(string(status)).Inc()
		if !e.recorded {
			return
		}
		message = utils.Truncate(message, entity.MaxLogMessageLength)
		if err := e.rec.logs.Finish(ctx, e.id, status, message, postsCount); err != nil {
			e.rec.logger.Error("failed to record execution end", zap.Int64("execution_id", e.id), zap.Error(err))
			return
		}
		e.rec.logger.Info("execution finished",
			zap.Int64("execution_id", e.id),
			zap.String("status", string(status)),
			zap.Int("posts", postsCount),
		)
	})
}

// Track runs fn inside an execution entry. The entry is always finished,
// including when fn panics; the panic is re-raised afterwards.
func (r *ExecutionRecorder) Track(ctx context.Context, meta ExecutionMeta, fn func(context.Context) (int, error)) (err error) {
	exec := r.Begin(ctx, meta)
	postsCount := 0
	finishCtx := context.WithoutCancel(ctx)
	defer func() {
		if p := recover(); p != nil {
			exec.Finish(finishCtx, entity.RunStatusError, fmt.Sprintf("panic: %v", p), postsCount)
			panic(p)
		}
		message := fmt.Sprintf("completed, %d posts written", postsCount)
		if err != nil {
			message = err.Error()
		}
		exec.Finish(finishCtx, Classify(err), message, postsCount)
	}()
	postsCount, err = fn(ctx)
	return err
}

// Classify maps a run error to its terminal status.
func Classify(err error) entity.RunStatus {
	switch {
	case err == nil:
		return entity.RunStatusSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return entity.RunStatusTimeout
	case errors.Is(err, ErrPersist), errors.Is(err, ErrIndexLoad):
		return entity.RunStatusFailed
	default:
		return entity.RunStatusError
	}
}
