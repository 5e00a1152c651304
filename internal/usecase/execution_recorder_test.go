package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/pkg/metrics"
)

func newTestRecorder(t *testing.T) (*ExecutionRecorder, *memLogs, *metrics.Metrics) {
	logs := &memLogs{}
	m := metrics.NewNop()
	return NewExecutionRecorder(logs, m, zaptest.NewLogger(t)), logs, m
}

func TestClassify(t *testing.T) {
	require.Equal(t, entity.RunStatusSuccess, Classify(nil))
	require.Equal(t, entity.RunStatusTimeout, Classify(fmt.Errorf("walk: %w", context.DeadlineExceeded)))
	require.Equal(t, entity.RunStatusFailed, Classify(fmt.Errorf("%w: boom", ErrPersist)))
	require.Equal(t, entity.RunStatusFailed, Classify(fmt.Errorf("%w: boom", ErrIndexLoad)))
	require.Equal(t, entity.RunStatusError, Classify(context.Canceled))
	require.Equal(t, entity.RunStatusError, Classify(errors.New("anything else")))
}

func TestTrackSuccess(t *testing.T) {
	rec, logs, m := newTestRecorder(t)
	meta := ExecutionMeta{Type: entity.ExecutionManual, Environment: "test", Command: "crawl", Pages: 3}

	err := rec.Track(context.Background(), meta, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)

	require.Len(t, logs.started, 1)
	require.Equal(t, entity.RunStatusRunning, logs.started[0].Status)
	require.Equal(t, 3, logs.started[0].Pages)
	require.Equal(t, entity.ExecutionManual, logs.started[0].ExecutionType)
	require.Equal(t, []entity.RunStatus{entity.RunStatusSuccess}, logs.finished)
	require.Equal(t, []int{7}, logs.counts)
	require.Equal(t, "completed, 7 posts written", logs.messages[0])
	require.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
}

func TestTrackFailureKeepsPartialCount(t *testing.T) {
	rec, logs, _ := newTestRecorder(t)
	failure := fmt.Errorf("%w: connection reset", ErrPersist)

	err := rec.Track(context.Background(), ExecutionMeta{}, func(context.Context) (int, error) { return 4, failure })
	require.ErrorIs(t, err, ErrPersist)
	require.Equal(t, []entity.RunStatus{entity.RunStatusFailed}, logs.finished)
	require.Equal(t, []int{4}, logs.counts)
	require.Equal(t, failure.Error(), logs.messages[0])
}

func TestTrackTimeoutFinishesDespiteCancelledContext(t *testing.T) {
	rec, logs, _ := newTestRecorder(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	err := rec.Track(ctx, ExecutionMeta{}, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, []entity.RunStatus{entity.RunStatusTimeout}, logs.finished)
}

func TestTrackPanicIsRecordedAndReraised(t *testing.T) {
	rec, logs, _ := newTestRecorder(t)

	require.PanicsWithValue(t, "nil map", func() {
		_ = rec.Track(context.Background(), ExecutionMeta{}, func(context.Context) (int, error) {
			panic("nil map")
		})
	})
	require.Equal(t, []entity.RunStatus{entity.RunStatusError}, logs.finished)
	require.Equal(t, "panic: nil map", logs.messages[0])
}

func TestFinishRecordsOnce(t *testing.T) {
	rec, logs, m := newTestRecorder(t)
	exec := rec.Begin(context.Background(), ExecutionMeta{})
	require.Equal(t, int64(1), exec.ID())

	exec.Finish(context.Background(), entity.RunStatusSuccess, strings.Repeat("x", 900), 1)
	exec.Finish(context.Background(), entity.RunStatusError, "again", 2)

	require.Equal(t, []entity.RunStatus{entity.RunStatusSuccess}, logs.finished)
	require.Len(t, logs.messages[0], entity.MaxLogMessageLength)
	require.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	require.Zero(t, testutil.ToFloat64(m.RunsTotal.WithLabelValues("error")))
}

func TestBeginFailureDoesNotBlockRun(t *testing.T) {
	rec, logs, m := newTestRecorder(t)
	logs.failStart = errors.New("table missing")

	ran := false
	err := rec.Track(context.Background(), ExecutionMeta{}, func(context.Context) (int, error) {
		ran = true
		return 1, nil
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.Empty(t, logs.finished)
	require.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
}
