package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/core"
	"carteira/internal/log"
)

type fakeProcessor struct {
	calls atomic.Int32
	last  atomic.Value
	err   error
}

func (f *fakeProcessor) ProcessDue(_ context.Context, now time.Time) (int, error) {
	f.calls.Add(1)
	f.last.Store(now)
	return 2, f.err
}

func quietLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
}

func TestRecurringScheduler_RunOnceUsesClock(t *testing.T) {
	now := time.Date(2026, 1, 31, 6, 0, 0, 0, time.UTC)
	proc := &fakeProcessor{}
	s := NewRecurringScheduler(proc, core.FixedClock(now), quietLogger())

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, now, proc.last.Load())
}

func TestRecurringScheduler_RunOnceReportsFailure(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("database is locked")}
	s := NewRecurringScheduler(proc, core.FixedClock(time.Now()), quietLogger())

	_, err := s.RunOnce(context.Background())
	assert.EqualError(t, err, "database is locked")
}

func TestRecurringScheduler_Start(t *testing.T) {
	proc := &fakeProcessor{}
	s := NewRecurringScheduler(proc, core.FixedClock(time.Now()), quietLogger())

	assert.Error(t, s.Start(context.Background(), "every hour"))

	require.NoError(t, s.Start(context.Background(), "@every 1h"))
	s.Stop()
	assert.Equal(t, int32(0), proc.calls.Load())
}
