package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"carteira/internal/core"
	"carteira/internal/log"
)

// DueProcessor creates the transactions of the recurring bills due at now.
type DueProcessor interface {
	ProcessDue(ctx context.Context, now time.Time) (int, error)
}

// RecurringScheduler runs a DueProcessor on a cron schedule. Runs never
// overlap: a tick that arrives while a run is in progress is skipped.
type RecurringScheduler struct {
	proc   DueProcessor
	clock  core.Clock
	logger *log.Logger
	cron   *cron.Cron

	mu sync.Mutex
}

func NewRecurringScheduler(proc DueProcessor, clock core.Clock, logger *log.Logger) *RecurringScheduler {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentRecurring)
	cl := cronLogger{logger}
	return &RecurringScheduler{
		proc:   proc,
		clock:  clock,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(clock.Now().Location()),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start schedules runs on schedule, a standard five-field cron expression or
// a descriptor such as "@every 1h", and returns immediately.
func (s *RecurringScheduler) Start(ctx context.Context, schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { _, _ = s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule recurring bills %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.InfoContext(ctx, "Recurring bills scheduled", "schedule", schedule)
	return nil
}

// RunOnce processes the bills due now and logs the outcome.
func (s *RecurringScheduler) RunOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	count, err := s.proc.ProcessDue(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Recurring bills run failed", log.FieldError, err)
		return count, err
	}
	s.logger.InfoContext(ctx, "Recurring bills run complete",
		"transactions_created", count,
		"at", now.Format(time.RFC3339))
	return count, nil
}

// Stop stops the schedule and waits for a running job to return.
func (s *RecurringScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger routes cron's own logging through the component logger.
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{log.FieldError, err}, keysAndValues...)...)
}
