package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/music-digest/app/daterange"
)

// Scheduler triggers the pipeline on a cron schedule with the default
// window. A trigger that fires while a run is in progress is skipped.
type Scheduler struct {
	runner      PipelineRunner
	resolver    *daterange.Resolver
	sourceTypes []string
	timeout     time.Duration
	cron        *cron.Cron
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.Mutex
	runs        int
}

func NewScheduler(runner PipelineRunner, resolver *daterange.Resolver, sourceTypes []string, location *time.Location) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{}

	return &Scheduler{
		runner:      runner,
		resolver:    resolver,
		sourceTypes: sourceTypes,
		timeout:     2 * time.Hour,
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the schedule and starts the cron loop.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.cron.Start()

	for _, entry := range s.cron.Entries() {
		slog.Info("Scheduler started", "schedule", spec, "next_run", entry.Next)
	}
	return nil
}

// Stop cancels a run in progress and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	slog.Info("Scheduler stopped", "runs", s.Runs())
}

func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Scheduler) runOnce() {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	window := s.resolver.Yesterday()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	run, err := s.runner.Run(ctx, window, s.sourceTypes)
	if err != nil {
		slog.Error("Scheduled run failed", "window", window.String(), "error", err)
		return
	}
	slog.Info("Scheduled run finished", "run_id", run.ID, "outcome", run.Outcome)
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
