package tasks

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/lysyi3m/music-digest/app/database"
	"github.com/lysyi3m/music-digest/app/daterange"
	"github.com/lysyi3m/music-digest/app/feed"
)

type countingLimiter struct {
	waits int
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits++
	return ctx.Err()
}

func TestNewTask(t *testing.T) {
	task := NewTask(TaskTypeFetch, "2024-03-09 to 2024-03-09")

	if task.ID == "" {
		t.Error("Expected task ID to be generated")
	}
	if task.GetType() != TaskTypeFetch {
		t.Errorf("Expected type '%s', got '%s'", TaskTypeFetch, task.GetType())
	}
	if task.GetDuration() != 0 {
		t.Errorf("Expected zero duration before start, got %v", task.GetDuration())
	}

	task.Start()
	if task.StartedAt == nil {
		t.Error("Expected start time to be set")
	}

	other := NewTask(TaskTypeFetch, "")
	if other.ID == task.ID {
		t.Error("Expected unique task IDs")
	}
}

func TestSummarizeTaskPacesCalls(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	items := []feed.Item{
		windowItem("NME", "One", 8),
		windowItem("NME", "Two", 9),
		windowItem("NME", "Three", 10),
	}
	if _, err := f.items.UpsertBatch(ctx, items); err != nil {
		t.Fatal(err)
	}

	limiter := &countingLimiter{}
	task := NewSummarizeTask(f.items, func() (Summarizer, error) { return f.summarizer, nil }, limiter, f.window)
	if err := Execute(ctx, task); err != nil {
		t.Fatal(err)
	}

	if task.Pending != 3 || task.Summarized != 3 {
		t.Errorf("Expected 3 pending and 3 summarized, got %d and %d", task.Pending, task.Summarized)
	}
	if limiter.waits != 2 {
		t.Errorf("Expected 2 waits between 3 calls, got %d", limiter.waits)
	}
}

func TestSummarizeTaskStopsOnCancel(t *testing.T) {
	f := newPipelineFixture(t)
	if _, err := f.items.UpsertBatch(context.Background(), []feed.Item{
		windowItem("NME", "One", 8),
		windowItem("NME", "Two", 9),
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := NewSummarizeTask(f.items, func() (Summarizer, error) { return f.summarizer, nil }, &countingLimiter{}, f.window)
	if err := task.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFetchTaskWithoutSaving(t *testing.T) {
	f := newPipelineFixture(t)
	f.collector.items = []feed.Item{windowItem("NME", "One", 8)}

	task := NewFetchTask(f.collector, f.items, f.window, FetchOptions{TempPath: f.temp})
	if err := Execute(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	if task.Fetched != 1 || task.Saved != 0 {
		t.Errorf("Expected 1 fetched and 0 saved, got %d and %d", task.Fetched, task.Saved)
	}
	count, err := f.items.CountPublishedBetween(context.Background(), database.DateRange{Start: f.window.Start, End: f.window.End})
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("Expected nothing stored, got %d", count)
	}
	if _, err := os.Stat(f.temp); err != nil {
		t.Errorf("Expected temp file to be written: %v", err)
	}
}

func TestNotifyTaskDigestNeedsRenderedFile(t *testing.T) {
	f := newPipelineFixture(t)

	task := NewNotifyTask(f.mailer, f.pipeline.deps.Renderer, NotifyDigest, f.window, nil, f.output)
	if err := task.Execute(context.Background()); err == nil {
		t.Error("Expected error without a rendered digest")
	}
	if len(f.mailer.sent) != 0 {
		t.Errorf("Expected no mail, got %d", len(f.mailer.sent))
	}
}

type recordingRunner struct {
	windows []daterange.Range
}

func (r *recordingRunner) Run(ctx context.Context, window daterange.Range, sourceTypes []string) (*database.Run, error) {
	r.windows = append(r.windows, window)
	return &database.Run{ID: "run", Outcome: database.OutcomeDigest}, nil
}

func TestSchedulerRunsYesterday(t *testing.T) {
	runner := &recordingRunner{}
	resolver := &daterange.Resolver{
		Now:      func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) },
		Location: time.UTC,
	}
	s := NewScheduler(runner, resolver, []string{"rss"}, time.UTC)

	s.runOnce()

	if len(runner.windows) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runner.windows))
	}
	if runner.windows[0].String() != "2024-03-09 to 2024-03-09" {
		t.Errorf("Expected yesterday's window, got '%s'", runner.windows[0].String())
	}
	if s.Runs() != 1 {
		t.Errorf("Expected run count 1, got %d", s.Runs())
	}
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	s := NewScheduler(&recordingRunner{}, daterange.NewResolver(time.UTC), nil, nil)
	if err := s.Start("not a schedule"); err == nil {
		t.Error("Expected error for invalid schedule")
	}

	if err := s.Start("0 9 * * *"); err != nil {
		t.Fatal(err)
	}
	s.Stop()
}
