package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/music-digest/app/database"
	"github.com/lysyi3m/music-digest/app/daterange"
	"github.com/lysyi3m/music-digest/app/feed"
)

var _ PipelineRunner = (*Pipeline)(nil)

var errNoDigestOutput = errors.New("digest rendering produced no output")

type PipelineDeps struct {
	Collector     Collector
	Items         database.ItemRepository
	Runs          database.RunRepository
	NewSummarizer SummarizerFactory
	SummaryDelay  feed.RateLimiter
	Renderer      Renderer
	Mailer        Mailer
	// Archiver is optional.
	Archiver Archiver
}

type PipelineOptions struct {
	OutputPath string
	TempPaths  []string
	SaveToDB   bool
	SaveTemp   bool
}

// Pipeline runs fetch, summarize, render and notify for one window.
// Stage failures are collected and reported by mail instead of stopping
// the run.
type Pipeline struct {
	deps PipelineDeps
	opts PipelineOptions
	now  func() time.Time
}

func NewPipeline(deps PipelineDeps, opts PipelineOptions) *Pipeline {
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

// Run always attempts a notification and removes temp files on exit. The
// returned error reports only an undelivered notification.
func (p *Pipeline) Run(ctx context.Context, window daterange.Range, sourceTypes []string) (*database.Run, error) {
	run := &database.Run{
		ID:          uuid.NewString(),
		WindowStart: window.Start,
		WindowEnd:   window.End,
		Outcome:     database.OutcomeRunning,
		StartedAt:   p.now(),
	}
	p.recordStart(ctx, run)

	defer PurgeTemp(p.opts.TempPaths...)

	slog.Info("Pipeline started", "run_id", run.ID, "window", window.String(), "sources", strings.Join(sourceTypes, ","))

	var errs []string

	fetchOpts := FetchOptions{SourceTypes: sourceTypes, SaveToDB: p.opts.SaveToDB}
	if p.opts.SaveTemp && len(p.opts.TempPaths) > 0 {
		fetchOpts.TempPath = p.opts.TempPaths[0]
	}
	fetch := NewFetchTask(p.deps.Collector, p.deps.Items, window, fetchOpts)
	if err := Execute(ctx, fetch); err != nil {
		errs = append(errs, fmt.Sprintf("fetch: %v", err))
	}
	run.Fetched = fetch.Fetched
	run.Saved = fetch.Saved

	existing, err := p.deps.Items.CountPublishedBetween(ctx, storeRange(window))
	if err != nil {
		errs = append(errs, fmt.Sprintf("count stored items: %v", err))
	}

	kind := NotifyNoContent
	if fetch.Fetched > 0 || existing > 0 {
		slog.Info("Items in window", "count", existing)

		summarize := NewSummarizeTask(p.deps.Items, p.deps.NewSummarizer, p.deps.SummaryDelay, window)
		if err := Execute(ctx, summarize); err != nil {
			errs = append(errs, fmt.Sprintf("summarize: %v", err))
		}
		run.Summarized = summarize.Summarized

		render := NewRenderTask(p.deps.Items, p.deps.Renderer, window, p.opts.OutputPath)
		if err := Execute(ctx, render); err != nil {
			errs = append(errs, fmt.Sprintf("render: %v", err))
		} else if render.Rendered == 0 {
			errs = append(errs, errNoDigestOutput.Error())
		}
		run.Rendered = render.Rendered

		kind = NotifyDigest
	} else {
		slog.Info("No items in window", "window", window.String())
	}

	if len(errs) > 0 {
		if kind == NotifyNoContent {
			errs = append([]string{"no items were fetched and errors occurred"}, errs...)
		}
		kind = NotifyError
	}

	if kind == NotifyDigest {
		run.ArchiveKey = p.archive(ctx, window)
	}

	notify := NewNotifyTask(p.deps.Mailer, p.deps.Renderer, kind, window, errs, p.opts.OutputPath)
	notifyErr := Execute(ctx, notify)
	run.Notified = notify.Sent

	run.Errors = errs
	run.Outcome = outcomeFor(kind)
	finished := p.now()
	run.FinishedAt = &finished
	p.recordFinish(ctx, run)

	slog.Info("Pipeline finished",
		"run_id", run.ID,
		"outcome", run.Outcome,
		"fetched", run.Fetched,
		"saved", run.Saved,
		"summarized", run.Summarized,
		"rendered", run.Rendered,
		"errors", len(errs),
		"notified", run.Notified,
		"duration", finished.Sub(run.StartedAt))

	return run, notifyErr
}

func (p *Pipeline) archive(ctx context.Context, window daterange.Range) string {
	if p.deps.Archiver == nil {
		return ""
	}

	html, err := os.ReadFile(p.opts.OutputPath)
	if err != nil {
		slog.Warn("Digest not archived", "error", err)
		return ""
	}

	key, err := p.deps.Archiver.Store(ctx, window, html)
	if err != nil {
		slog.Warn("Digest not archived", "error", err)
		return ""
	}
	return key
}

func (p *Pipeline) recordStart(ctx context.Context, run *database.Run) {
	if p.deps.Runs == nil {
		return
	}
	if err := p.deps.Runs.CreateRun(ctx, run); err != nil {
		slog.Warn("Run not recorded", "run_id", run.ID, "error", err)
	}
}

func (p *Pipeline) recordFinish(ctx context.Context, run *database.Run) {
	if p.deps.Runs == nil {
		return
	}
	if err := p.deps.Runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Warn("Run result not recorded", "run_id", run.ID, "error", err)
	}
}

func outcomeFor(kind NotifyKind) string {
	switch kind {
	case NotifyDigest:
		return database.OutcomeDigest
	case NotifyNoContent:
		return database.OutcomeNoContent
	default:
		return database.OutcomeError
	}
}

// PurgeTemp removes the given temp files, ignoring those that do not exist.
func PurgeTemp(paths ...string) int {
	removed := 0
	for _, path := range paths {
		if path == "" {
			continue
		}
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, os.ErrNotExist):
		default:
			slog.Warn("Temp file not removed", "path", path, "error", err)
		}
	}
	slog.Debug("Temp files purged", "removed", removed)
	return removed
}
