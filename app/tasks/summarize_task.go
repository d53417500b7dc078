package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/music-digest/app/database"
	"github.com/lysyi3m/music-digest/app/daterange"
	"github.com/lysyi3m/music-digest/app/feed"
)

// SummarizeTask fills in summaries for items published in the window that
// have none. A failed summary falls back to the item title.
type SummarizeTask struct {
	Task
	itemRepo      database.ItemRepository
	newSummarizer SummarizerFactory
	limiter       feed.RateLimiter
	window        daterange.Range

	Pending    int
	Summarized int
	Fallbacks  int
}

func NewSummarizeTask(itemRepo database.ItemRepository, newSummarizer SummarizerFactory, limiter feed.RateLimiter, window daterange.Range) *SummarizeTask {
	if limiter == nil {
		limiter = feed.NoDelay{}
	}
	return &SummarizeTask{
		Task:          NewTask(TaskTypeSummarize, window.String()),
		itemRepo:      itemRepo,
		newSummarizer: newSummarizer,
		limiter:       limiter,
		window:        window,
	}
}

func (t *SummarizeTask) Execute(ctx context.Context) error {
	items, err := t.itemRepo.ListUnsummarized(ctx, storeRange(t.window))
	if err != nil {
		return fmt.Errorf("failed to list unsummarized items: %w", err)
	}
	t.Pending = len(items)

	if len(items) == 0 {
		slog.Info("No items need summarizing", "window", t.Scope)
		return nil
	}

	summarizer, err := t.newSummarizer()
	if err != nil {
		return fmt.Errorf("failed to create summarizer: %w", err)
	}

	for i, item := range items {
		if i > 0 {
			if err := t.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		summary, err := summarizer.Summarize(ctx, item.Title, item.Subtitle)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Summary failed, using title", "id", item.ID, "title", item.Title, "error", err)
			summary = item.Title
			t.Fallbacks++
		}

		updated, err := t.itemRepo.SetSummary(ctx, item.ID, summary)
		if err != nil {
			slog.Error("Failed to store summary", "id", item.ID, "error", err)
			continue
		}
		if updated {
			t.Summarized++
		}

		slog.Debug("Summarize progress", "done", i+1, "total", len(items), "title", item.Title, "summary", summary)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"window", t.Scope,
		"duration", t.GetDuration(),
		"pending", t.Pending,
		"summarized", t.Summarized,
		"fallbacks", t.Fallbacks)

	return nil
}

func storeRange(window daterange.Range) database.DateRange {
	return database.DateRange{Start: window.Start, End: window.End}
}
