package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/lysyi3m/music-digest/app/database"
	"github.com/lysyi3m/music-digest/app/daterange"
	"github.com/lysyi3m/music-digest/app/feed"
)

type FetchOptions struct {
	SourceTypes []string
	// SaveToDB persists the collected items.
	SaveToDB bool
	// TempPath, when set, receives the collected items as JSON.
	TempPath string
}

// FetchTask collects items for a window and persists the new ones.
type FetchTask struct {
	Task
	collector Collector
	itemRepo  database.ItemRepository
	window    daterange.Range
	opts      FetchOptions

	Fetched int
	Saved   int
	Items   []feed.Item
}

func NewFetchTask(collector Collector, itemRepo database.ItemRepository, window daterange.Range, opts FetchOptions) *FetchTask {
	return &FetchTask{
		Task:      NewTask(TaskTypeFetch, window.String()),
		collector: collector,
		itemRepo:  itemRepo,
		window:    window,
		opts:      opts,
	}
}

func (t *FetchTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	items, err := t.collector.Collect(ctx, t.window.Window(), t.opts.SourceTypes)
	if err != nil {
		return fmt.Errorf("failed to collect items: %w", err)
	}
	t.Items = items
	t.Fetched = len(items)

	if len(items) > 0 && t.opts.SaveToDB {
		saved, err := t.itemRepo.UpsertBatch(ctx, items)
		if err != nil {
			return fmt.Errorf("failed to save items: %w", err)
		}
		t.Saved = saved
	}

	if len(items) > 0 && t.opts.TempPath != "" {
		if err := writeTempItems(t.opts.TempPath, items); err != nil {
			slog.Warn("Temp file not written", "path", t.opts.TempPath, "error", err)
		}
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"window", t.Scope,
		"duration", t.GetDuration(),
		"fetched", t.Fetched,
		"saved", t.Saved)

	return nil
}

func writeTempItems(path string, items []feed.Item) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	return nil
}
