package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/music-digest/app/database"
	"github.com/lysyi3m/music-digest/app/daterange"
)

// RenderTask writes the digest of summarized items in the window to a file.
// Rendered stays zero when there is nothing to render.
type RenderTask struct {
	Task
	itemRepo   database.ItemRepository
	renderer   Renderer
	window     daterange.Range
	outputPath string

	Rendered int
}

func NewRenderTask(itemRepo database.ItemRepository, renderer Renderer, window daterange.Range, outputPath string) *RenderTask {
	return &RenderTask{
		Task:       NewTask(TaskTypeRender, window.String()),
		itemRepo:   itemRepo,
		renderer:   renderer,
		window:     window,
		outputPath: outputPath,
	}
}

func (t *RenderTask) Execute(ctx context.Context) error {
	items, err := t.itemRepo.ListSummarized(ctx, storeRange(t.window))
	if err != nil {
		return fmt.Errorf("failed to list summarized items: %w", err)
	}

	if len(items) == 0 {
		slog.Info("No summarized items to render, run summarize first", "window", t.Scope)
		return nil
	}

	rendered, err := t.renderer.WriteDigest(items, t.outputPath)
	if err != nil {
		return fmt.Errorf("failed to render digest: %w", err)
	}
	t.Rendered = rendered

	slog.Info("Task completed",
		"type", string(t.Type),
		"window", t.Scope,
		"duration", t.GetDuration(),
		"rendered", t.Rendered,
		"output", t.outputPath)

	return nil
}
