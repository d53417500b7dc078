package database

import (
	"context"
	"time"

	"github.com/lysyi3m/music-digest/app/feed"
)

type ItemRepository interface {
	UpsertBatch(ctx context.Context, items []feed.Item) (int, error)

	QueryByDate(ctx context.Context, date time.Time) ([]feed.Item, error)
	QueryByDateRange(ctx context.Context, start, end time.Time) ([]feed.Item, error)
	QueryBySource(ctx context.Context, sourceName string, dateRange *DateRange) ([]feed.Item, error)
	Search(ctx context.Context, keyword string, dateRange *DateRange) ([]feed.Item, error)
	Statistics(ctx context.Context) (*Statistics, error)

	DeleteOlderThan(ctx context.Context, days int) (int, error)
	ClearAll(ctx context.Context) (int, error)

	ListUnsummarized(ctx context.Context, dateRange DateRange) ([]feed.Item, error)
	ListSummarized(ctx context.Context, dateRange DateRange) ([]feed.Item, error)
	CountPublishedBetween(ctx context.Context, dateRange DateRange) (int, error)
	SetSummary(ctx context.Context, id, summary string) (bool, error)
}

type RunRepository interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
}
