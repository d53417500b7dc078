package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"time"

	"github.com/lysyi3m/music-digest/app/feed"
)

type SourceInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Summary struct {
	TotalSources int            `json:"total_sources"`
	SourceTypes  map[string]int `json:"source_types"`
	Sources      []SourceInfo   `json:"sources"`
}

// Aggregator fans a fetch out over every registered source, then merges,
// deduplicates and orders the results.
type Aggregator struct {
	sources []feed.Source
}

func New() *Aggregator {
	return &Aggregator{}
}

func (a *Aggregator) Register(source feed.Source) {
	a.sources = append(a.sources, source)
	slog.Info("Source registered", "name", source.Name(), "type", source.Type())
}

func (a *Aggregator) Sources() []feed.Source {
	return slices.Clone(a.sources)
}

// Collect fetches from every source whose type is in sourceTypes (all
// sources when empty). A failing source is logged and skipped.
func (a *Aggregator) Collect(ctx context.Context, window *feed.Window, sourceTypes []string) ([]feed.Item, error) {
	start := time.Now()
	var all []feed.Item

	for _, source := range a.sources {
		if len(sourceTypes) > 0 && !slices.Contains(sourceTypes, source.Type()) {
			slog.Debug("Source skipped by type filter", "name", source.Name(), "type", source.Type())
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		items, err := a.fetch(ctx, source, window)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Error("Source failed", "name", source.Name(), "type", source.Type(), "error", err)
			continue
		}

		slog.Info("Source fetched", "name", source.Name(), "items", len(items))
		all = append(all, items...)
	}

	unique := Deduplicate(all)
	SortByPublished(unique)

	slog.Info("Collection completed",
		"duration", time.Since(start),
		"fetched", len(all),
		"unique", len(unique))

	return unique, nil
}

func (a *Aggregator) fetch(ctx context.Context, source feed.Source, window *feed.Window) (items []feed.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source panicked: %v", r)
		}
	}()
	return source.Fetch(ctx, window)
}

func (a *Aggregator) Summary() Summary {
	summary := Summary{
		TotalSources: len(a.sources),
		SourceTypes:  make(map[string]int),
		Sources:      make([]SourceInfo, 0, len(a.sources)),
	}

	for _, source := range a.sources {
		summary.Sources = append(summary.Sources, SourceInfo{Name: source.Name(), Type: source.Type()})
		summary.SourceTypes[source.Type()]++
	}

	return summary
}

// Deduplicate keeps the first occurrence of each item. Items are keyed by
// ID, or by title and link when the ID is missing.
func Deduplicate(items []feed.Item) []feed.Item {
	seen := make(map[string]bool, len(items))
	unique := make([]feed.Item, 0, len(items))

	for _, item := range items {
		key := "id:" + item.ID
		if item.ID == "" {
			key = "tl:" + item.Title + "_" + item.Link
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, item)
	}

	return unique
}

// SortByPublished orders items newest first, keeping the relative order
// of items published at the same instant.
func SortByPublished(items []feed.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})
}

// Deps are the shared collaborators used to build sources from config.
type Deps struct {
	HTTPClient *http.Client
	UserAgent  string
	Cache      feed.BodyCache
	// Limiter overrides the per-group interval limiter when set.
	Limiter feed.RateLimiter
}

// Bootstrap registers one source per enabled config.
func (a *Aggregator) Bootstrap(configs []*feed.Config, deps Deps) error {
	fetcher := feed.NewFetcher(deps.HTTPClient, deps.UserAgent)
	parser := feed.NewParser()
	extractor := feed.NewContentExtractor()

	for _, config := range configs {
		if err := feed.ValidateConfig(config); err != nil {
			return fmt.Errorf("invalid source group %s: %w", config.Name, err)
		}
		if !config.Settings.Enabled {
			continue
		}

		limiter := deps.Limiter
		if limiter == nil {
			limiter = feed.NewIntervalLimiter(config.Settings.RequestInterval())
		}

		switch config.Type {
		case feed.SourceTypeRSS:
			a.Register(feed.NewRSSSource(feed.RSSSourceOptions{
				Config:    config,
				Fetcher:   fetcher,
				Parser:    parser,
				Extractor: extractor,
				Limiter:   limiter,
				Cache:     deps.Cache,
			}))
		default:
			return fmt.Errorf("unsupported source type: %s", config.Type)
		}
	}

	return nil
}
