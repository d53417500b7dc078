package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RSSSourceOptions wires an RSSSource. Zero-valued collaborators fall back
// to defaults; Limiter defaults to NoDelay and Cache is optional.
type RSSSourceOptions struct {
	Config    *Config
	Fetcher   *Fetcher
	Parser    *Parser
	Extractor *ContentExtractor
	Limiter   RateLimiter
	Cache     BodyCache
}

// RSSSource reads an OPML subscription list and normalizes the newest
// entries of every listed feed.
type RSSSource struct {
	config    *Config
	fetcher   *Fetcher
	parser    *Parser
	extractor *ContentExtractor
	limiter   RateLimiter
	cache     BodyCache
	requests  int
}

func NewRSSSource(opts RSSSourceOptions) *RSSSource {
	s := &RSSSource{
		config:    opts.Config,
		fetcher:   opts.Fetcher,
		parser:    opts.Parser,
		extractor: opts.Extractor,
		limiter:   opts.Limiter,
		cache:     opts.Cache,
	}
	if s.fetcher == nil {
		s.fetcher = NewFetcher(nil, "")
	}
	if s.parser == nil {
		s.parser = NewParser()
	}
	if s.extractor == nil {
		s.extractor = NewContentExtractor()
	}
	if s.limiter == nil {
		s.limiter = NoDelay{}
	}
	return s
}

func (s *RSSSource) Name() string {
	return s.config.Name
}

func (s *RSSSource) Type() string {
	return SourceTypeRSS
}

func (s *RSSSource) Fetch(ctx context.Context, window *Window) ([]Item, error) {
	subs, err := LoadOPML(s.config.OPML)
	if err != nil {
		return nil, err
	}

	s.requests = 0
	var items []Item

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		subItems, err := s.fetchSubscription(ctx, sub, window)
		if err != nil {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			slog.Warn("Subscription skipped", "group", s.config.Name, "source", sub.Name, "url", sub.URL, "error", err)
			continue
		}

		slog.Debug("Subscription processed", "group", s.config.Name, "source", sub.Name, "items", len(subItems))
		items = append(items, subItems...)
	}

	return items, nil
}

func (s *RSSSource) fetchSubscription(ctx context.Context, sub Subscription, window *Window) ([]Item, error) {
	data, err := s.feedBody(ctx, sub.URL)
	if err != nil {
		return nil, err
	}

	metadata, entries, err := s.parser.Run(data)
	if err != nil {
		return nil, err
	}

	if max := s.config.Settings.MaxItemsPerFeed; max > 0 && len(entries) > max {
		entries = entries[:max]
	}

	var items []Item
	for _, entry := range entries {
		item, err := s.normalize(ctx, sub, metadata, entry)
		if err != nil {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			slog.Debug("Entry skipped", "source", sub.Name, "title", entry.Title, "error", err)
			continue
		}
		if !window.Contains(item.Published) {
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

func (s *RSSSource) feedBody(ctx context.Context, url string) ([]byte, error) {
	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, url)
		if err != nil {
			slog.Warn("Feed cache read failed", "url", url, "error", err)
		} else if ok {
			slog.Debug("Feed served from cache", "url", url)
			return data, nil
		}
	}

	data, err := s.get(ctx, url)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, url, data); err != nil {
			slog.Warn("Feed cache write failed", "url", url, "error", err)
		}
	}

	return data, nil
}

// get waits on the limiter before every request except the first of a pass.
func (s *RSSSource) get(ctx context.Context, url string) ([]byte, error) {
	if s.requests > 0 {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	s.requests++

	return s.fetcher.Get(ctx, url, time.Duration(s.config.Settings.Timeout)*time.Second)
}

func (s *RSSSource) normalize(ctx context.Context, sub Subscription, metadata *Metadata, entry Entry) (item Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed entry: %v", r)
		}
	}()

	if entry.Title == "" && entry.Link == "" {
		return Item{}, fmt.Errorf("entry has neither title nor link")
	}

	published, err := ResolvePublished(entry)
	if err != nil {
		return Item{}, err
	}

	description := CleanText(entry.Description)
	if description == "" {
		description = CleanText(entry.Content)
	}
	if description == "" && s.config.Settings.ExtractContent && entry.Link != "" {
		description = s.extractArticle(ctx, entry.Link)
	}

	content := entry.Title
	if description != "" {
		content += "\n" + description
	}

	item = Item{
		ID:          Fingerprint(sub.Name, entry.Link, entry.Title),
		ManagerName: s.config.Name,
		SourceType:  SourceTypeRSS,
		SourceName:  sub.Name,
		Title:       entry.Title,
		Subtitle:    Truncate(description, s.config.Settings.SubtitleMaxRunes),
		Content:     content,
		Link:        entry.Link,
		Published:   published,
		RawData: map[string]any{
			"guid":          entry.GUID,
			"feed_title":    metadata.Title,
			"feed_url":      sub.URL,
			"authors":       entry.Authors,
			"categories":    entry.Categories,
			"published_raw": strings.TrimSpace(entry.PublishedRaw),
		},
	}

	return item, nil
}

func (s *RSSSource) extractArticle(ctx context.Context, link string) string {
	data, err := s.get(ctx, link)
	if err != nil {
		slog.Debug("Article fetch failed", "link", link, "error", err)
		return ""
	}

	text, err := s.extractor.Run(data, link)
	if err != nil {
		slog.Debug("Article extraction failed", "link", link, "error", err)
		return ""
	}

	return text
}
