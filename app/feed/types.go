package feed

import (
	"context"
	"time"
)

const SourceTypeRSS = "rss"

// Item is the canonical news record shared by every stage. Summary is nil
// until the summarization stage fills it in; Subtitle and RawData may be empty.
type Item struct {
	ID             string         `json:"id"`
	ManagerName    string         `json:"manager_name"`
	SourceType     string         `json:"source_type"`
	SourceName     string         `json:"source_name"`
	Title          string         `json:"title"`
	Subtitle       string         `json:"subtitle"`
	Content        string         `json:"content"`
	Link           string         `json:"link"`
	Published      time.Time      `json:"published"`
	Summary        *string        `json:"summary"`
	FetchTimestamp time.Time      `json:"fetch_timestamp,omitzero"`
	RawData        map[string]any `json:"raw_data,omitempty"`
}

func (i Item) HasSummary() bool {
	return i.Summary != nil && *i.Summary != ""
}

// Window is an inclusive time range. A nil window matches everything.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w *Window) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	return !t.Before(w.Start) && !t.After(w.End)
}

// Source is anything that can produce canonical items for a window.
type Source interface {
	Name() string
	Type() string
	Fetch(ctx context.Context, window *Window) ([]Item, error)
}

// Feed processing types

type Metadata struct {
	Title string
	Link  string
}

// Entry is one parsed feed entry before normalization.
type Entry struct {
	GUID         string
	Title        string
	Link         string
	Description  string
	Content      string
	PublishedRaw string
	UpdatedRaw   string
	Published    *time.Time
	Updated      *time.Time
	Authors      []string
	Categories   []string
}

// Subscription is one feed listed in an OPML document.
type Subscription struct {
	Name string
	URL  string
}

// Configuration types

type Config struct {
	Name     string         `yaml:"name"` // Derived from filename when empty
	Type     string         `yaml:"type"`
	OPML     string         `yaml:"opml"`
	Settings ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Enabled           bool `yaml:"enabled"`
	Timeout           int  `yaml:"timeout"` // seconds
	MaxItemsPerFeed   int  `yaml:"max_items_per_feed"`
	RequestIntervalMs *int `yaml:"request_interval_ms"`
	SubtitleMaxRunes  int  `yaml:"subtitle_max_runes"`
	ExtractContent    bool `yaml:"extract_content"` // fetch article pages for entries without a description
}

func (s ConfigSettings) RequestInterval() time.Duration {
	if s.RequestIntervalMs == nil {
		return time.Second
	}
	return time.Duration(*s.RequestIntervalMs) * time.Millisecond
}
