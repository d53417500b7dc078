package tasks

import (
	"context"

	"github.com/lysyi3m/music-digest/app/aggregator"
	"github.com/lysyi3m/music-digest/app/archive"
	"github.com/lysyi3m/music-digest/app/database"
	"github.com/lysyi3m/music-digest/app/daterange"
	"github.com/lysyi3m/music-digest/app/feed"
	"github.com/lysyi3m/music-digest/app/notify"
	"github.com/lysyi3m/music-digest/app/render"
	"github.com/lysyi3m/music-digest/app/summarizer"
)

var (
	_ Collector  = (*aggregator.Aggregator)(nil)
	_ Summarizer = (*summarizer.Client)(nil)
	_ Renderer   = (*render.Renderer)(nil)
	_ Mailer     = (*notify.Mailer)(nil)
	_ Archiver   = (*archive.S3Archive)(nil)
)

// Collector gathers deduplicated items from every registered source.
type Collector interface {
	Collect(ctx context.Context, window *feed.Window, sourceTypes []string) ([]feed.Item, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, title, subtitle string) (string, error)
}

// SummarizerFactory builds the summarizer on first use so a missing API key
// only matters when there is something to summarize.
type SummarizerFactory func() (Summarizer, error)

type Renderer interface {
	WriteDigest(items []feed.Item, path string) (int, error)
	NoContent(window daterange.Range) ([]byte, error)
	Failure(window daterange.Range, errs []string) ([]byte, error)
	DigestSubject() string
	NoContentSubject() string
	FailureSubject() string
}

type Mailer interface {
	Send(ctx context.Context, subject, html string) bool
}

type Archiver interface {
	Store(ctx context.Context, window daterange.Range, html []byte) (string, error)
}

// PipelineRunner runs the full pipeline for one window.
type PipelineRunner interface {
	Run(ctx context.Context, window daterange.Range, sourceTypes []string) (*database.Run, error)
}
