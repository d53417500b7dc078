package database

import (
	"time"
)

const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02 15:04:05"
)

// Clock supplies the current time for fetch timestamps and retention cutoffs.
type Clock func() time.Time

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) bounds() (string, string) {
	return r.Start.Format(DateLayout), r.End.Format(DateLayout)
}

type SourceCount struct {
	SourceName string `json:"source_name"`
	Count      int    `json:"count"`
}

type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Statistics struct {
	Total       int           `json:"total"`
	SourceStats []SourceCount `json:"source_stats"`
	RecentDates []DateCount   `json:"recent_dates"`
	Earliest    *string       `json:"earliest"`
	Latest      *string       `json:"latest"`
}

const (
	OutcomeRunning   = "running"
	OutcomeDigest    = "digest"
	OutcomeNoContent = "no_content"
	OutcomeError     = "error"
)

// Run records one execution of the full pipeline.
type Run struct {
	ID          string     `json:"id"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Outcome     string     `json:"outcome"`
	Fetched     int        `json:"fetched"`
	Saved       int        `json:"saved"`
	Summarized  int        `json:"summarized"`
	Rendered    int        `json:"rendered"`
	Errors      []string   `json:"errors"`
	Notified    bool       `json:"notified"`
	ArchiveKey  string     `json:"archive_key,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
