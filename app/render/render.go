package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lysyi3m/music-digest/app/daterange"
	"github.com/lysyi3m/music-digest/app/feed"
)

//go:embed templates/*.html
var templateFS embed.FS

var ErrNoItems = errors.New("no summarized items to render")

const subjectPrefix = "音乐新闻日报"

// Group is one source card in the digest.
type Group struct {
	SourceName string
	Lines      []Line
}

type Line struct {
	Summary string
	Date    string
	Link    string
}

type notice struct {
	Title       string
	Heading     string
	Accent      template.CSS
	Window      string
	Errors      []string
	GeneratedAt string
}

// Renderer turns stored items and run outcomes into email-ready HTML.
type Renderer struct {
	templates *template.Template
	now       func() time.Time
}

func New() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{templates: tmpl, now: time.Now}, nil
}

// Digest renders summarized items grouped by source. Items without a
// summary are left out.
func (r *Renderer) Digest(items []feed.Item) ([]byte, error) {
	groups := GroupBySource(items)
	if len(groups) == 0 {
		return nil, ErrNoItems
	}
	return r.execute("digest.html", struct{ Groups []Group }{groups})
}

// WriteDigest renders the digest to path and returns the number of lines
// written.
func (r *Renderer) WriteDigest(items []feed.Item, path string) (int, error) {
	html, err := r.Digest(items)
	if err != nil {
		return 0, err
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write digest: %w", err)
	}

	count := 0
	for _, item := range items {
		if item.HasSummary() {
			count++
		}
	}
	return count, nil
}

func (r *Renderer) NoContent(window daterange.Range) ([]byte, error) {
	return r.execute("notice.html", notice{
		Title:       "无内容通知",
		Heading:     "📭 无内容通知",
		Accent:      "#3498db",
		Window:      describe(window),
		GeneratedAt: r.now().Format("2006-01-02 15:04:05"),
	})
}

func (r *Renderer) Failure(window daterange.Range, errs []string) ([]byte, error) {
	if len(errs) == 0 {
		errs = []string{"未知错误"}
	}
	return r.execute("notice.html", notice{
		Title:       "错误通知",
		Heading:     "⚠️ 执行错误通知",
		Accent:      "#e74c3c",
		Window:      describe(window),
		Errors:      errs,
		GeneratedAt: r.now().Format("2006-01-02 15:04:05"),
	})
}

func (r *Renderer) DigestSubject() string {
	return fmt.Sprintf("%s - %s", subjectPrefix, r.now().Format("2006-01-02"))
}

func (r *Renderer) NoContentSubject() string {
	return fmt.Sprintf("%s - 无内容通知 - %s", subjectPrefix, r.now().Format("2006-01-02"))
}

func (r *Renderer) FailureSubject() string {
	return fmt.Sprintf("%s - 错误通知 - %s", subjectPrefix, r.now().Format("2006-01-02"))
}

func (r *Renderer) execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// GroupBySource orders summarized items by source name then publication
// time, both descending, and groups them per source.
func GroupBySource(items []feed.Item) []Group {
	summarized := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if item.HasSummary() {
			summarized = append(summarized, item)
		}
	}

	sort.SliceStable(summarized, func(i, j int) bool {
		if summarized[i].SourceName != summarized[j].SourceName {
			return summarized[i].SourceName > summarized[j].SourceName
		}
		return summarized[i].Published.After(summarized[j].Published)
	})

	var groups []Group
	for _, item := range summarized {
		if len(groups) == 0 || groups[len(groups)-1].SourceName != item.SourceName {
			groups = append(groups, Group{SourceName: item.SourceName})
		}
		last := &groups[len(groups)-1]
		last.Lines = append(last.Lines, Line{
			Summary: *item.Summary,
			Date:    DateMarker(item.Published),
			Link:    item.Link,
		})
	}
	return groups
}

// DateMarker renders a publication date as (M-D).
func DateMarker(t time.Time) string {
	return "(" + t.Format("1-2") + ")"
}

func describe(window daterange.Range) string {
	return daterange.FormatDateOnly(window.Start) + " 到 " + daterange.FormatDateOnly(window.End)
}
