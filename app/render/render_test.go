package render

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/music-digest/app/daterange"
	"github.com/lysyi3m/music-digest/app/feed"
)

func summarized(id, source, summary string, published time.Time) feed.Item {
	item := feed.Item{
		ID:         id,
		SourceName: source,
		Title:      "title " + id,
		Link:       "https://example.com/" + id,
		Published:  published,
	}
	if summary != "" {
		item.Summary = &summary
	}
	return item
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	r.now = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }
	return r
}

func TestGroupBySource(t *testing.T) {
	items := []feed.Item{
		summarized("1", "NME", "旧闻", time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)),
		summarized("2", "Pitchfork", "评论", time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)),
		summarized("3", "NME", "新闻", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)),
		summarized("4", "NME", "", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)),
	}

	groups := GroupBySource(items)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if groups[0].SourceName != "Pitchfork" || groups[1].SourceName != "NME" {
		t.Errorf("Expected sources in descending order, got %s, %s", groups[0].SourceName, groups[1].SourceName)
	}
	if len(groups[1].Lines) != 2 {
		t.Fatalf("Expected 2 NME lines, got %d", len(groups[1].Lines))
	}
	if groups[1].Lines[0].Summary != "新闻" || groups[1].Lines[0].Date != "(3-9)" {
		t.Errorf("Expected newest NME line first, got %+v", groups[1].Lines[0])
	}
}

func TestWriteDigest(t *testing.T) {
	r := newTestRenderer(t)
	path := filepath.Join(t.TempDir(), "out", "news_summary.html")

	items := []feed.Item{
		summarized("1", "NME", "乐队<宣布>巡演", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)),
		summarized("2", "NME", "", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)),
	}

	count, err := r.WriteDigest(items, path)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected 1 rendered item, got %d", count)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)
	for _, want := range []string{"<title>音乐新闻聚合</title>", ">NME</b>", "(3-9)", "[查看]", `href="https://example.com/1"`, "乐队&lt;宣布&gt;巡演"} {
		if !strings.Contains(html, want) {
			t.Errorf("Expected digest to contain %q", want)
		}
	}
}

func TestDigestWithoutSummaries(t *testing.T) {
	r := newTestRenderer(t)
	_, err := r.Digest([]feed.Item{summarized("1", "NME", "", time.Now())})
	if !errors.Is(err, ErrNoItems) {
		t.Errorf("Expected ErrNoItems, got %v", err)
	}
}

func TestNotices(t *testing.T) {
	r := newTestRenderer(t)
	window := daterange.Range{
		Start: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC),
	}

	empty, err := r.NoContent(window)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(empty), "2024-03-09 到 2024-03-09") {
		t.Error("Expected window description in no-content notice")
	}
	if !strings.Contains(string(empty), "无内容通知") {
		t.Error("Expected no-content heading")
	}

	failure, err := r.Failure(window, []string{"fetch: feed down", "summarize: <quota>"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(failure), "fetch: feed down") || !strings.Contains(string(failure), "summarize: &lt;quota&gt;") {
		t.Errorf("Expected escaped error lines, got %s", failure)
	}

	if r.DigestSubject() != "音乐新闻日报 - 2024-03-10" {
		t.Errorf("Unexpected digest subject '%s'", r.DigestSubject())
	}
	if r.FailureSubject() != "音乐新闻日报 - 错误通知 - 2024-03-10" {
		t.Errorf("Unexpected failure subject '%s'", r.FailureSubject())
	}
	if r.NoContentSubject() != "音乐新闻日报 - 无内容通知 - 2024-03-10" {
		t.Errorf("Unexpected no-content subject '%s'", r.NoContentSubject())
	}
}
