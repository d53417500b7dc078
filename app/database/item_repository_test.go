package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/music-digest/app/feed"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "news.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newsItem(id, source, title string, published time.Time) feed.Item {
	return feed.Item{
		ID:          id,
		ManagerName: "RSS",
		SourceType:  feed.SourceTypeRSS,
		SourceName:  source,
		Title:       title,
		Subtitle:    title,
		Content:     title + "\n" + title + " body",
		Link:        "https://example.com/" + id,
		Published:   published,
		RawData:     map[string]any{"guid": id},
	}
}

func TestUpsertBatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store := NewItemStore(db, fixedClock(now), time.UTC)

	items := []feed.Item{
		newsItem("1", "Pitchfork", "Album review", now.Add(-2*time.Hour)),
		newsItem("2", "NME", "Festival lineup", now.Add(-3*time.Hour)),
	}

	saved, err := store.UpsertBatch(ctx, items)
	if err != nil {
		t.Fatal(err)
	}
	if saved != 2 {
		t.Errorf("Expected 2 saved items, got %d", saved)
	}

	saved, err = store.UpsertBatch(ctx, items)
	if err != nil {
		t.Fatal(err)
	}
	if saved != 0 {
		t.Errorf("Expected 0 saved items on repeat, got %d", saved)
	}

	stored, err := store.QueryByDate(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Fatalf("Expected 2 stored items, got %d", len(stored))
	}
	if stored[0].RawData["guid"] != "1" {
		t.Errorf("Expected raw data to round-trip, got %v", stored[0].RawData)
	}
	if !stored[0].FetchTimestamp.Equal(now) {
		t.Errorf("Expected fetch timestamp %v, got %v", now, stored[0].FetchTimestamp)
	}
}

func TestUpsertBatchDuplicateIDsInOneBatch(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store := NewItemStore(db, fixedClock(now), time.UTC)

	first := newsItem("same", "Pitchfork", "First title", now)
	second := newsItem("same", "Pitchfork", "Second title", now)

	saved, err := store.UpsertBatch(ctx, []feed.Item{first, second})
	if err != nil {
		t.Fatal(err)
	}
	if saved != 1 {
		t.Errorf("Expected 1 saved item, got %d", saved)
	}

	stored, err := store.QueryByDate(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].Title != "First title" {
		t.Errorf("Expected the first item to win, got %+v", stored)
	}
}

func TestUpsertBatchSkipsInvalidItems(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store := NewItemStore(db, fixedClock(now), time.UTC)

	valid := newsItem("ok", "NME", "Valid", now)
	noID := newsItem("", "NME", "No id", now)
	undated := newsItem("undated", "NME", "Undated", time.Time{})

	saved, err := store.UpsertBatch(ctx, []feed.Item{noID, valid, undated})
	if err != nil {
		t.Fatal(err)
	}
	if saved != 1 {
		t.Errorf("Expected 1 saved item, got %d", saved)
	}
}

func TestUpsertBatchPreservesSummary(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store := NewItemStore(db, fixedClock(now), time.UTC)

	item := newsItem("1", "Pitchfork", "Album review", now)
	if _, err := store.UpsertBatch(ctx, []feed.Item{item}); err != nil {
		t.Fatal(err)
	}

	updated, err := store.SetSummary(ctx, "1", "专辑评论")
	if err != nil {
		t.Fatal(err)
	}
	if !updated {
		t.Error("Expected summary to be stored")
	}

	item.Title = "Album review (updated)"
	if _, err := store.UpsertBatch(ctx, []feed.Item{item}); err != nil {
		t.Fatal(err)
	}

	stored, err := store.QueryByDate(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(stored))
	}
	if stored[0].Summary == nil || *stored[0].Summary != "专辑评论" {
		t.Errorf("Expected summary to be preserved, got %v", stored[0].Summary)
	}
	if stored[0].Title != "Album review" {
		t.Errorf("Expected original title, got '%s'", stored[0].Title)
	}
}

func TestSetSummaryOnlyOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store := NewItemStore(db, fixedClock(now), time.UTC)

	if _, err := store.UpsertBatch(ctx, []feed.Item{newsItem("1", "NME", "Tour", now)}); err != nil {
		t.Fatal(err)
	}

	if _, err := store.SetSummary(ctx, "1", "  "); err == nil {
		t.Error("Expected error for empty summary")
	}

	updated, err := store.SetSummary(ctx, "1", "巡演")
	if err != nil || !updated {
		t.Fatalf("Expected first summary to be stored, got %v, %v", updated, err)
	}

	updated, err = store.SetSummary(ctx, "1", "另一个")
	if err != nil {
		t.Fatal(err)
	}
	if updated {
		t.Error("Expected second summary to be ignored")
	}

	updated, err = store.SetSummary(ctx, "missing", "摘要")
	if err != nil {
		t.Fatal(err)
	}
	if updated {
		t.Error("Expected no update for unknown id")
	}

	window := DateRange{Start: day(2024, 3, 10), End: day(2024, 3, 10)}
	summarized, err := store.ListSummarized(ctx, window)
	if err != nil {
		t.Fatal(err)
	}
	if len(summarized) != 1 || *summarized[0].Summary != "巡演" {
		t.Errorf("Expected the first summary to stick, got %+v", summarized)
	}
}

func TestPublishedRangeQueries(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewItemStore(db, fixedClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)), time.UTC)

	items := []feed.Item{
		newsItem("old", "NME", "Too old", time.Date(2024, 3, 6, 23, 0, 0, 0, time.UTC)),
		newsItem("a", "NME", "Start of window", time.Date(2024, 3, 7, 0, 30, 0, 0, time.UTC)),
		newsItem("b", "Pitchfork", "Middle", time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)),
		newsItem("c", "NME", "End of window", time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)),
		newsItem("new", "NME", "Today", time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)),
	}
	if _, err := store.UpsertBatch(ctx, items); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetSummary(ctx, "b", "中间"); err != nil {
		t.Fatal(err)
	}

	window := DateRange{Start: day(2024, 3, 7), End: day(2024, 3, 9)}

	count, err := store.CountPublishedBetween(ctx, window)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("Expected 3 items in window, got %d", count)
	}

	pending, err := store.ListUnsummarized(ctx, window)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 unsummarized items, got %d", len(pending))
	}
	if pending[0].ID != "c" || pending[1].ID != "a" {
		t.Errorf("Expected newest first [c a], got [%s %s]", pending[0].ID, pending[1].ID)
	}

	done, err := store.ListSummarized(ctx, window)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 || done[0].ID != "b" {
		t.Fatalf("Expected only 'b' summarized, got %+v", done)
	}
	if !done[0].Published.Equal(day(2024, 3, 8)) {
		t.Errorf("Expected published truncated to date, got %v", done[0].Published)
	}
}

func TestPublishedDateUsesStoreLocation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	shanghai := time.FixedZone("CST", 8*60*60)
	store := NewItemStore(db, fixedClock(time.Date(2024, 3, 10, 9, 0, 0, 0, shanghai)), shanghai)

	// 20:00 UTC on the 8th is already the 9th in UTC+8.
	item := newsItem("late", "NME", "Late night", time.Date(2024, 3, 8, 20, 0, 0, 0, time.UTC))
	if _, err := store.UpsertBatch(ctx, []feed.Item{item}); err != nil {
		t.Fatal(err)
	}

	count, err := store.CountPublishedBetween(ctx, DateRange{Start: day(2024, 3, 9), End: day(2024, 3, 9)})
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected item on the local date, got %d", count)
	}
}

func TestFetchDateQueries(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	monday := NewItemStore(db, fixedClock(time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)), time.UTC)
	tuesday := NewItemStore(db, fixedClock(time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)), time.UTC)

	if _, err := monday.UpsertBatch(ctx, []feed.Item{
		newsItem("m1", "NME", "Monday rock", day(2024, 3, 4)),
		newsItem("m2", "Pitchfork", "Monday jazz", day(2024, 3, 4)),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tuesday.UpsertBatch(ctx, []feed.Item{
		newsItem("t1", "NME", "Tuesday rock", day(2024, 3, 5)),
	}); err != nil {
		t.Fatal(err)
	}

	byDate, err := monday.QueryByDate(ctx, day(2024, 3, 4))
	if err != nil {
		t.Fatal(err)
	}
	if len(byDate) != 2 {
		t.Errorf("Expected 2 items fetched on Monday, got %d", len(byDate))
	}

	byRange, err := monday.QueryByDateRange(ctx, day(2024, 3, 4), day(2024, 3, 5))
	if err != nil {
		t.Fatal(err)
	}
	if len(byRange) != 3 {
		t.Errorf("Expected 3 items in range, got %d", len(byRange))
	}
	if byRange[0].ID != "t1" {
		t.Errorf("Expected newest item first, got '%s'", byRange[0].ID)
	}

	bySource, err := monday.QueryBySource(ctx, "NME", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(bySource) != 2 {
		t.Errorf("Expected 2 NME items, got %d", len(bySource))
	}

	bySource, err = monday.QueryBySource(ctx, "NME", &DateRange{Start: day(2024, 3, 5), End: day(2024, 3, 5)})
	if err != nil {
		t.Fatal(err)
	}
	if len(bySource) != 1 {
		t.Errorf("Expected 1 NME item on Tuesday, got %d", len(bySource))
	}

	none, err := monday.QueryByDate(ctx, day(2023, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("Expected empty non-nil result, got %v", none)
	}
}

func TestSearchEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store := NewItemStore(db, fixedClock(now), time.UTC)

	if _, err := store.UpsertBatch(ctx, []feed.Item{
		newsItem("1", "NME", "100% Pure Pop", now),
		newsItem("2", "NME", "1000 Pure Pop", now),
		newsItem("3", "NME", "snake_case band", now),
		newsItem("4", "NME", "snakeXcase band", now),
	}); err != nil {
		t.Fatal(err)
	}

	results, err := store.Search(ctx, "100%", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "1" {
		t.Errorf("Expected only the literal percent match, got %d results", len(results))
	}

	results, err = store.Search(ctx, "snake_case", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "3" {
		t.Errorf("Expected only the literal underscore match, got %d results", len(results))
	}

	results, err = store.Search(ctx, "PURE", &DateRange{Start: day(2024, 3, 10), End: day(2024, 3, 10)})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("Expected case-insensitive match on 2 items, got %d", len(results))
	}
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewItemStore(db, fixedClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)), time.UTC)

	stats, err := store.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 0 {
		t.Errorf("Expected 0 total, got %d", stats.Total)
	}
	if len(stats.SourceStats) != 0 || len(stats.RecentDates) != 0 {
		t.Errorf("Expected empty breakdowns, got %+v", stats)
	}
	if stats.Earliest != nil || stats.Latest != nil {
		t.Errorf("Expected no date range on empty store, got %v %v", stats.Earliest, stats.Latest)
	}

	earlier := NewItemStore(db, fixedClock(time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)), time.UTC)
	if _, err := earlier.UpsertBatch(ctx, []feed.Item{newsItem("e1", "NME", "Earlier", day(2024, 3, 8))}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpsertBatch(ctx, []feed.Item{
		newsItem("n1", "NME", "One", day(2024, 3, 10)),
		newsItem("p1", "Pitchfork", "Two", day(2024, 3, 10)),
	}); err != nil {
		t.Fatal(err)
	}

	stats, err = store.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 {
		t.Errorf("Expected 3 total, got %d", stats.Total)
	}
	if len(stats.SourceStats) != 2 || stats.SourceStats[0].SourceName != "NME" || stats.SourceStats[0].Count != 2 {
		t.Errorf("Expected NME first with 2 items, got %+v", stats.SourceStats)
	}
	if len(stats.RecentDates) != 2 || stats.RecentDates[0].Date != "2024-03-10" {
		t.Errorf("Expected most recent date first, got %+v", stats.RecentDates)
	}
	if stats.Earliest == nil || *stats.Earliest != "2024-03-08" {
		t.Errorf("Expected earliest '2024-03-08', got %v", stats.Earliest)
	}
	if stats.Latest == nil || *stats.Latest != "2024-03-10" {
		t.Errorf("Expected latest '2024-03-10', got %v", stats.Latest)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, age := range []int{90, 91} {
		fetched := now.AddDate(0, 0, -age)
		store := NewItemStore(db, fixedClock(fetched), time.UTC)
		item := newsItem(fetched.Format(DateLayout), "NME", "Aged item", fetched)
		if _, err := store.UpsertBatch(ctx, []feed.Item{item}); err != nil {
			t.Fatal(err)
		}
	}

	store := NewItemStore(db, fixedClock(now), time.UTC)
	deleted, err := store.DeleteOlderThan(ctx, 90)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted item, got %d", deleted)
	}

	remaining, err := store.QueryByDateRange(ctx, day(2024, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].ID != now.AddDate(0, 0, -90).Format(DateLayout) {
		t.Errorf("Expected the 90-day-old item to remain, got %+v", remaining)
	}

	if _, err := store.DeleteOlderThan(ctx, -1); err == nil {
		t.Error("Expected error for negative days")
	}
}

func TestClearAllReturnsPriorCount(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store := NewItemStore(db, fixedClock(now), time.UTC)

	if _, err := store.UpsertBatch(ctx, []feed.Item{
		newsItem("1", "NME", "One", now),
		newsItem("2", "NME", "Two", now),
	}); err != nil {
		t.Fatal(err)
	}

	cleared, err := store.ClearAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cleared != 2 {
		t.Errorf("Expected 2 cleared items, got %d", cleared)
	}

	cleared, err = store.ClearAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cleared != 0 {
		t.Errorf("Expected 0 on empty store, got %d", cleared)
	}
}

func TestSameFingerprintSavedOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewItemStore(db, fixedClock(time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)), time.UTC)

	id := feed.Fingerprint("A", "https://a.example/x", "X")
	morning := newsItem(id, "A", "X", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	evening := newsItem(id, "A", "X", time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC))

	saved, err := store.UpsertBatch(ctx, []feed.Item{morning, evening})
	if err != nil {
		t.Fatal(err)
	}
	if saved != 1 {
		t.Errorf("Expected 1 saved item, got %d", saved)
	}
}

func TestDateRangeOrderedByPublished(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// Fetched on consecutive days, published in reverse order.
	fetches := []struct {
		id        string
		fetched   time.Time
		published time.Time
	}{
		{"f1", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), day(2023, 12, 31)},
		{"f2", time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), day(2023, 12, 20)},
		{"f3", time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), day(2024, 1, 3)},
	}
	for _, f := range fetches {
		store := NewItemStore(db, fixedClock(f.fetched), time.UTC)
		if _, err := store.UpsertBatch(ctx, []feed.Item{newsItem(f.id, "A", f.id, f.published)}); err != nil {
			t.Fatal(err)
		}
	}

	store := NewItemStore(db, fixedClock(day(2024, 1, 4)), time.UTC)
	items, err := store.QueryByDateRange(ctx, day(2024, 1, 1), day(2024, 1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].ID != "f1" || items[1].ID != "f2" {
		t.Errorf("Expected [f1 f2] by published date, got [%s %s]", items[0].ID, items[1].ID)
	}
}
