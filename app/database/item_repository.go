package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/lysyi3m/music-digest/app/feed"
)

var sqlb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var itemColumns = []string{
	"id", "manager_name", "source_type", "source_name", "published", "title",
	"subtitle", "summary", "content", "link", "fetch_timestamp", "raw_data",
}

// Stored timestamps carry no zone; they are wall-clock values in the
// store's location.
var storedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	TimestampLayout,
	"2006-01-02T15:04:05",
	DateLayout,
}

// ItemStore persists news items in the news_items table.
type ItemStore struct {
	db       *DB
	clock    Clock
	location *time.Location
}

func NewItemStore(db *DB, clock Clock, location *time.Location) *ItemStore {
	if clock == nil {
		clock = time.Now
	}
	if location == nil {
		location = time.Local
	}
	return &ItemStore{db: db, clock: clock, location: location}
}

// UpsertBatch inserts items whose id is not stored yet and returns how many
// were inserted. Known ids are skipped so stored summaries survive; a failing
// row is logged and left out of the count.
func (s *ItemStore) UpsertBatch(ctx context.Context, items []feed.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fetchTimestamp := s.clock().In(s.location).Format(TimestampLayout)
	saved := 0

	for _, item := range items {
		inserted, err := s.insertItem(ctx, tx, item, fetchTimestamp)
		if err != nil {
			slog.Warn("Item not saved", "id", item.ID, "title", item.Title, "error", err)
			continue
		}
		if !inserted {
			slog.Debug("Item already stored, skipping", "id", item.ID, "title", item.Title)
			continue
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}

	slog.Info("Batch saved", "saved", saved, "total", len(items))
	return saved, nil
}

func (s *ItemStore) insertItem(ctx context.Context, tx *sql.Tx, item feed.Item, fetchTimestamp string) (bool, error) {
	if item.ID == "" {
		return false, fmt.Errorf("item has no id")
	}
	if item.Published.IsZero() {
		return false, fmt.Errorf("item has no publication time")
	}

	rawData := item.RawData
	if rawData == nil {
		rawData = map[string]any{}
	}
	rawJSON, err := json.Marshal(rawData)
	if err != nil {
		return false, fmt.Errorf("failed to encode raw data: %w", err)
	}

	var summary any
	if item.Summary != nil {
		summary = *item.Summary
	}

	query, args, err := sqlb.Insert(newsTable).
		Columns(itemColumns...).
		Values(
			item.ID, item.ManagerName, item.SourceType, item.SourceName,
			item.Published.In(s.location).Format(DateLayout), item.Title,
			item.Subtitle, summary, item.Content, item.Link, fetchTimestamp, string(rawJSON),
		).
		Suffix("ON CONFLICT(id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build insert: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

// QueryByDate returns items fetched on the given calendar date.
func (s *ItemStore) QueryByDate(ctx context.Context, date time.Time) ([]feed.Item, error) {
	return s.queryItems(ctx, s.selectItems().
		Where(sq.Expr("date(fetch_timestamp) = ?", date.Format(DateLayout))))
}

// QueryByDateRange returns items fetched between start and end, inclusive.
func (s *ItemStore) QueryByDateRange(ctx context.Context, start, end time.Time) ([]feed.Item, error) {
	return s.queryItems(ctx, s.selectItems().
		Where(fetchDateBetween(DateRange{Start: start, End: end})))
}

func (s *ItemStore) QueryBySource(ctx context.Context, sourceName string, dateRange *DateRange) ([]feed.Item, error) {
	query := s.selectItems().Where(sq.Eq{"source_name": sourceName})
	if dateRange != nil {
		query = query.Where(fetchDateBetween(*dateRange))
	}
	return s.queryItems(ctx, query)
}

// Search matches keyword as a case-insensitive substring of the title or
// content.
func (s *ItemStore) Search(ctx context.Context, keyword string, dateRange *DateRange) ([]feed.Item, error) {
	pattern := "%" + escapeLike(keyword) + "%"
	query := s.selectItems().Where(sq.Or{
		sq.Expr(`title LIKE ? ESCAPE '\'`, pattern),
		sq.Expr(`content LIKE ? ESCAPE '\'`, pattern),
	})
	if dateRange != nil {
		query = query.Where(fetchDateBetween(*dateRange))
	}
	return s.queryItems(ctx, query)
}

// ListUnsummarized returns items published in the range that have no summary yet.
func (s *ItemStore) ListUnsummarized(ctx context.Context, dateRange DateRange) ([]feed.Item, error) {
	return s.queryItems(ctx, s.selectItems().
		Where(publishedBetween(dateRange)).
		Where("(summary IS NULL OR summary = '')"))
}

// ListSummarized returns items published in the range that carry a summary.
func (s *ItemStore) ListSummarized(ctx context.Context, dateRange DateRange) ([]feed.Item, error) {
	return s.queryItems(ctx, s.selectItems().
		Where(publishedBetween(dateRange)).
		Where("summary IS NOT NULL AND summary != ''"))
}

func (s *ItemStore) CountPublishedBetween(ctx context.Context, dateRange DateRange) (int, error) {
	query, args, err := sqlb.Select("COUNT(*)").From(newsTable).Where(publishedBetween(dateRange)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

// SetSummary stores summary only when the item has none yet. It reports
// whether a row changed.
func (s *ItemStore) SetSummary(ctx context.Context, id, summary string) (bool, error) {
	if strings.TrimSpace(summary) == "" {
		return false, fmt.Errorf("summary is empty")
	}

	query, args, err := sqlb.Update(newsTable).
		Set("summary", summary).
		Where(sq.Eq{"id": id}).
		Where("(summary IS NULL OR summary = '')").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to set summary: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (s *ItemStore) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		SourceStats: []SourceCount{},
		RecentDates: []DateCount{},
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+newsTable).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_name, COUNT(*) AS count
		FROM news_items
		GROUP BY source_name
		ORDER BY count DESC, source_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get source stats: %w", err)
	}
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.SourceName, &sc.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan source stats: %w", err)
		}
		stats.SourceStats = append(stats.SourceStats, sc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source stats: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT date(fetch_timestamp) AS fetch_date, COUNT(*) AS count
		FROM news_items
		GROUP BY date(fetch_timestamp)
		ORDER BY date(fetch_timestamp) DESC
		LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("failed to get date stats: %w", err)
	}
	for rows.Next() {
		var dc DateCount
		var date sql.NullString
		if err := rows.Scan(&date, &dc.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan date stats: %w", err)
		}
		dc.Date = date.String
		stats.RecentDates = append(stats.RecentDates, dc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating date stats: %w", err)
	}

	var earliest, latest sql.NullString
	err = s.db.QueryRowContext(ctx,
		"SELECT MIN(date(fetch_timestamp)), MAX(date(fetch_timestamp)) FROM "+newsTable).
		Scan(&earliest, &latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get date range: %w", err)
	}
	if earliest.Valid {
		stats.Earliest = &earliest.String
	}
	if latest.Valid {
		stats.Latest = &latest.String
	}

	return stats, nil
}

// DeleteOlderThan removes items fetched before today minus days and returns
// how many were removed.
func (s *ItemStore) DeleteOlderThan(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, fmt.Errorf("days to keep must be non-negative")
	}

	cutoff := s.clock().In(s.location).AddDate(0, 0, -days).Format(DateLayout)

	query, args, err := sqlb.Delete(newsTable).
		Where(sq.Expr("date(fetch_timestamp) < ?", cutoff)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete: %w", err)
	}

	deleted, err := s.deleteInTx(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	slog.Info("Old items deleted", "deleted", deleted, "days_to_keep", days, "cutoff", cutoff)
	return deleted, nil
}

// ClearAll removes every item and returns the prior count.
func (s *ItemStore) ClearAll(ctx context.Context) (int, error) {
	deleted, err := s.deleteInTx(ctx, "DELETE FROM "+newsTable)
	if err != nil {
		return 0, err
	}

	slog.Info("All items deleted", "deleted", deleted)
	return deleted, nil
}

func (s *ItemStore) deleteInTx(ctx context.Context, query string, args ...any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete items: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}

	return int(affected), nil
}

func (s *ItemStore) selectItems() sq.SelectBuilder {
	return sqlb.Select(itemColumns...).
		From(newsTable).
		OrderBy("published DESC", "fetch_timestamp DESC", "id")
}

func (s *ItemStore) queryItems(ctx context.Context, builder sq.SelectBuilder) ([]feed.Item, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []feed.Item{}
	for rows.Next() {
		item, err := s.scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func (s *ItemStore) scanItem(rows *sql.Rows) (feed.Item, error) {
	var (
		item                                feed.Item
		managerName, subtitle, summary, raw sql.NullString
		published, fetchTimestamp           any
	)

	err := rows.Scan(
		&item.ID, &managerName, &item.SourceType, &item.SourceName, &published, &item.Title,
		&subtitle, &summary, &item.Content, &item.Link, &fetchTimestamp, &raw,
	)
	if err != nil {
		return feed.Item{}, fmt.Errorf("failed to scan item row: %w", err)
	}

	item.ManagerName = managerName.String
	item.Subtitle = subtitle.String
	if summary.Valid && summary.String != "" {
		value := summary.String
		item.Summary = &value
	}

	item.Published, err = parseStoredTime(published, s.location)
	if err != nil {
		return feed.Item{}, fmt.Errorf("invalid published value for %s: %w", item.ID, err)
	}
	item.FetchTimestamp, err = parseStoredTime(fetchTimestamp, s.location)
	if err != nil {
		return feed.Item{}, fmt.Errorf("invalid fetch timestamp for %s: %w", item.ID, err)
	}

	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &item.RawData); err != nil {
			slog.Debug("Raw data not decodable", "id", item.ID, "error", err)
		}
	}

	return item, nil
}

// parseStoredTime reads a stored timestamp as a wall-clock value in loc.
// The driver may hand back DATETIME columns already parsed.
func parseStoredTime(value any, loc *time.Location) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return wallClock(v, loc), nil
	case []byte:
		return parseStoredString(string(v), loc)
	case string:
		return parseStoredString(v, loc)
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", value)
	}
}

func parseStoredString(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range storedTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return wallClock(t, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}

func wallClock(t time.Time, loc *time.Location) time.Time {
	if t.Location() == time.UTC || t.Location() == loc {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	}
	return t.In(loc)
}

func fetchDateBetween(r DateRange) sq.Sqlizer {
	start, end := r.bounds()
	return sq.Expr("date(fetch_timestamp) BETWEEN ? AND ?", start, end)
}

func publishedBetween(r DateRange) sq.Sqlizer {
	start, end := r.bounds()
	return sq.Expr("date(published) BETWEEN ? AND ?", start, end)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
