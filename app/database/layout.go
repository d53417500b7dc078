package database

import (
	"database/sql"
	"fmt"
	"slices"
	"strings"
)

const (
	newsTable    = "news_items"
	newsTableNew = "news_items_new"
)

// Column is one column of the news table as reported by PRAGMA table_info.
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
	Default    string
}

func (c Column) definition() string {
	def := quoteIdent(c.Name)
	if c.Type != "" {
		def += " " + c.Type
	}
	if c.PrimaryKey {
		def += " PRIMARY KEY"
	}
	if c.NotNull {
		def += " NOT NULL"
	}
	if c.Default != "" {
		d := c.Default
		if !strings.HasPrefix(d, "(") {
			d = "(" + d + ")"
		}
		def += " DEFAULT " + d
	}
	return def
}

// Layout is the live shape of the news table.
type Layout struct {
	Exists  bool
	Columns []Column
}

func (l Layout) Has(name string) bool {
	return slices.ContainsFunc(l.Columns, func(c Column) bool { return c.Name == name })
}

func (l Layout) Names() []string {
	names := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		names[i] = c.Name
	}
	return names
}

func (l Layout) column(name string) (Column, bool) {
	for _, c := range l.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// CanonicalColumns is the current news table layout in its canonical order.
var CanonicalColumns = []Column{
	{Name: "id", Type: "TEXT", PrimaryKey: true},
	{Name: "manager_name", Type: "TEXT"},
	{Name: "source_type", Type: "TEXT", NotNull: true},
	{Name: "source_name", Type: "TEXT", NotNull: true},
	{Name: "published", Type: "DATETIME", NotNull: true},
	{Name: "title", Type: "TEXT", NotNull: true},
	{Name: "subtitle", Type: "TEXT"},
	{Name: "summary", Type: "TEXT"},
	{Name: "content", Type: "TEXT", NotNull: true},
	{Name: "link", Type: "TEXT", NotNull: true},
	{Name: "fetch_timestamp", Type: "DATETIME", Default: "datetime('now', 'localtime')"},
	{Name: "raw_data", Type: "TEXT"},
}

// Values used for canonical columns that a copy cannot source from the old table.
var columnFillers = map[string]string{
	"id":              "lower(hex(randomblob(16)))",
	"manager_name":    "'RSS'",
	"source_type":     "'rss'",
	"source_name":     "'unknown source'",
	"published":       "CURRENT_DATE",
	"title":           "''",
	"subtitle":        "''",
	"summary":         "NULL",
	"content":         "''",
	"link":            "''",
	"fetch_timestamp": "CURRENT_TIMESTAMP",
	"raw_data":        "'{}'",
}

type indexDef struct {
	name   string
	column string
	expr   string
}

var newsIndexes = []indexDef{
	{name: "idx_published", column: "published", expr: "published"},
	{name: "idx_source_name", column: "source_name", expr: "source_name"},
	{name: "idx_source_type", column: "source_type", expr: "source_type"},
	{name: "idx_fetch_timestamp", column: "fetch_timestamp", expr: "fetch_timestamp"},
	{name: "idx_fetch_date", column: "fetch_timestamp", expr: "date(fetch_timestamp)"},
}

// LayoutStep is one named transformation of the news table.
type LayoutStep struct {
	Name   string
	Needed func(Layout) bool
	Apply  func(tx *sql.Tx, layout Layout) error
}

// MigrationError reports the layout step that failed.
type MigrationError struct {
	Step string
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration step %s failed: %v", e.Step, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// LayoutSteps in resolution order.
var LayoutSteps = []LayoutStep{
	{
		Name:   "create_base",
		Needed: func(l Layout) bool { return !l.Exists },
		Apply: func(tx *sql.Tx, _ Layout) error {
			return createTable(tx, newsTable, CanonicalColumns)
		},
	},
	{
		Name:   "split_source_name",
		Needed: func(l Layout) bool { return l.Exists && l.Has("source") && !l.Has("source_name") },
		Apply: func(tx *sql.Tx, l Layout) error {
			change := columnChange{
				replace: map[string][]string{"source": {"source_name", "manager_name"}},
				exprs: map[string]string{
					"source_name":  "COALESCE(source, 'unknown source')",
					"manager_name": "COALESCE(source, 'RSS')",
				},
			}
			if l.Has("manager_name") {
				change.replace["source"] = []string{"source_name"}
			}
			if !l.Has("fetch_timestamp") {
				if l.Has("created_at") {
					change.replace["created_at"] = []string{"fetch_timestamp"}
					change.exprs["fetch_timestamp"] = "COALESCE(created_at, CURRENT_TIMESTAMP)"
				} else {
					change.add = append(change.add, "fetch_timestamp")
				}
			}
			return rebuildTable(tx, l, change)
		},
	},
	{
		Name:   "rename_created_at",
		Needed: func(l Layout) bool { return l.Exists && l.Has("created_at") && !l.Has("fetch_timestamp") },
		Apply: func(tx *sql.Tx, l Layout) error {
			return rebuildTable(tx, l, columnChange{
				replace: map[string][]string{"created_at": {"fetch_timestamp"}},
				exprs:   map[string]string{"fetch_timestamp": "created_at"},
			})
		},
	},
	{
		Name:   "drop_fetch_date",
		Needed: func(l Layout) bool { return l.Exists && l.Has("fetch_date") },
		Apply: func(tx *sql.Tx, l Layout) error {
			return rebuildTable(tx, l, columnChange{drop: []string{"fetch_date"}})
		},
	},
	{
		Name:   "add_subtitle",
		Needed: func(l Layout) bool { return l.Exists && !l.Has("subtitle") },
		Apply: func(tx *sql.Tx, l Layout) error {
			change := columnChange{
				add:   []string{"subtitle"},
				exprs: map[string]string{"subtitle": "''"},
			}
			if l.Has("title") {
				change.add = nil
				change.replace = map[string][]string{"title": {"title", "subtitle"}}
			}
			return rebuildTable(tx, l, change)
		},
	},
	{
		Name:   "reorder_columns",
		Needed: func(l Layout) bool { return l.Exists && !hasCanonicalOrder(l) },
		Apply: func(tx *sql.Tx, l Layout) error {
			return reorderTable(tx, l)
		},
	},
}

// MigrateLayout walks the step chain until no step is needed, re-reading the
// live layout after every applied step. Each step runs at most once.
func MigrateLayout(db *DB) ([]string, error) {
	applied := make(map[string]bool)
	var names []string

	for {
		layout, err := ReadLayout(db.DB)
		if err != nil {
			return names, err
		}

		step := nextStep(layout, applied)
		if step == nil {
			return names, nil
		}

		if err := applyStep(db.DB, *step, layout); err != nil {
			return names, &MigrationError{Step: step.Name, Err: err}
		}

		applied[step.Name] = true
		names = append(names, step.Name)
	}
}

func nextStep(layout Layout, applied map[string]bool) *LayoutStep {
	for i := range LayoutSteps {
		step := &LayoutSteps[i]
		if applied[step.Name] {
			continue
		}
		if step.Needed(layout) {
			return step
		}
	}
	return nil
}

func applyStep(db *sql.DB, step LayoutStep, layout Layout) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := step.Apply(tx, layout); err != nil {
		return err
	}

	if err := createIndexes(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// ReadLayout inspects the live news table.
func ReadLayout(q queryer) (Layout, error) {
	rows, err := q.Query("PRAGMA table_info(" + newsTable + ")")
	if err != nil {
		return Layout{}, fmt.Errorf("failed to read table layout: %w", err)
	}
	defer rows.Close()

	var layout Layout
	for rows.Next() {
		var (
			cid     int
			col     Column
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dflt, &pk); err != nil {
			return Layout{}, fmt.Errorf("failed to scan table layout: %w", err)
		}
		col.NotNull = notNull != 0
		col.PrimaryKey = pk != 0
		col.Default = dflt.String
		layout.Columns = append(layout.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return Layout{}, fmt.Errorf("error iterating table layout: %w", err)
	}

	layout.Exists = len(layout.Columns) > 0
	return layout, nil
}

func hasCanonicalOrder(l Layout) bool {
	names := l.Names()
	if len(names) < len(CanonicalColumns) {
		return false
	}
	for i, c := range CanonicalColumns {
		if names[i] != c.Name {
			return false
		}
	}
	return true
}

func canonicalColumn(name string) (Column, bool) {
	for _, c := range CanonicalColumns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// columnChange describes a copy from the live layout to a new one: dropped
// columns, columns replaced in place, columns appended, and the select
// expression feeding each new column.
type columnChange struct {
	drop    []string
	replace map[string][]string
	add     []string
	exprs   map[string]string
}

func rebuildTable(tx *sql.Tx, layout Layout, change columnChange) error {
	var (
		target  []Column
		selects []string
	)

	appendNew := func(name string) {
		col, ok := canonicalColumn(name)
		if !ok {
			col = Column{Name: name, Type: "TEXT"}
		}
		expr, ok := change.exprs[name]
		if !ok {
			expr = fillerFor(name)
		}
		target = append(target, col)
		selects = append(selects, expr)
	}

	for _, col := range layout.Columns {
		if slices.Contains(change.drop, col.Name) {
			continue
		}
		if replacement, ok := change.replace[col.Name]; ok {
			for _, name := range replacement {
				if name == col.Name {
					target = append(target, col)
					selects = append(selects, quoteIdent(col.Name))
					continue
				}
				appendNew(name)
			}
			continue
		}
		target = append(target, col)
		selects = append(selects, quoteIdent(col.Name))
	}
	for _, name := range change.add {
		appendNew(name)
	}

	return copyTable(tx, target, selects)
}

// reorderTable rewrites the table in canonical column order. Missing
// canonical columns are filled, unknown columns are kept at the end.
func reorderTable(tx *sql.Tx, layout Layout) error {
	var (
		target  []Column
		selects []string
	)

	for _, canonical := range CanonicalColumns {
		if col, ok := layout.column(canonical.Name); ok {
			target = append(target, col)
			selects = append(selects, quoteIdent(col.Name))
			continue
		}
		target = append(target, canonical)
		selects = append(selects, fillerFor(canonical.Name))
	}

	for _, col := range layout.Columns {
		if _, ok := canonicalColumn(col.Name); ok {
			continue
		}
		target = append(target, col)
		selects = append(selects, quoteIdent(col.Name))
	}

	return copyTable(tx, target, selects)
}

func copyTable(tx *sql.Tx, target []Column, selects []string) error {
	if _, err := tx.Exec("DROP TABLE IF EXISTS " + newsTableNew); err != nil {
		return fmt.Errorf("failed to drop stale table: %w", err)
	}

	if err := createTable(tx, newsTableNew, target); err != nil {
		return err
	}

	names := make([]string, len(target))
	for i, c := range target {
		names[i] = quoteIdent(c.Name)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		newsTableNew, strings.Join(names, ", "), strings.Join(selects, ", "), newsTable)
	if _, err := tx.Exec(insert); err != nil {
		return fmt.Errorf("failed to copy rows: %w", err)
	}

	if _, err := tx.Exec("DROP TABLE " + newsTable); err != nil {
		return fmt.Errorf("failed to drop old table: %w", err)
	}

	if _, err := tx.Exec(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", newsTableNew, newsTable)); err != nil {
		return fmt.Errorf("failed to rename table: %w", err)
	}

	return nil
}

func createTable(tx *sql.Tx, name string, columns []Column) error {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = c.definition()
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", name, strings.Join(defs, ",\n\t"))
	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return nil
}

func createIndexes(tx *sql.Tx) error {
	layout, err := ReadLayout(tx)
	if err != nil {
		return err
	}

	for _, idx := range newsIndexes {
		if !layout.Has(idx.column) {
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idx.name, newsTable, idx.expr)
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func fillerFor(name string) string {
	if filler, ok := columnFillers[name]; ok {
		return filler
	}
	return "NULL"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
