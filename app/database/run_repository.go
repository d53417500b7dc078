package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const runsTable = "pipeline_runs"

// RunStore records pipeline runs in the pipeline_runs table.
type RunStore struct {
	db *DB
}

func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return fmt.Errorf("run has no id")
	}
	if run.Outcome == "" {
		run.Outcome = OutcomeRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	errorsJSON, err := encodeErrors(run.Errors)
	if err != nil {
		return err
	}

	query, args, err := sqlb.Insert(runsTable).
		Columns("id", "window_start", "window_end", "outcome", "errors", "started_at").
		Values(
			run.ID,
			run.WindowStart.Format(DateLayout),
			run.WindowEnd.Format(DateLayout),
			run.Outcome,
			errorsJSON,
			run.StartedAt.Format(time.RFC3339),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build run insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun stores the final counters and outcome of run.
func (s *RunStore) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}

	errorsJSON, err := encodeErrors(run.Errors)
	if err != nil {
		return err
	}

	query, args, err := sqlb.Update(runsTable).
		SetMap(map[string]any{
			"outcome":     run.Outcome,
			"fetched":     run.Fetched,
			"saved":       run.Saved,
			"summarized":  run.Summarized,
			"rendered":    run.Rendered,
			"errors":      errorsJSON,
			"notified":    run.Notified,
			"archive_key": run.ArchiveKey,
			"finished_at": run.FinishedAt.Format(time.RFC3339),
		}).
		Where(sq.Eq{"id": run.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build run update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}

	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query, args, err := sqlb.Select(
		"id", "window_start", "window_end", "outcome", "fetched", "saved", "summarized",
		"rendered", "errors", "notified", "archive_key", "started_at", "finished_at",
	).
		From(runsTable).
		OrderBy("started_at DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build runs query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run                                Run
			windowStart, windowEnd, errorsJSON string
			startedAt                          string
			finishedAt                         sql.NullString
		)

		err := rows.Scan(
			&run.ID, &windowStart, &windowEnd, &run.Outcome, &run.Fetched, &run.Saved,
			&run.Summarized, &run.Rendered, &errorsJSON, &run.Notified, &run.ArchiveKey,
			&startedAt, &finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		run.WindowStart, _ = time.Parse(DateLayout, windowStart)
		run.WindowEnd, _ = time.Parse(DateLayout, windowEnd)
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt.Valid && finishedAt.String != "" {
			if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
				run.FinishedAt = &t
			}
		}
		if err := json.Unmarshal([]byte(errorsJSON), &run.Errors); err != nil {
			run.Errors = []string{errorsJSON}
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

func encodeErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("failed to encode run errors: %w", err)
	}
	return string(data), nil
}
