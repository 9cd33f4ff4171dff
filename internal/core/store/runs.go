package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eventwindow/eventwindow/internal/core"
	"github.com/eventwindow/eventwindow/internal/core/window"
)

// DefaultRunLimit caps ListRuns when the query sets no limit.
const DefaultRunLimit = 50

// RunQuery selects recorded window runs.
type RunQuery struct {
	All    bool
	ID     string
	Since  time.Time
	Before time.Time
	Limit  int
}

// Validate reports whether the query selects anything for a destructive operation.
func (q RunQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.ID) != "" {
		return nil
	}
	if !q.Before.IsZero() || !q.Since.IsZero() {
		return nil
	}
	return errors.New("must specify --all, --id, --since, or --before")
}

func (q RunQuery) whereClause() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if id := strings.TrimSpace(q.ID); id != "" {
		conds = append(conds, "id = ?")
		args = append(args, id)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, q.Since.UTC().UnixMilli())
	}
	if !q.Before.IsZero() {
		conds = append(conds, "recorded_at < ?")
		args = append(args, q.Before.UTC().UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// SaveRun records a completed window.
func (s *Store) SaveRun(ctx context.Context, run *core.WindowRun) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if run == nil {
		return errors.New("window run is required")
	}
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("window run id is required")
	}

	recordedAt := run.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO window_runs (id, window_limit, start_tick, stop_tick, span, events, added, overflows, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			window_limit = excluded.window_limit,
			start_tick = excluded.start_tick,
			stop_tick = excluded.stop_tick,
			span = excluded.span,
			events = excluded.events,
			added = excluded.added,
			overflows = excluded.overflows,
			recorded_at = excluded.recorded_at
	`, run.ID,
		int64(run.Limit),
		int64(run.Start),
		int64(run.Stop),
		int64(run.Span),
		int64(run.Events),
		run.Added,
		run.Overflows,
		recordedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store window run: %w", err)
	}
	return nil
}

// ListRuns returns matching runs, newest first.
func (s *Store) ListRuns(ctx context.Context, q RunQuery) ([]core.WindowRun, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultRunLimit
	}

	where, args := q.whereClause()
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, window_limit, start_tick, stop_tick, span, events, added, overflows, recorded_at
		FROM window_runs
		%s
		ORDER BY recorded_at DESC, id
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list window runs: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	runs := []core.WindowRun{}
	for rows.Next() {
		var (
			run                              core.WindowRun
			limitVal, start, stop, span, evs int64
			recordedAt                       int64
		)
		if err := rows.Scan(&run.ID, &limitVal, &start, &stop, &span, &evs, &run.Added, &run.Overflows, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan window runs: %w", err)
		}
		run.Limit = window.Duration(limitVal)
		run.Start = window.Timestamp(start)
		run.Stop = window.Timestamp(stop)
		run.Span = window.Duration(span)
		run.Events = window.Count(evs)
		run.RecordedAt = time.UnixMilli(recordedAt).UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list window runs: %w", err)
	}

	return runs, nil
}

// CountRuns returns the number of matching runs.
func (s *Store) CountRuns(ctx context.Context, q RunQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := q.whereClause()
	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM window_runs
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count window runs: %w", err)
	}
	return count, nil
}

// ResetRuns deletes matching runs. The query must select something explicitly.
func (s *Store) ResetRuns(ctx context.Context, q RunQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}

	where, args := q.whereClause()
	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM window_runs
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset window runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset window runs: %w", err)
	}
	return affected, nil
}
