// Package history persists finished runs and their failures in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mattjoyce/watchit/internal/runner"
)

const maxOutputBytes = 64 * 1024

// timeLayout is fixed width so stored timestamps sort as strings.
// RFC3339Nano drops trailing zeros, which breaks that.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Run is one row of run_log.
type Run struct {
	ID          string    `json:"id"`
	WatchID     string    `json:"watch_id"`
	WatchName   string    `json:"watch_name"`
	Command     string    `json:"command"`
	Directory   string    `json:"directory"`
	ExitCode    int       `json:"exit_code"`
	Cancelled   bool      `json:"cancelled"`
	Error       string    `json:"error,omitempty"`
	Failures    int       `json:"failures"`
	Output      string    `json:"output,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store reads and writes run history.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record stores a completion and its failures in one transaction.
func (s *Store) Record(ctx context.Context, c runner.Completion, failures []runner.Failure) error {
	if c.Task.RunID == "" {
		return fmt.Errorf("run id is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var errText any
	if c.Error != "" {
		errText = c.Error
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO run_log(
  id, watch_id, watch_name, command, directory, exit_code, cancelled, error,
  failures, output, started_at, completed_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, c.Task.RunID, c.Task.Watch.ID, c.Task.Watch.Label(), c.Task.Watch.Command, c.Task.Directory,
		c.ExitCode, c.Cancelled, errText, len(failures), truncateBytes(c.Output, maxOutputBytes),
		formatTime(c.Task.StartedAt), formatTime(c.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, f := range failures {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO run_failure(run_id, seq, path, line, column, message)
VALUES(?, ?, ?, ?, ?, ?);
`, c.Task.RunID, i, f.Path, f.Line, f.Column, f.Message); err != nil {
			return fmt.Errorf("insert failure %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Recent returns the newest runs first. An empty watchID means all watches.
func (s *Store) Recent(ctx context.Context, watchID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
SELECT id, watch_id, watch_name, command, directory, exit_code, cancelled, error,
  failures, output, started_at, completed_at
FROM run_log`
	args := []any{}
	if watchID != "" {
		query += ` WHERE watch_id = ?`
		args = append(args, watchID)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var (
			r                    Run
			errText, output      sql.NullString
			startedS, completedS string
		)
		if err := rows.Scan(&r.ID, &r.WatchID, &r.WatchName, &r.Command, &r.Directory, &r.ExitCode,
			&r.Cancelled, &errText, &r.Failures, &output, &startedS, &completedS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Error = errText.String
		r.Output = output.String
		r.StartedAt = parseTime(startedS)
		r.CompletedAt = parseTime(completedS)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Failures returns the failures of one run in extraction order.
func (s *Store) Failures(ctx context.Context, runID string) ([]runner.Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT f.path, f.line, f.column, f.message, r.watch_id
FROM run_failure f JOIN run_log r ON r.id = f.run_id
WHERE f.run_id = ?
ORDER BY f.seq ASC;
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	out := []runner.Failure{}
	for rows.Next() {
		f := runner.Failure{RunID: runID}
		if err := rows.Scan(&f.Path, &f.Line, &f.Column, &f.Message, &f.WatchID); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}

// Prune deletes runs that completed more than retention ago and returns how
// many were removed. A non-positive retention keeps everything.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := formatTime(time.Now().Add(-retention))
	res, err := s.db.ExecContext(ctx, `DELETE FROM run_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

// truncateBytes keeps the last limit bytes of s, starting on a rune boundary.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	start := len(s) - limit
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
