package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const entryColumns = "id, run_id, tomogram_id, status, step, script_path, job_id, message, dry_run, created_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry      Entry
		status     string
		step       sql.NullString
		scriptPath sql.NullString
		jobID      sql.NullString
		message    sql.NullString
		dryRun     int64
		createdRaw string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.RunID,
		&entry.TomogramID,
		&status,
		&step,
		&scriptPath,
		&jobID,
		&message,
		&dryRun,
		&createdRaw,
	); err != nil {
		return Entry{}, err
	}
	entry.Status = Status(status)
	entry.Step = step.String
	entry.ScriptPath = scriptPath.String
	entry.JobID = jobID.String
	entry.Message = message.String
	entry.DryRun = dryRun != 0
	entry.CreatedAt = parseTime(createdRaw)
	return entry, nil
}

func parseTime(raw string) time.Time {
	if ts, err := time.Parse(timeLayout, raw); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	return time.Time{}
}

func nullable(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// Record inserts entry and returns its row id. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, entry Entry) (int64, error) {
	if strings.TrimSpace(entry.RunID) == "" || strings.TrimSpace(entry.TomogramID) == "" {
		return 0, errors.New("ledger entry requires run id and tomogram id")
	}
	if !entry.Status.Valid() {
		return 0, fmt.Errorf("ledger entry has unknown status %q", entry.Status)
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	dryRun := 0
	if entry.DryRun {
		dryRun = 1
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO submissions (run_id, tomogram_id, status, step, script_path, job_id, message, dry_run, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.TomogramID,
		string(entry.Status),
		nullable(entry.Step),
		nullable(entry.ScriptPath),
		nullable(entry.JobID),
		nullable(entry.Message),
		dryRun,
		created.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("insert ledger entry: %w", err)
	}
	return res.LastInsertId()
}

// List returns entries matching filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	ctx = ensureContext(ctx)
	var (
		clauses []string
		args    []any
	)
	if filter.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.TomogramID != "" {
		clauses = append(clauses, "tomogram_id = ?")
		args = append(args, filter.TomogramID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := "SELECT " + entryColumns + " FROM submissions"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return s.queryEntries(ctx, query, args...)
}

// LatestByTomogram returns the most recent entry for every tomogram, ordered
// by tomogram id.
func (s *Store) LatestByTomogram(ctx context.Context) ([]Entry, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + entryColumns + ` FROM submissions s
		WHERE id = (SELECT MAX(id) FROM submissions WHERE tomogram_id = s.tomogram_id)
		ORDER BY tomogram_id`
	return s.queryEntries(ctx, query)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	var entries []Entry
	err := retryOnBusy(ctx, func() error {
		entries = entries[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	return entries, nil
}

// Runs summarizes the most recent runs, newest first. A limit <= 0 returns
// every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	ctx = ensureContext(ctx)
	query := `SELECT run_id, MIN(created_at), MAX(id),
		SUM(CASE WHEN status = 'generated' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'submitted' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END)
		FROM submissions GROUP BY run_id ORDER BY MAX(id) DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var runs []RunSummary
	err := retryOnBusy(ctx, func() error {
		runs = runs[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				run     RunSummary
				started string
				lastID  int64
			)
			if err := rows.Scan(&run.RunID, &started, &lastID, &run.Generated, &run.Submitted, &run.Failed, &run.Skipped); err != nil {
				return err
			}
			run.StartedAt = parseTime(started)
			runs = append(runs, run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query ledger runs: %w", err)
	}
	return runs, nil
}
