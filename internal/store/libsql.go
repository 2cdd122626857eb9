package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/quaylabs/patternd/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Pattern library ---

func (s *LibSQLStore) SavePattern(ctx context.Context, p *StoredPattern) error {
	doc, err := json.Marshal(p.Document)
	if err != nil {
		return fmt.Errorf("marshal pattern document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO patterns (id, version, description, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id, version) DO UPDATE SET
		   description=excluded.description, document=excluded.document, updated_at=CURRENT_TIMESTAMP`,
		p.ID, p.Version, nullStr(p.Description), string(doc), timeOrNow(p.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetPattern(ctx context.Context, id, version string) (*StoredPattern, error) {
	query := `SELECT id, version, description, document, created_at, updated_at
	          FROM patterns WHERE id = ?`
	args := []any{id}
	if version != "" {
		query += ` AND version = ?`
		args = append(args, version)
	}
	// Lexicographic max stands in for "latest" when no version is given.
	query += ` ORDER BY version DESC LIMIT 1`

	p := &StoredPattern{}
	var description sql.NullString
	var docJSON string
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&p.ID, &p.Version, &description, &docJSON, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("pattern", id)
	}
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	if err := json.Unmarshal([]byte(docJSON), &p.Document); err != nil {
		return nil, fmt.Errorf("unmarshal pattern document: %w", err)
	}
	return p, nil
}

func (s *LibSQLStore) ListPatterns(ctx context.Context, filter PatternFilter) ([]*StoredPattern, error) {
	query := `SELECT id, version, description, document, created_at, updated_at FROM patterns`
	var args []any
	if filter.ID != "" {
		query += ` WHERE id = ?`
		args = append(args, filter.ID)
	}
	query += ` ORDER BY id, version`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []*StoredPattern
	for rows.Next() {
		p := &StoredPattern{}
		var description sql.NullString
		var docJSON string
		if err := rows.Scan(&p.ID, &p.Version, &description, &docJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Description = description.String
		if err := json.Unmarshal([]byte(docJSON), &p.Document); err != nil {
			return nil, fmt.Errorf("unmarshal pattern document: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (s *LibSQLStore) DeletePattern(ctx context.Context, id, version string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM patterns WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "pattern", id)
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, e *Execution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, pattern_id, pattern_version, status, inputs, outputs, error, warnings, schedule_id, started_at, completed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PatternID, nullStr(e.PatternVersion), string(e.Status),
		nullRaw(e.Inputs), nullRaw(e.Outputs), nullRaw(e.Error), nullRaw(e.Warnings),
		nullStr(e.ScheduleID), timeOrNow(e.StartedAt), nullTime(e.CompletedAt), timeOrNow(e.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Outputs != nil {
		sets = append(sets, "outputs = ?")
		args = append(args, string(update.Outputs))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, string(update.Error))
	}
	if update.Warnings != nil {
		sets = append(sets, "warnings = ?")
		args = append(args, string(update.Warnings))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	e := &Execution{}
	var (
		patternVersion, scheduleID            sql.NullString
		inputs, outputs, errJSON, warnings    sql.NullString
		completedAt                           sql.NullTime
		status                                string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pattern_id, pattern_version, status, inputs, outputs, error, warnings, schedule_id, started_at, completed_at, created_at
		 FROM executions WHERE id = ?`, id,
	).Scan(&e.ID, &e.PatternID, &patternVersion, &status, &inputs, &outputs, &errJSON,
		&warnings, &scheduleID, &e.StartedAt, &completedAt, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	e.PatternVersion = patternVersion.String
	e.ScheduleID = scheduleID.String
	e.Status = schema.PatternStatus(status)
	e.Inputs = rawOrNil(inputs)
	e.Outputs = rawOrNil(outputs)
	e.Error = rawOrNil(errJSON)
	e.Warnings = rawOrNil(warnings)
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return e, nil
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.PatternID != "" {
		where = append(where, "pattern_id = ?")
		args = append(args, filter.PatternID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, pattern_id, pattern_version, status, inputs, outputs, error, warnings, schedule_id, started_at, completed_at, created_at FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		e := &Execution{}
		var (
			patternVersion, scheduleID         sql.NullString
			inputs, outputs, errJSON, warnings sql.NullString
			completedAt                        sql.NullTime
			status                             string
		)
		if err := rows.Scan(&e.ID, &e.PatternID, &patternVersion, &status, &inputs, &outputs,
			&errJSON, &warnings, &scheduleID, &e.StartedAt, &completedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.PatternVersion = patternVersion.String
		e.ScheduleID = scheduleID.String
		e.Status = schema.PatternStatus(status)
		e.Inputs = rawOrNil(inputs)
		e.Outputs = rawOrNil(outputs)
		e.Error = rawOrNil(errJSON)
		e.Warnings = rawOrNil(warnings)
		if completedAt.Valid {
			e.CompletedAt = &completedAt.Time
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

// --- Trace records ---

func (s *LibSQLStore) AppendTraceRecords(ctx context.Context, executionID string, records []*TraceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, r := range records {
		var condResult any
		if r.ConditionResult != nil {
			if *r.ConditionResult {
				condResult = 1
			} else {
				condResult = 0
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trace_records (execution_id, step_index, capability, provider, dispatch_mode, condition_result, outcome, duration_ms, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			executionID, r.StepIndex, r.Capability, nullStr(r.Provider), nullStr(r.DispatchMode),
			condResult, string(r.Outcome), r.DurationMs, nullRaw(r.Error),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append trace record %d: %w", r.StepIndex, err)
		}
	}
	return tx.Commit()
}

func (s *LibSQLStore) GetTrace(ctx context.Context, executionID string) ([]*TraceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, step_index, capability, provider, dispatch_mode, condition_result, outcome, duration_ms, error
		 FROM trace_records WHERE execution_id = ? ORDER BY step_index`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*TraceRecord
	for rows.Next() {
		r := &TraceRecord{}
		var (
			provider, mode, errJSON sql.NullString
			condResult              sql.NullInt64
			outcome                 string
		)
		if err := rows.Scan(&r.ExecutionID, &r.StepIndex, &r.Capability, &provider, &mode,
			&condResult, &outcome, &r.DurationMs, &errJSON); err != nil {
			return nil, err
		}
		r.Provider = provider.String
		r.DispatchMode = mode.String
		r.Outcome = schema.StepStatus(outcome)
		r.Error = rawOrNil(errJSON)
		if condResult.Valid {
			b := condResult.Int64 != 0
			r.ConditionResult = &b
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- Scheduled runs ---

func (s *LibSQLStore) CreateScheduledRun(ctx context.Context, run *ScheduledRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_runs (id, pattern_id, pattern_version, cron_expression, inputs, enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.PatternID, nullStr(run.PatternVersion), run.CronExpression,
		nullRaw(run.Inputs), boolToInt(run.Enabled), nullTime(run.LastRunAt),
		nullTime(run.NextRunAt), nullStr(run.LastRunStatus), timeOrNow(run.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error) {
	run := &ScheduledRun{}
	var (
		patternVersion, lastStatus sql.NullString
		inputs                     sql.NullString
		lastRun, nextRun           sql.NullTime
		enabled                    int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pattern_id, pattern_version, cron_expression, inputs, enabled, last_run_at, next_run_at, last_run_status, created_at
		 FROM scheduled_runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.PatternID, &patternVersion, &run.CronExpression, &inputs,
		&enabled, &lastRun, &nextRun, &lastStatus, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled run", id)
	}
	if err != nil {
		return nil, err
	}
	run.PatternVersion = patternVersion.String
	run.LastRunStatus = lastStatus.String
	run.Inputs = rawOrNil(inputs)
	run.Enabled = enabled != 0
	if lastRun.Valid {
		run.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		run.NextRunAt = &nextRun.Time
	}
	return run, nil
}

func (s *LibSQLStore) UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

func (s *LibSQLStore) ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error) {
	var where []string
	var args []any

	if filter.PatternID != "" {
		where = append(where, "pattern_id = ?")
		args = append(args, filter.PatternID)
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}

	query := `SELECT id, pattern_id, pattern_version, cron_expression, inputs, enabled, last_run_at, next_run_at, last_run_status, created_at FROM scheduled_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScheduledRun
	for rows.Next() {
		run := &ScheduledRun{}
		var (
			patternVersion, lastStatus sql.NullString
			inputs                     sql.NullString
			lastRun, nextRun           sql.NullTime
			enabled                    int
		)
		if err := rows.Scan(&run.ID, &run.PatternID, &patternVersion, &run.CronExpression,
			&inputs, &enabled, &lastRun, &nextRun, &lastStatus, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.PatternVersion = patternVersion.String
		run.LastRunStatus = lastStatus.String
		run.Inputs = rawOrNil(inputs)
		run.Enabled = enabled != 0
		if lastRun.Valid {
			run.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			run.NextRunAt = &nextRun.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.PatternError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*LibSQLStore)(nil)
