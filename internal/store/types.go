package store

import (
	"encoding/json"
	"time"

	"github.com/quaylabs/patternd/pkg/schema"
)

// StoredPattern is a pattern document registered in the library. The (id,
// version) pair is the primary key; version "" addresses the latest.
type StoredPattern struct {
	ID          string                 `json:"id"`
	Version     string                 `json:"version"`
	Description string                 `json:"description,omitempty"`
	Document    schema.PatternDocument `json:"document"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Execution is the persisted outcome of one pattern run.
type Execution struct {
	ID             string               `json:"id"`
	PatternID      string               `json:"pattern_id"`
	PatternVersion string               `json:"pattern_version,omitempty"`
	Status         schema.PatternStatus `json:"status"`
	Inputs         json.RawMessage      `json:"inputs,omitempty"`
	Outputs        json.RawMessage      `json:"outputs,omitempty"`
	Error          json.RawMessage      `json:"error,omitempty"`
	Warnings       json.RawMessage      `json:"warnings,omitempty"`
	ScheduleID     string               `json:"schedule_id,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// TraceRecord is one persisted per-step trace entry.
type TraceRecord struct {
	ExecutionID     string            `json:"execution_id"`
	StepIndex       int               `json:"step_index"`
	Capability      string            `json:"capability"`
	Provider        string            `json:"provider,omitempty"`
	DispatchMode    string            `json:"dispatch_mode,omitempty"`
	ConditionResult *bool             `json:"condition_result,omitempty"`
	Outcome         schema.StepStatus `json:"outcome"`
	DurationMs      int64             `json:"duration_ms"`
	Error           json.RawMessage   `json:"error,omitempty"`
}

// ScheduledRun is a cron-triggered execution of a stored pattern.
type ScheduledRun struct {
	ID             string          `json:"id"`
	PatternID      string          `json:"pattern_id"`
	PatternVersion string          `json:"pattern_version,omitempty"`
	CronExpression string          `json:"cron_expression"`
	Inputs         json.RawMessage `json:"inputs,omitempty"`
	Enabled        bool            `json:"enabled"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus  string          `json:"last_run_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// --- Filter and update types ---

// PatternFilter specifies criteria for listing stored patterns.
type PatternFilter struct {
	ID    string `json:"id,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	PatternID string                `json:"pattern_id,omitempty"`
	Status    *schema.PatternStatus `json:"status,omitempty"`
	Since     *time.Time            `json:"since,omitempty"`
	Limit     int                   `json:"limit,omitempty"`
	Offset    int                   `json:"offset,omitempty"`
}

// ExecutionUpdate specifies mutable fields of an execution.
type ExecutionUpdate struct {
	Status      *schema.PatternStatus `json:"status,omitempty"`
	Outputs     json.RawMessage       `json:"outputs,omitempty"`
	Error       json.RawMessage       `json:"error,omitempty"`
	Warnings    json.RawMessage       `json:"warnings,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// ScheduledRunUpdate specifies mutable fields of a scheduled run.
type ScheduledRunUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledRunFilter specifies criteria for listing scheduled runs.
type ScheduledRunFilter struct {
	PatternID string `json:"pattern_id,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
