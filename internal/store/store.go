// Package store persists pattern documents, execution outcomes, per-step
// trace records, and scheduled runs. The engine itself never touches the
// store; the service layer records around it.
package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Pattern library
	SavePattern(ctx context.Context, p *StoredPattern) error
	GetPattern(ctx context.Context, id, version string) (*StoredPattern, error)
	ListPatterns(ctx context.Context, filter PatternFilter) ([]*StoredPattern, error)
	DeletePattern(ctx context.Context, id, version string) error

	// Executions
	CreateExecution(ctx context.Context, e *Execution) error
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)

	// Trace records (append-only)
	AppendTraceRecords(ctx context.Context, executionID string, records []*TraceRecord) error
	GetTrace(ctx context.Context, executionID string) ([]*TraceRecord, error)

	// Scheduled runs
	CreateScheduledRun(ctx context.Context, run *ScheduledRun) error
	GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error)
	UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error
	ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error)
	DeleteScheduledRun(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
