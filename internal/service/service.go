// Package service ties the pattern library, engine, and store together:
// patterns are defined once, run by id later, and every run's outcome and
// trace are persisted for audit. The scheduler and MCP surface both consume
// this layer rather than the engine directly.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/quaylabs/patternd/internal/engine"
	"github.com/quaylabs/patternd/internal/store"
	"github.com/quaylabs/patternd/pkg/schema"
)

// Service exposes the stored-pattern operations backing the MCP tools and
// the scheduler. Safe for concurrent use.
type Service struct {
	store        store.Store
	orchestrator *engine.Orchestrator
	validator    engine.Validator
	logger       *slog.Logger
}

// New creates a Service. validator gates pattern.define; the orchestrator
// carries its own copy for run-time validation.
func New(st store.Store, orchestrator *engine.Orchestrator, validator engine.Validator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        st,
		orchestrator: orchestrator,
		validator:    validator,
		logger:       logger,
	}
}

// DefinePattern validates and stores a pattern document under (id, version).
// Re-defining an existing (id, version) overwrites it.
func (s *Service) DefinePattern(ctx context.Context, doc *schema.PatternDocument, description string) (*store.StoredPattern, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "pattern document is nil")
	}
	if s.validator != nil {
		if err := s.validator.ValidateDocument(doc); err != nil {
			return nil, err
		}
	}

	stored := &store.StoredPattern{
		ID:          doc.ID,
		Version:     doc.Version,
		Description: description,
		Document:    *doc,
	}
	if err := s.store.SavePattern(ctx, stored); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "save pattern").WithCause(err)
	}

	s.logger.InfoContext(ctx, "pattern defined",
		slog.String("pattern_id", doc.ID),
		slog.String("version", doc.Version),
		slog.Int("steps", len(doc.Steps)),
	)
	return stored, nil
}

// RunPattern loads a stored pattern by id (version "" means latest) and
// executes it. The outcome and trace are persisted before returning.
func (s *Service) RunPattern(ctx context.Context, patternID, version string, inputs map[string]any) (*engine.ExecutionResult, error) {
	stored, err := s.store.GetPattern(ctx, patternID, version)
	if err != nil {
		return nil, err
	}
	return s.RunDocument(ctx, &stored.Document, inputs)
}

// RunDocument executes an ad-hoc pattern document and persists the outcome.
// The execution result is returned even when persistence fails; persistence
// errors are logged, not surfaced, since the run itself already happened.
func (s *Service) RunDocument(ctx context.Context, doc *schema.PatternDocument, inputs map[string]any) (*engine.ExecutionResult, error) {
	result := s.orchestrator.Execute(ctx, doc, inputs)
	s.persistResult(ctx, result, inputs, "")
	return result, nil
}

// RunScheduled executes a stored pattern on behalf of a schedule, tagging the
// persisted execution with the schedule id.
func (s *Service) RunScheduled(ctx context.Context, run *store.ScheduledRun) (*engine.ExecutionResult, error) {
	stored, err := s.store.GetPattern(ctx, run.PatternID, run.PatternVersion)
	if err != nil {
		return nil, err
	}

	var inputs map[string]any
	if len(run.Inputs) > 0 {
		if err := json.Unmarshal(run.Inputs, &inputs); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "scheduled run inputs are not a JSON object").WithCause(err)
		}
	}

	result := s.orchestrator.Execute(ctx, &stored.Document, inputs)
	s.persistResult(ctx, result, inputs, run.ID)
	return result, nil
}

// GetExecution returns a persisted execution by id.
func (s *Service) GetExecution(ctx context.Context, executionID string) (*store.Execution, error) {
	return s.store.GetExecution(ctx, executionID)
}

// GetTrace returns the persisted per-step trace of an execution.
func (s *Service) GetTrace(ctx context.Context, executionID string) ([]*store.TraceRecord, error) {
	return s.store.GetTrace(ctx, executionID)
}

// ListExecutions returns persisted executions matching the filter.
func (s *Service) ListExecutions(ctx context.Context, filter store.ExecutionFilter) ([]*store.Execution, error) {
	return s.store.ListExecutions(ctx, filter)
}

// ListPatterns returns stored patterns matching the filter.
func (s *Service) ListPatterns(ctx context.Context, filter store.PatternFilter) ([]*store.StoredPattern, error) {
	return s.store.ListPatterns(ctx, filter)
}

// persistResult writes the execution row and its trace records.
func (s *Service) persistResult(ctx context.Context, result *engine.ExecutionResult, inputs map[string]any, scheduleID string) {
	exec := &store.Execution{
		ID:             result.ExecutionID,
		PatternID:      result.PatternID,
		PatternVersion: result.Version,
		Status:         result.Status,
		ScheduleID:     scheduleID,
		StartedAt:      result.StartedAt,
		CompletedAt:    result.CompletedAt,
	}
	exec.Inputs = marshalOrNil(inputs, len(inputs) > 0)
	exec.Outputs = marshalOrNil(result.Data, len(result.Data) > 0)
	exec.Error = marshalOrNil(result.Error, result.Error != nil)
	if result.Trace != nil {
		exec.Warnings = marshalOrNil(result.Trace.Warnings, len(result.Trace.Warnings) > 0)
	}

	if err := s.store.CreateExecution(ctx, exec); err != nil {
		s.logger.ErrorContext(ctx, "persist execution failed",
			slog.String("execution_id", result.ExecutionID),
			slog.String("error", err.Error()),
		)
		return
	}

	if result.Trace == nil || len(result.Trace.Records) == 0 {
		return
	}
	records := make([]*store.TraceRecord, 0, len(result.Trace.Records))
	for _, rec := range result.Trace.Records {
		records = append(records, &store.TraceRecord{
			ExecutionID:     result.ExecutionID,
			StepIndex:       rec.StepIndex,
			Capability:      rec.Capability,
			Provider:        rec.Provider,
			DispatchMode:    string(rec.DispatchMode),
			ConditionResult: rec.ConditionResult,
			Outcome:         rec.Outcome,
			DurationMs:      rec.Duration.Milliseconds(),
			Error:           marshalOrNil(rec.Error, rec.Error != nil),
		})
	}
	if err := s.store.AppendTraceRecords(ctx, result.ExecutionID, records); err != nil {
		s.logger.ErrorContext(ctx, "persist trace failed",
			slog.String("execution_id", result.ExecutionID),
			slog.String("error", err.Error()),
		)
	}
}

func marshalOrNil(v any, present bool) json.RawMessage {
	if !present {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
