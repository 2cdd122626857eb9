// Package engine executes pattern documents: it walks steps in declared
// order, evaluates conditions, resolves templated parameters, dispatches to
// capability providers, and extracts the final outputs. One execution is
// fully synchronous with respect to its own steps; concurrent executions
// share nothing but the read-only capability registry.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quaylabs/patternd/internal/capability"
	"github.com/quaylabs/patternd/internal/condition"
	"github.com/quaylabs/patternd/internal/logging"
	"github.com/quaylabs/patternd/internal/output"
	"github.com/quaylabs/patternd/internal/template"
	"github.com/quaylabs/patternd/pkg/schema"
)

// Validator checks a pattern document before any step executes.
// Satisfied by validation.PatternValidator.
type Validator interface {
	ValidateDocument(doc *schema.PatternDocument) error
}

// ExecutionResult is the outcome of one pattern execution.
type ExecutionResult struct {
	ExecutionID string                  `json:"execution_id"`
	PatternID   string                  `json:"pattern_id"`
	Version     string                  `json:"pattern_version,omitempty"`
	Status      schema.PatternStatus    `json:"status"`
	Data        map[string]any          `json:"data,omitempty"`
	Trace       *schema.ExecutionTrace  `json:"trace"`
	Error       *schema.PatternError    `json:"error,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// Orchestrator is the top-level state machine driving pattern executions.
// It is stateless across executions and safe for concurrent use.
type Orchestrator struct {
	dispatcher *capability.Dispatcher
	validator  Validator
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator. validator may be nil to skip
// document validation (callers that validate at store time).
func NewOrchestrator(registry *capability.Registry, validator Validator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		dispatcher: capability.NewDispatcher(registry),
		validator:  validator,
		logger:     logger,
	}
}

// Execute runs a pattern document to completion. inputs pre-seed the
// execution state before step 1. The trace is populated and returned
// regardless of outcome.
func (o *Orchestrator) Execute(ctx context.Context, doc *schema.PatternDocument, inputs map[string]any) *ExecutionResult {
	startedAt := time.Now().UTC()
	executionID := uuid.New().String()

	result := &ExecutionResult{
		ExecutionID: executionID,
		StartedAt:   startedAt,
		Trace: &schema.ExecutionTrace{
			ExecutionID: executionID,
			StartedAt:   startedAt,
		},
	}

	if doc == nil {
		return o.loadFailure(result, schema.NewError(schema.ErrCodePatternLoad, "pattern document is nil"))
	}
	result.PatternID = doc.ID
	result.Version = doc.Version
	result.Trace.PatternID = doc.ID
	result.Trace.Version = doc.Version

	if o.validator != nil {
		if err := o.validator.ValidateDocument(doc); err != nil {
			return o.loadFailure(result, asLoadError(err))
		}
	}

	ctx = logging.WithPatternID(ctx, doc.ID)
	ctx = logging.WithExecutionID(ctx, executionID)

	fsm := newPatternFSM()
	if err := fsm.transition(schema.PatternStatusExecuting); err != nil {
		return o.loadFailure(result, asLoadError(err))
	}

	state := NewState(inputs)
	o.logger.InfoContext(ctx, "pattern execution started",
		slog.Int("steps", len(doc.Steps)),
		slog.Int("seeded_inputs", state.Len()),
	)

	var abortErr *schema.PatternError
	aborted := false

	for i := range doc.Steps {
		step := &doc.Steps[i]
		stepCtx := logging.WithStepIndex(ctx, i)

		if ctx.Err() != nil {
			return o.cancelled(stepCtx, result, fsm)
		}

		rec, cancelled := o.runStep(stepCtx, i, step, state, result.Trace)
		result.Trace.Append(rec)

		if cancelled {
			return o.cancelled(stepCtx, result, fsm)
		}

		if rec.Outcome == schema.StepStatusFailed && !step.Optional {
			abortErr = rec.Error
			aborted = true
			o.logger.WarnContext(stepCtx, "required step failed; aborting pattern",
				slog.String("capability", step.Capability),
				slog.String("error", rec.Error.Error()),
			)
			break
		}
	}

	// Extraction runs on success and on abort alike, so already-completed
	// step results are not wasted. Missing output keys are omitted.
	data, warnings := output.Extract(doc.Outputs, state.Values())
	for _, w := range warnings {
		result.Trace.Warn(-1, schema.ErrCodeOutputExtraction, w.Message)
	}
	result.Data = data

	status := schema.PatternStatusSucceeded
	if aborted {
		status = schema.PatternStatusFailed
		if len(data) > 0 {
			status = schema.PatternStatusPartial
		}
		result.Error = abortErr
	}
	if err := fsm.transition(status); err != nil {
		o.logger.ErrorContext(ctx, "pattern state machine violation", slog.String("error", err.Error()))
	}

	now := time.Now().UTC()
	result.Status = status
	result.CompletedAt = &now
	result.Trace.CompletedAt = &now

	o.logger.InfoContext(ctx, "pattern execution finished",
		slog.String("status", string(status)),
		slog.Int("outputs", len(data)),
		slog.Int("warnings", len(result.Trace.Warnings)),
	)
	return result
}

// runStep executes one step: condition, parameter resolution, dispatch, and
// state write. The returned record carries the step outcome; cancelled is
// true when the hosting context was cancelled mid-invocation.
func (o *Orchestrator) runStep(ctx context.Context, index int, step *schema.Step, state *State, trace *schema.ExecutionTrace) (schema.StepRecord, bool) {
	rec := schema.StepRecord{
		StepIndex:  index,
		Capability: step.Capability,
	}
	fsm := newStepFSM()

	if step.Condition != "" {
		condStr, warnings := template.ResolveString(step.Condition, state.Values())
		for _, w := range warnings {
			trace.Warn(index, schema.ErrCodeTemplateResolution, w.Message)
		}

		ok, err := condition.Evaluate(condStr, state.Values())
		if err != nil {
			// Fail closed: a malformed condition skips the step, it never
			// aborts the pattern and never executes unintended logic.
			trace.Warn(index, schema.ErrCodeConditionEvaluation, err.Error())
			o.logger.WarnContext(ctx, "condition failed closed",
				slog.String("condition", step.Condition),
				slog.String("error", err.Error()),
			)
			ok = false
		}
		rec.ConditionResult = &ok

		if !ok {
			_ = fsm.transition(schema.StepStatusSkipped)
			rec.Outcome = schema.StepStatusSkipped
			o.logger.DebugContext(ctx, "step skipped by condition",
				slog.String("capability", step.Capability))
			return rec, false
		}
	}

	params, warnings := template.ResolveParams(step.Params, state.Values())
	for _, w := range warnings {
		trace.Warn(index, schema.ErrCodeTemplateResolution, w.Message)
		o.logger.WarnContext(ctx, "template reference unresolved",
			slog.String("path", w.Path))
	}

	_ = fsm.transition(schema.StepStatusRunning)

	var inv capability.Invocation
	if step.Provider != "" {
		inv = o.dispatcher.InvokeTracked(ctx, step.Provider, step.Capability, params)
	} else {
		inv = o.dispatcher.InvokeDynamic(ctx, step.Capability, params)
	}
	rec.Provider = inv.Provider
	rec.DispatchMode = inv.Mode
	rec.Duration = inv.Duration

	if inv.Err != nil {
		_ = fsm.transition(schema.StepStatusFailed)
		rec.Outcome = schema.StepStatusFailed
		rec.Error = inv.Err.WithStep(index)

		if inv.Err.Code == schema.ErrCodeCancelled || ctx.Err() != nil {
			return rec, true
		}

		o.logger.WarnContext(ctx, "step failed",
			slog.String("capability", step.Capability),
			slog.Bool("optional", step.Optional),
			slog.String("error", inv.Err.Error()),
		)
		return rec, false
	}

	if step.SaveAs != "" {
		state.Set(step.SaveAs, inv.Result)
	}
	_ = fsm.transition(schema.StepStatusCompleted)
	rec.Outcome = schema.StepStatusCompleted
	return rec, false
}

// cancelled finalizes a cancelled execution: accumulated state is discarded
// and no output extraction is attempted, unlike the failed/partial paths.
func (o *Orchestrator) cancelled(ctx context.Context, result *ExecutionResult, fsm *patternFSM) *ExecutionResult {
	_ = fsm.transition(schema.PatternStatusCancelled)

	now := time.Now().UTC()
	result.Status = schema.PatternStatusCancelled
	result.Error = schema.NewError(schema.ErrCodeCancelled, "execution cancelled by caller")
	result.CompletedAt = &now
	result.Trace.CompletedAt = &now

	o.logger.InfoContext(ctx, "pattern execution cancelled")
	return result
}

// loadFailure finalizes an execution that never reached its first step.
func (o *Orchestrator) loadFailure(result *ExecutionResult, err *schema.PatternError) *ExecutionResult {
	now := time.Now().UTC()
	result.Status = schema.PatternStatusFailed
	result.Error = err
	result.CompletedAt = &now
	result.Trace.CompletedAt = &now
	return result
}

// asLoadError coerces validation failures into the load-error taxonomy.
func asLoadError(err error) *schema.PatternError {
	if perr, ok := err.(*schema.PatternError); ok {
		if perr.Code == schema.ErrCodePatternLoad {
			return perr
		}
		return schema.NewError(schema.ErrCodePatternLoad, perr.Message).
			WithDetails(perr.Details).
			WithCause(perr)
	}
	return schema.NewError(schema.ErrCodePatternLoad, err.Error()).WithCause(err)
}
