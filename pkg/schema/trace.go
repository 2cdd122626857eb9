package schema

import "time"

// PatternStatus represents the lifecycle state of a pattern execution.
type PatternStatus string

const (
	PatternStatusLoaded    PatternStatus = "loaded"
	PatternStatusExecuting PatternStatus = "executing"
	PatternStatusSucceeded PatternStatus = "succeeded"
	PatternStatusFailed    PatternStatus = "failed"
	PatternStatusPartial   PatternStatus = "partial"
	PatternStatusCancelled PatternStatus = "cancelled"
)

// StepStatus represents the lifecycle state of a single step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusFailed    StepStatus = "failed"
)

// DispatchMode identifies how a step's provider was selected and invoked.
type DispatchMode string

const (
	// DispatchDirect invokes a pinned provider with no tracking overhead.
	DispatchDirect DispatchMode = "direct"
	// DispatchTracked invokes a pinned provider with timing and outcome recorded.
	DispatchTracked DispatchMode = "tracked"
	// DispatchDynamic resolves the first-registered provider by capability name.
	DispatchDynamic DispatchMode = "dynamic"
)

// StepRecord is one append-only entry in an execution trace.
type StepRecord struct {
	StepIndex       int           `json:"step_index"`
	Capability      string        `json:"capability"`
	Provider        string        `json:"provider,omitempty"`
	ConditionResult *bool         `json:"condition_result,omitempty"` // nil when the step has no condition
	DispatchMode    DispatchMode  `json:"dispatch_mode,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
	Outcome         StepStatus    `json:"outcome"`
	Error           *PatternError `json:"error,omitempty"`
}

// Warning is a non-fatal condition recorded during execution:
// an unresolvable template reference, a malformed condition, an output key
// that never appeared in state.
type Warning struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	StepIndex int    `json:"step_index"` // -1 for warnings outside the step loop (e.g. extraction)
}

// ExecutionTrace is the append-only audit record of one pattern execution.
// It persists after the execution's state is discarded and is returned to the
// caller regardless of overall outcome.
type ExecutionTrace struct {
	ExecutionID string       `json:"execution_id"`
	PatternID   string       `json:"pattern_id"`
	Version     string       `json:"pattern_version,omitempty"`
	Records     []StepRecord `json:"records"`
	Warnings    []Warning    `json:"warnings,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Append adds a step record to the trace.
func (t *ExecutionTrace) Append(rec StepRecord) {
	t.Records = append(t.Records, rec)
}

// Warn records a non-fatal condition. Use stepIndex -1 for warnings that are
// not attributable to a single step.
func (t *ExecutionTrace) Warn(stepIndex int, code, message string) {
	t.Warnings = append(t.Warnings, Warning{Code: code, Message: message, StepIndex: stepIndex})
}
