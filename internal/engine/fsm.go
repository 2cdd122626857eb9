package engine

import "github.com/quaylabs/patternd/pkg/schema"

// ValidPatternTransitions defines the allowed lifecycle moves for a pattern
// execution. Terminal states have no successors.
var ValidPatternTransitions = map[schema.PatternStatus][]schema.PatternStatus{
	schema.PatternStatusLoaded:    {schema.PatternStatusExecuting, schema.PatternStatusCancelled},
	schema.PatternStatusExecuting: {schema.PatternStatusSucceeded, schema.PatternStatusFailed, schema.PatternStatusPartial, schema.PatternStatusCancelled},
	schema.PatternStatusSucceeded: {},
	schema.PatternStatusFailed:    {},
	schema.PatternStatusPartial:   {},
	schema.PatternStatusCancelled: {},
}

// ValidStepTransitions defines the allowed lifecycle moves for a step.
var ValidStepTransitions = map[schema.StepStatus][]schema.StepStatus{
	schema.StepStatusPending:   {schema.StepStatusRunning, schema.StepStatusSkipped},
	schema.StepStatusRunning:   {schema.StepStatusCompleted, schema.StepStatusFailed},
	schema.StepStatusCompleted: {},
	schema.StepStatusFailed:    {},
	schema.StepStatusSkipped:   {},
}

// IsValidPatternTransition reports whether from → to is allowed.
func IsValidPatternTransition(from, to schema.PatternStatus) bool {
	for _, allowed := range ValidPatternTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsValidStepTransition reports whether from → to is allowed.
func IsValidStepTransition(from, to schema.StepStatus) bool {
	for _, allowed := range ValidStepTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// patternFSM tracks one execution's pattern-level status.
type patternFSM struct {
	status schema.PatternStatus
}

func newPatternFSM() *patternFSM {
	return &patternFSM{status: schema.PatternStatusLoaded}
}

// transition validates and applies a pattern-level move.
func (f *patternFSM) transition(to schema.PatternStatus) error {
	if !IsValidPatternTransition(f.status, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid pattern transition: %s -> %s", f.status, to)
	}
	f.status = to
	return nil
}

// stepFSM tracks one step's status through the step loop.
type stepFSM struct {
	status schema.StepStatus
}

func newStepFSM() *stepFSM {
	return &stepFSM{status: schema.StepStatusPending}
}

func (f *stepFSM) transition(to schema.StepStatus) error {
	if !IsValidStepTransition(f.status, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid step transition: %s -> %s", f.status, to)
	}
	f.status = to
	return nil
}
