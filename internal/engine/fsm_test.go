package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaylabs/patternd/pkg/schema"
)

func TestPatternTransitions(t *testing.T) {
	assert.True(t, IsValidPatternTransition(schema.PatternStatusLoaded, schema.PatternStatusExecuting))
	assert.True(t, IsValidPatternTransition(schema.PatternStatusExecuting, schema.PatternStatusSucceeded))
	assert.True(t, IsValidPatternTransition(schema.PatternStatusExecuting, schema.PatternStatusPartial))
	assert.True(t, IsValidPatternTransition(schema.PatternStatusExecuting, schema.PatternStatusCancelled))

	assert.False(t, IsValidPatternTransition(schema.PatternStatusLoaded, schema.PatternStatusSucceeded))
	assert.False(t, IsValidPatternTransition(schema.PatternStatusSucceeded, schema.PatternStatusExecuting))
	assert.False(t, IsValidPatternTransition(schema.PatternStatusFailed, schema.PatternStatusExecuting))
}

func TestStepTransitions(t *testing.T) {
	assert.True(t, IsValidStepTransition(schema.StepStatusPending, schema.StepStatusRunning))
	assert.True(t, IsValidStepTransition(schema.StepStatusPending, schema.StepStatusSkipped))
	assert.True(t, IsValidStepTransition(schema.StepStatusRunning, schema.StepStatusCompleted))
	assert.True(t, IsValidStepTransition(schema.StepStatusRunning, schema.StepStatusFailed))

	// Skipping is decided before a step starts, never after.
	assert.False(t, IsValidStepTransition(schema.StepStatusRunning, schema.StepStatusSkipped))
	assert.False(t, IsValidStepTransition(schema.StepStatusCompleted, schema.StepStatusRunning))
	assert.False(t, IsValidStepTransition(schema.StepStatusSkipped, schema.StepStatusRunning))
}

func TestPatternFSM_RejectsInvalidMove(t *testing.T) {
	fsm := newPatternFSM()
	require.NoError(t, fsm.transition(schema.PatternStatusExecuting))
	require.NoError(t, fsm.transition(schema.PatternStatusSucceeded))

	err := fsm.transition(schema.PatternStatusExecuting)
	require.Error(t, err)
	perr, ok := err.(*schema.PatternError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeInvalidTransition, perr.Code)
}

func TestStateDeepCopy(t *testing.T) {
	inputs := map[string]any{
		"nested": map[string]any{"list": []any{1.0, 2.0}},
	}
	state := NewState(inputs)

	inputs["nested"].(map[string]any)["list"].([]any)[0] = 99.0
	got, ok := state.Get("nested")
	require.True(t, ok)
	assert.Equal(t, 1.0, got.(map[string]any)["list"].([]any)[0])
}
