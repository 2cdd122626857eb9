package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, PatternID(ctx))
	assert.Empty(t, ExecutionID(ctx))
	_, ok := StepIndex(ctx)
	assert.False(t, ok)

	ctx = WithPatternID(ctx, "risk-report")
	ctx = WithExecutionID(ctx, "exec-1")
	ctx = WithStepIndex(ctx, 3)

	assert.Equal(t, "risk-report", PatternID(ctx))
	assert.Equal(t, "exec-1", ExecutionID(ctx))
	idx, ok := StepIndex(ctx)
	require.True(t, ok)
	assert.Equal(t, 3, idx)
}

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestCorrelationHandler_InjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithPatternID(context.Background(), "risk-report")
	ctx = WithExecutionID(ctx, "exec-1")
	ctx = WithStepIndex(ctx, 0)

	logger.InfoContext(ctx, "step dispatched", slog.String("capability", "market.fetch"))

	entry := logLine(t, &buf)
	assert.Equal(t, "risk-report", entry["pattern_id"])
	assert.Equal(t, "exec-1", entry["execution_id"])
	assert.Equal(t, "0", entry["step_index"], "step index 0 is still injected")
	assert.Equal(t, "market.fetch", entry["capability"])
}

func TestCorrelationHandler_BareContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "scheduler started")

	entry := logLine(t, &buf)
	assert.NotContains(t, entry, "pattern_id")
	assert.NotContains(t, entry, "execution_id")
	assert.NotContains(t, entry, "step_index")
}

func TestCorrelationHandler_WithAttrsPreservesInjection(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))).
		With(slog.String("component", "engine"))

	ctx := WithExecutionID(context.Background(), "exec-2")
	logger.WarnContext(ctx, "optional step failed")

	entry := logLine(t, &buf)
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "exec-2", entry["execution_id"])
}
