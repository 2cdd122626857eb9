package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaylabs/patternd/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDocument(id, version string) schema.PatternDocument {
	var doc schema.PatternDocument
	raw := `{
		"id": "` + id + `",
		"version": "` + version + `",
		"steps": [{"capability": "market.fetch", "save_as": "market_data"}],
		"outputs": ["market_data"]
	}`
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(err)
	}
	return doc
}

func seedExecution(t *testing.T, s *LibSQLStore) *Execution {
	t.Helper()
	e := &Execution{
		ID:        uuid.New().String(),
		PatternID: "risk-report",
		Status:    schema.PatternStatusExecuting,
		Inputs:    json.RawMessage(`{"symbol":"ACME"}`),
	}
	require.NoError(t, s.CreateExecution(context.Background(), e))
	return e
}

// --- Pattern library ---

func TestSaveAndGetPattern(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &StoredPattern{
		ID:          "risk-report",
		Version:     "1",
		Description: "nightly risk rollup",
		Document:    testDocument("risk-report", "1"),
	}
	require.NoError(t, s.SavePattern(ctx, p))

	got, err := s.GetPattern(ctx, "risk-report", "1")
	require.NoError(t, err)
	assert.Equal(t, "risk-report", got.ID)
	assert.Equal(t, "1", got.Version)
	assert.Equal(t, "nightly risk rollup", got.Description)
	require.Len(t, got.Document.Steps, 1)
	assert.Equal(t, "market.fetch", got.Document.Steps[0].Capability)
	assert.Equal(t, schema.OutputKindList, got.Document.Outputs.Kind)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSavePattern_UpsertSameVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &StoredPattern{ID: "p", Version: "1", Document: testDocument("p", "1")}
	require.NoError(t, s.SavePattern(ctx, p))

	p.Description = "second write"
	require.NoError(t, s.SavePattern(ctx, p))

	got, err := s.GetPattern(ctx, "p", "1")
	require.NoError(t, err)
	assert.Equal(t, "second write", got.Description)

	all, err := s.ListPatterns(ctx, PatternFilter{ID: "p"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetPattern_LatestVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"1", "3", "2"} {
		p := &StoredPattern{ID: "p", Version: v, Document: testDocument("p", v)}
		require.NoError(t, s.SavePattern(ctx, p))
	}

	got, err := s.GetPattern(ctx, "p", "")
	require.NoError(t, err)
	assert.Equal(t, "3", got.Version)
}

func TestGetPattern_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetPattern(context.Background(), "ghost", "")
	require.Error(t, err)
	perr, ok := err.(*schema.PatternError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, perr.Code)
}

func TestDeletePattern(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &StoredPattern{ID: "p", Version: "1", Document: testDocument("p", "1")}
	require.NoError(t, s.SavePattern(ctx, p))
	require.NoError(t, s.DeletePattern(ctx, "p", "1"))

	_, err := s.GetPattern(ctx, "p", "1")
	assert.Error(t, err)

	err = s.DeletePattern(ctx, "p", "1")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, err.(*schema.PatternError).Code)
}

// --- Executions ---

func TestCreateAndGetExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := seedExecution(t, s)

	got, err := s.GetExecution(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "risk-report", got.PatternID)
	assert.Equal(t, schema.PatternStatusExecuting, got.Status)
	assert.JSONEq(t, `{"symbol":"ACME"}`, string(got.Inputs))
	assert.Nil(t, got.Outputs)
	assert.Nil(t, got.CompletedAt)
}

func TestUpdateExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := seedExecution(t, s)

	status := schema.PatternStatusSucceeded
	completed := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateExecution(ctx, e.ID, ExecutionUpdate{
		Status:      &status,
		Outputs:     json.RawMessage(`{"market_data":{"bid":101.4}}`),
		CompletedAt: &completed,
	}))

	got, err := s.GetExecution(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.PatternStatusSucceeded, got.Status)
	assert.JSONEq(t, `{"market_data":{"bid":101.4}}`, string(got.Outputs))
	require.NotNil(t, got.CompletedAt)

	// Empty update is a no-op, not an error.
	require.NoError(t, s.UpdateExecution(ctx, e.ID, ExecutionUpdate{}))

	err = s.UpdateExecution(ctx, "ghost", ExecutionUpdate{Status: &status})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, err.(*schema.PatternError).Code)
}

func TestListExecutions_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, status := range []schema.PatternStatus{
		schema.PatternStatusSucceeded, schema.PatternStatusFailed, schema.PatternStatusSucceeded,
	} {
		patternID := "p1"
		if i == 2 {
			patternID = "p2"
		}
		require.NoError(t, s.CreateExecution(ctx, &Execution{
			ID:        uuid.New().String(),
			PatternID: patternID,
			Status:    status,
		}))
	}

	byPattern, err := s.ListExecutions(ctx, ExecutionFilter{PatternID: "p1"})
	require.NoError(t, err)
	assert.Len(t, byPattern, 2)

	failed := schema.PatternStatusFailed
	byStatus, err := s.ListExecutions(ctx, ExecutionFilter{Status: &failed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "p1", byStatus[0].PatternID)

	limited, err := s.ListExecutions(ctx, ExecutionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

// --- Trace records ---

func TestAppendAndGetTrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := seedExecution(t, s)

	condTrue := true
	records := []*TraceRecord{
		{
			ExecutionID:  e.ID,
			StepIndex:    0,
			Capability:   "market.fetch",
			Provider:     "market.provider",
			DispatchMode: string(schema.DispatchDynamic),
			Outcome:      schema.StepStatusCompleted,
			DurationMs:   12,
		},
		{
			ExecutionID:     e.ID,
			StepIndex:       1,
			Capability:      "risk.compute",
			ConditionResult: &condTrue,
			Outcome:         schema.StepStatusFailed,
			DurationMs:      3,
			Error:           json.RawMessage(`{"code":"CAPABILITY_EXECUTION_ERROR"}`),
		},
	}
	require.NoError(t, s.AppendTraceRecords(ctx, e.ID, records))

	got, err := s.GetTrace(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "market.fetch", got[0].Capability)
	assert.Equal(t, "market.provider", got[0].Provider)
	assert.Nil(t, got[0].ConditionResult)
	assert.Equal(t, schema.StepStatusCompleted, got[0].Outcome)

	require.NotNil(t, got[1].ConditionResult)
	assert.True(t, *got[1].ConditionResult)
	assert.Equal(t, schema.StepStatusFailed, got[1].Outcome)
	assert.JSONEq(t, `{"code":"CAPABILITY_EXECUTION_ERROR"}`, string(got[1].Error))
}

func TestAppendTraceRecords_Empty(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.AppendTraceRecords(context.Background(), "any", nil))
}

// --- Scheduled runs ---

func TestScheduledRunCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	next := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	run := &ScheduledRun{
		ID:             uuid.New().String(),
		PatternID:      "risk-report",
		CronExpression: "0 6 * * 1-5",
		Inputs:         json.RawMessage(`{"symbol":"ACME"}`),
		Enabled:        true,
		NextRunAt:      &next,
	}
	require.NoError(t, s.CreateScheduledRun(ctx, run))

	got, err := s.GetScheduledRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "0 6 * * 1-5", got.CronExpression)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.LastRunAt)
	require.NotNil(t, got.NextRunAt)

	lastRun := time.Now().UTC().Truncate(time.Second)
	disabled := false
	require.NoError(t, s.UpdateScheduledRun(ctx, run.ID, ScheduledRunUpdate{
		Enabled:       &disabled,
		LastRunAt:     &lastRun,
		LastRunStatus: "succeeded",
	}))

	got, err = s.GetScheduledRun(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "succeeded", got.LastRunStatus)
	require.NotNil(t, got.LastRunAt)

	require.NoError(t, s.DeleteScheduledRun(ctx, run.ID))
	_, err = s.GetScheduledRun(ctx, run.ID)
	assert.Error(t, err)
}

func TestListScheduledRuns_EnabledFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, enabled := range []bool{true, false, true} {
		require.NoError(t, s.CreateScheduledRun(ctx, &ScheduledRun{
			ID:             uuid.New().String(),
			PatternID:      "p",
			CronExpression: "0 * * * *",
			Enabled:        enabled,
			CreatedAt:      time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	on := true
	enabled, err := s.ListScheduledRuns(ctx, ScheduledRunFilter{Enabled: &on})
	require.NoError(t, err)
	assert.Len(t, enabled, 2)

	all, err := s.ListScheduledRuns(ctx, ScheduledRunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Vacuum(context.Background()))
}
