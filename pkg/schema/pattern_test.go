package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputSpec_DecodeList(t *testing.T) {
	var spec OutputSpec
	require.NoError(t, json.Unmarshal([]byte(`["summary","metrics"]`), &spec))

	assert.Equal(t, OutputKindList, spec.Kind)
	assert.Equal(t, []string{"summary", "metrics"}, spec.Keys)
	assert.Nil(t, spec.Labels)
	assert.Nil(t, spec.Panels)
}

func TestOutputSpec_DecodeLabeledMap(t *testing.T) {
	var spec OutputSpec
	require.NoError(t, json.Unmarshal([]byte(`{"nav":"Net Asset Value","pnl":"P&L"}`), &spec))

	assert.Equal(t, OutputKindLabeled, spec.Kind)
	assert.Equal(t, map[string]string{"nav": "Net Asset Value", "pnl": "P&L"}, spec.Labels)
}

func TestOutputSpec_DecodePanels(t *testing.T) {
	raw := `{"panels":["allocation",{"id":"nav","title":"NAV over time","type":"line"}]}`
	var spec OutputSpec
	require.NoError(t, json.Unmarshal([]byte(raw), &spec))

	assert.Equal(t, OutputKindPanels, spec.Kind)
	require.Len(t, spec.Panels, 2)
	assert.Equal(t, "allocation", spec.Panels[0].ID)
	assert.Nil(t, spec.Panels[0].Meta)
	assert.Equal(t, "nav", spec.Panels[1].ID)
	assert.Equal(t, "NAV over time", spec.Panels[1].Meta["title"])
}

func TestOutputSpec_DecodeRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"null", `null`},
		{"number", `42`},
		{"list of numbers", `[1,2]`},
		{"label map with non-string value", `{"nav":42}`},
		{"panel object without id", `{"panels":[{"title":"x"}]}`},
		{"panel object with empty id", `{"panels":[{"id":""}]}`},
		{"panel entry number", `{"panels":[42]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var spec OutputSpec
			assert.Error(t, json.Unmarshal([]byte(tt.raw), &spec))
		})
	}
}

func TestOutputSpec_RoundTrip(t *testing.T) {
	inputs := []string{
		`["a","b"]`,
		`{"nav":"Net Asset Value"}`,
		`{"panels":["allocation",{"id":"nav","title":"NAV"}]}`,
	}
	for _, raw := range inputs {
		var spec OutputSpec
		require.NoError(t, json.Unmarshal([]byte(raw), &spec))
		out, err := json.Marshal(spec)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(out))
	}
}

func TestPatternDocument_Decode(t *testing.T) {
	raw := `{
		"id": "daily-risk-report",
		"version": "2",
		"steps": [
			{"capability": "market.fetch", "params": {"symbol": "ACME"}, "save_as": "market_data"},
			{"capability": "risk.compute", "params": {"data": "{{market_data}}"},
			 "save_as": "risk", "condition": "not (market_data is null)", "optional": true},
			{"capability": "report.render", "provider": "renderer.v2", "save_as": "report"}
		],
		"outputs": ["report", "risk"]
	}`

	var doc PatternDocument
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	assert.Equal(t, "daily-risk-report", doc.ID)
	assert.Equal(t, "2", doc.Version)
	require.Len(t, doc.Steps, 3)
	assert.Equal(t, "market_data", doc.Steps[0].SaveAs)
	assert.True(t, doc.Steps[1].Optional)
	assert.Equal(t, "renderer.v2", doc.Steps[2].Provider)
	assert.Equal(t, OutputKindList, doc.Outputs.Kind)
}

func TestPatternError_Format(t *testing.T) {
	err := NewError(ErrCodeCapabilityNotFound, "no provider for market.fetch")
	assert.Equal(t, "[CAPABILITY_NOT_FOUND] no provider for market.fetch", err.Error())

	err = err.WithStep(2)
	assert.Equal(t, "[CAPABILITY_NOT_FOUND] step 2: no provider for market.fetch", err.Error())
}

func TestPatternError_Unwrap(t *testing.T) {
	cause := NewError(ErrCodeValidation, "inner")
	err := NewError(ErrCodePatternLoad, "outer").WithCause(cause)
	assert.Equal(t, cause, err.Unwrap())
}
