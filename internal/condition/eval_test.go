package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_Comparisons(t *testing.T) {
	state := map[string]any{
		"volatility": 0.35,
		"confidence": 0.9,
		"regime":     "bull",
		"count":      int64(3),
		"metrics": map[string]any{
			"sharpe": 1.2,
		},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"greater than true", "volatility > 0.2", true},
		{"greater than false", "volatility > 0.5", false},
		{"less or equal", "volatility <= 0.35", true},
		{"equality number", "confidence == 0.9", true},
		{"inequality number", "confidence != 0.9", false},
		{"string equality", `regime == "bull"`, true},
		{"string equality single quotes", `regime == 'bear'`, false},
		{"nested path", "metrics.sharpe > 1.0", true},
		{"int against float literal", "count >= 3", true},
		{"string ordering", `regime < "zzz"`, true},
		{"literal only", "1 < 2", true},
		{"bare boolean literal", "true", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_BooleanOperators(t *testing.T) {
	state := map[string]any{
		"a": 1.0,
		"b": 2.0,
		"enabled": true,
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"and both true", "a == 1 and b == 2", true},
		{"and one false", "a == 1 and b == 3", false},
		{"or short circuit", "a == 1 or missing > 5", true},
		{"not", "not (a > b)", true},
		{"precedence or over and", "a == 2 and b == 2 or a == 1", true},
		{"parens override", "a == 2 and (b == 2 or a == 1)", false},
		{"bare reference boolean", "enabled", true},
		{"not reference", "not enabled", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Membership(t *testing.T) {
	state := map[string]any{
		"regime":  "bull",
		"regimes": []any{"bull", "bear", "sideways"},
		"config":  map[string]any{"threshold": 0.5},
		"label":   "high_volatility",
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"element of list", `regime in regimes`, true},
		{"element not in list", `"crab" in regimes`, false},
		{"substring", `"vol" in label`, true},
		{"not substring", `"calm" in label`, false},
		{"map key present", `"threshold" in config`, true},
		{"map key absent", `"ceiling" in config`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_NullChecks(t *testing.T) {
	state := map[string]any{
		"present": "value",
		"empty":   nil,
	}

	got, err := Evaluate("empty is null", state)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Evaluate("present is null", state)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Evaluate("not (present is null)", state)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluate_CrossTypeEqualityIsFalseNotError(t *testing.T) {
	state := map[string]any{"volatility": 0.35}

	got, err := Evaluate(`volatility == "high"`, state)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Evaluate(`volatility != "high"`, state)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluate_FailClosedErrors(t *testing.T) {
	state := map[string]any{"volatility": 0.35}

	tests := []struct {
		name string
		expr string
	}{
		{"malformed operator", "volatility >>> 0.2"},
		{"missing reference", "liquidity > 0.2"},
		{"ordering across types", `volatility > "high"`},
		{"non-boolean result", "volatility"},
		{"trailing garbage", "volatility > 0.2 0.3"},
		{"unclosed paren", "(volatility > 0.2"},
		{"empty condition", ""},
		{"and over non-boolean", "volatility and true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, state)
			require.Error(t, err)
			assert.False(t, got, "errors must evaluate as false")
		})
	}
}

func TestEvaluate_NoFunctionCallsOrAttributes(t *testing.T) {
	// The grammar has no call syntax; anything resembling one fails to parse.
	state := map[string]any{"x": 1.0}

	_, err := Evaluate("len(x) > 0", state)
	require.Error(t, err)

	_, err = Evaluate("x.__class__ is null", state)
	// Dotted paths are plain state lookups; this fails as a missing
	// reference, never as attribute access.
	require.Error(t, err)
}
