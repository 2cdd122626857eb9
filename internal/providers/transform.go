// Package providers ships the builtin utility providers registered with every
// engine instance: data transforms backed by jq, expr, and CEL, plus schema
// assertions. Domain providers (market data, metrics, trade proposals) live
// outside the engine and register through the same interface.
package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/cel-go/cel"
	"github.com/itchyny/gojq"

	"github.com/quaylabs/patternd/pkg/schema"
)

const (
	CapTransformJQ   = "transform.jq"
	CapTransformExpr = "transform.expr"
	CapTransformCEL  = "transform.cel"
)

// TransformProvider evaluates data-reshaping expressions over step parameters.
// Each dialect keeps its own compiled-program cache, so repeated executions of
// the same pattern pay the compile cost once. Safe for concurrent use.
type TransformProvider struct {
	celEnv *cel.Env

	jqMu    sync.RWMutex
	jqCache map[string]*gojq.Code

	exprMu    sync.RWMutex
	exprCache map[string]*vm.Program

	celMu    sync.RWMutex
	celCache map[string]cel.Program
}

// NewTransformProvider creates a TransformProvider with a sandboxed CEL
// environment exposing a single top-level variable:
//   - data: map(string, dyn), the step's "data" parameter
func NewTransformProvider() (*TransformProvider, error) {
	env, err := cel.NewEnv(
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &TransformProvider{
		celEnv:    env,
		jqCache:   make(map[string]*gojq.Code),
		exprCache: make(map[string]*vm.Program),
		celCache:  make(map[string]cel.Program),
	}, nil
}

func (p *TransformProvider) Name() string {
	return "builtin.transform"
}

func (p *TransformProvider) Capabilities() []string {
	return []string{CapTransformJQ, CapTransformExpr, CapTransformCEL}
}

// Invoke evaluates params["expression"] against params["data"].
func (p *TransformProvider) Invoke(ctx context.Context, capability string, params map[string]any) (any, error) {
	expression, data, err := transformParams(params)
	if err != nil {
		return nil, err
	}

	switch capability {
	case CapTransformJQ:
		return p.evaluateJQ(ctx, expression, data)
	case CapTransformExpr:
		return p.evaluateExpr(expression, data)
	case CapTransformCEL:
		return p.evaluateCEL(expression, data)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeCapabilityNotFound,
			"transform provider does not implement %q", capability)
	}
}

func transformParams(params map[string]any) (string, map[string]any, error) {
	expression, _ := params["expression"].(string)
	if expression == "" {
		return "", nil, schema.NewError(schema.ErrCodeValidation,
			`transform requires a non-empty "expression" parameter`)
	}

	data := map[string]any{}
	if raw, ok := params["data"]; ok && raw != nil {
		data, ok = raw.(map[string]any)
		if !ok {
			return "", nil, schema.NewError(schema.ErrCodeValidation,
				`transform "data" parameter must be an object`)
		}
	}
	return expression, data, nil
}

// evaluateJQ runs a jq program over data. Multiple outputs collect into a
// slice; a single output is returned directly.
func (p *TransformProvider) evaluateJQ(ctx context.Context, expression string, data map[string]any) (any, error) {
	code, err := p.getOrCompileJQ(expression)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, normalizeForJQ(data))

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeCapabilityExecution,
				"jq evaluation failed for %q: %s", expression, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": expression})
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (p *TransformProvider) getOrCompileJQ(expression string) (*gojq.Code, error) {
	p.jqMu.RLock()
	if code, ok := p.jqCache[expression]; ok {
		p.jqMu.RUnlock()
		return code, nil
	}
	p.jqMu.RUnlock()

	p.jqMu.Lock()
	defer p.jqMu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := p.jqCache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	code, err := gojq.Compile(query,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	p.jqCache[expression] = code
	return code, nil
}

// evaluateExpr runs an expr-lang expression with data as its environment.
func (p *TransformProvider) evaluateExpr(expression string, data map[string]any) (any, error) {
	prg, err := p.getOrCompileExpr(expression, data)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCapabilityExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out, nil
}

func (p *TransformProvider) getOrCompileExpr(expression string, data map[string]any) (*vm.Program, error) {
	p.exprMu.RLock()
	if prg, ok := p.exprCache[expression]; ok {
		p.exprMu.RUnlock()
		return prg, nil
	}
	p.exprMu.RUnlock()

	p.exprMu.Lock()
	defer p.exprMu.Unlock()

	if prg, ok := p.exprCache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(data),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	p.exprCache[expression] = prg
	return prg, nil
}

// evaluateCEL runs a CEL expression with data bound to the "data" variable.
func (p *TransformProvider) evaluateCEL(expression string, data map[string]any) (any, error) {
	prg, err := p.getOrCompileCEL(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(map[string]any{"data": data})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCapabilityExecution,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out.Value(), nil
}

func (p *TransformProvider) getOrCompileCEL(expression string) (cel.Program, error) {
	p.celMu.RLock()
	if prg, ok := p.celCache[expression]; ok {
		p.celMu.RUnlock()
		return prg, nil
	}
	p.celMu.RUnlock()

	p.celMu.Lock()
	defer p.celMu.Unlock()

	if prg, ok := p.celCache[expression]; ok {
		return prg, nil
	}

	ast, issues := p.celEnv.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := p.celEnv.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	p.celCache[expression] = prg
	return prg, nil
}

// normalizeForJQ converts Go native number types to float64, matching jq's
// number handling.
func normalizeForJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeForJQ(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeForJQ(v)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
