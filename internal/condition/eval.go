package condition

import (
	"strings"

	"github.com/quaylabs/patternd/internal/template"
	"github.com/quaylabs/patternd/pkg/schema"
)

// Evaluate parses and evaluates a condition against the execution state.
// The error return exists so callers can record a warning; per the fail-closed
// policy they must treat any error as false and skip the step, never abort.
func Evaluate(expr string, state map[string]any) (bool, error) {
	node, err := Parse(expr)
	if err != nil {
		return false, err
	}

	val, err := eval(node, state)
	if err != nil {
		return false, err
	}

	result, ok := val.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
			"condition %q did not evaluate to a boolean (got %T)", expr, val)
	}
	return result, nil
}

// eval walks the AST by exhaustive structural recursion.
func eval(node Node, state map[string]any) (any, error) {
	switch n := node.(type) {
	case Literal:
		return n.Value, nil

	case Reference:
		val, ok := template.LookupPath(state, n.Path)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
				"state reference %q not found", n.Path)
		}
		return val, nil

	case UnaryOp:
		operand, err := eval(n.Operand, state)
		if err != nil {
			return nil, err
		}
		b, ok := operand.(bool)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
				"operand of 'not' is not a boolean (got %T)", operand)
		}
		return !b, nil

	case BinaryOp:
		left, err := evalBool(n.Left, state, n.Op)
		if err != nil {
			return nil, err
		}
		// Short-circuit before touching the right side.
		if n.Op == "and" && !left {
			return false, nil
		}
		if n.Op == "or" && left {
			return true, nil
		}
		return evalBool(n.Right, state, n.Op)

	case Comparison:
		left, err := eval(n.Left, state)
		if err != nil {
			return nil, err
		}
		right, err := eval(n.Right, state)
		if err != nil {
			return nil, err
		}
		return compare(n.Op, left, right)

	default:
		return nil, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
			"unknown AST node %T", node)
	}
}

func evalBool(node Node, state map[string]any, op string) (bool, error) {
	val, err := eval(node, state)
	if err != nil {
		return false, err
	}
	b, ok := val.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
			"operand of %q is not a boolean (got %T)", op, val)
	}
	return b, nil
}

func compare(op string, left, right any) (bool, error) {
	switch op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "<", ">", "<=", ">=":
		return ordered(op, left, right)
	case "in":
		return membership(left, right)
	case "is":
		return identical(left, right), nil
	default:
		return false, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
			"unknown comparison operator %q", op)
	}
}

// looseEqual compares values of matching kinds; numbers compare numerically
// across integer and float representations. Values of incompatible kinds are
// simply unequal, never an error.
func looseEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		return lf == rf
	}
	if lok != rok {
		return false
	}

	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	default:
		return false
	}
}

// ordered applies < > <= >= to two numbers or two strings.
func ordered(op string, left, right any) (bool, error) {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		switch op {
		case "<":
			return lf < rf, nil
		case ">":
			return lf > rf, nil
		case "<=":
			return lf <= rf, nil
		default:
			return lf >= rf, nil
		}
	}

	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs, nil
		case ">":
			return ls > rs, nil
		case "<=":
			return ls <= rs, nil
		default:
			return ls >= rs, nil
		}
	}

	return false, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
		"operands of %q must both be numbers or both be strings (got %T and %T)", op, left, right)
}

// membership implements "in": element of a list, substring of a string,
// or key of a mapping.
func membership(left, right any) (bool, error) {
	switch r := right.(type) {
	case []any:
		for _, item := range r {
			if looseEqual(left, item) {
				return true, nil
			}
		}
		return false, nil

	case string:
		l, ok := left.(string)
		if !ok {
			return false, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
				"left operand of 'in' against a string must be a string (got %T)", left)
		}
		return strings.Contains(r, l), nil

	case map[string]any:
		l, ok := left.(string)
		if !ok {
			return false, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
				"left operand of 'in' against a mapping must be a string (got %T)", left)
		}
		_, present := r[l]
		return present, nil

	default:
		return false, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
			"right operand of 'in' must be a list, string, or mapping (got %T)", right)
	}
}

// identical implements "is": strict identity, used almost exclusively for
// null checks. Both operands must be the same kind and value.
func identical(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	switch l := left.(type) {
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	case string:
		r, ok := right.(string)
		return ok && l == r
	default:
		lf, lok := toFloat(left)
		rf, rok := toFloat(right)
		return lok && rok && lf == rf
	}
}

// toFloat coerces the numeric types that reach the evaluator (JSON decoding
// produces float64; provider results may carry native ints).
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
