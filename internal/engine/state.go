package engine

// State is the mutable mapping accumulating step results, scoped to exactly
// one pattern execution. It grows monotonically (steps only add or overwrite
// their own save_as key) and is discarded when the execution finishes.
// It is never shared across executions, so no locking is needed.
type State struct {
	values map[string]any
}

// NewState creates a State, optionally pre-seeded with caller-supplied inputs.
// Inputs are deep-copied so caller mutations cannot leak into the execution.
func NewState(inputs map[string]any) *State {
	values := deepCopyMap(inputs)
	if values == nil {
		values = make(map[string]any)
	}
	return &State{values: values}
}

// Set writes a step result under its save_as key.
func (s *State) Set(key string, value any) {
	s.values[key] = value
}

// Get returns the value under a top-level key.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of top-level keys.
func (s *State) Len() int {
	return len(s.values)
}

// Values exposes the underlying mapping for template resolution, condition
// evaluation, and output extraction. Callers must not retain it past the
// execution.
func (s *State) Values() map[string]any {
	return s.values
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies a value. Maps and slices are copied;
// primitives are value types already.
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	default:
		return v
	}
}
