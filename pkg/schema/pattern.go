package schema

import (
	"bytes"
	"encoding/json"
)

// PatternDocument is the JSON-serializable pattern format: a declarative,
// versioned sequence of capability invocations plus an output specification.
// Immutable once loaded.
type PatternDocument struct {
	ID      string     `json:"id"`
	Version string     `json:"version"`
	Steps   []Step     `json:"steps"`
	Outputs OutputSpec `json:"outputs"`
}

// Step describes a single unit of pattern execution.
type Step struct {
	Capability string         `json:"capability"`
	Params     map[string]any `json:"params,omitempty"`
	SaveAs     string         `json:"save_as,omitempty"`
	Condition  string         `json:"condition,omitempty"` // boolean-expression grammar, evaluated before dispatch
	Optional   bool           `json:"optional,omitempty"`  // failed optional steps do not abort the pattern
	Provider   string         `json:"provider,omitempty"`  // pins a concrete provider identity (tracked dispatch)
}

// OutputKind enumerates the accepted output specification shapes.
type OutputKind string

const (
	OutputKindList    OutputKind = "list"
	OutputKindLabeled OutputKind = "labeled"
	OutputKindPanels  OutputKind = "panels"
)

// OutputSpec is a closed tagged union over the three wire shapes:
// a list of state keys, a key→label map, or a panel list.
// Exactly one of Keys, Labels, or Panels is populated, per Kind.
type OutputSpec struct {
	Kind   OutputKind
	Keys   []string          // OutputKindList
	Labels map[string]string // OutputKindLabeled; labels are informational only
	Panels []PanelRef        // OutputKindPanels
}

// PanelRef is one entry of a panel-list output spec: either a bare id string
// or an object carrying an id plus display metadata the engine ignores.
type PanelRef struct {
	ID   string
	Meta map[string]any // title, type, etc.; the display layer's concern
}

// UnmarshalJSON resolves the output shape from its wire form.
func (o *OutputSpec) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NewError(ErrCodePatternLoad, "outputs specification is missing")
	}

	if trimmed[0] == '[' {
		var keys []string
		if err := json.Unmarshal(trimmed, &keys); err != nil {
			return NewError(ErrCodePatternLoad, "outputs list must contain only strings").WithCause(err)
		}
		o.Kind = OutputKindList
		o.Keys = keys
		return nil
	}

	if trimmed[0] != '{' {
		return NewError(ErrCodePatternLoad, "outputs must be a list, a label map, or a panel object")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return NewError(ErrCodePatternLoad, "malformed outputs object").WithCause(err)
	}

	if panels, ok := raw["panels"]; ok {
		var refs []PanelRef
		if err := json.Unmarshal(panels, &refs); err != nil {
			return NewError(ErrCodePatternLoad, "malformed panels list").WithCause(err)
		}
		o.Kind = OutputKindPanels
		o.Panels = refs
		return nil
	}

	labels := make(map[string]string, len(raw))
	for key, val := range raw {
		var label string
		if err := json.Unmarshal(val, &label); err != nil {
			return NewErrorf(ErrCodePatternLoad, "output label for %q must be a string", key).WithCause(err)
		}
		labels[key] = label
	}
	o.Kind = OutputKindLabeled
	o.Labels = labels
	return nil
}

// MarshalJSON writes the output specification back in its original wire shape.
func (o OutputSpec) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OutputKindList:
		return json.Marshal(o.Keys)
	case OutputKindLabeled:
		return json.Marshal(o.Labels)
	case OutputKindPanels:
		return json.Marshal(map[string][]PanelRef{"panels": o.Panels})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a bare string or an object with an "id" field.
func (p *PanelRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &p.ID)
	}

	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return NewError(ErrCodePatternLoad, "panel entry must be a string or an object").WithCause(err)
	}
	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return NewError(ErrCodePatternLoad, "panel object requires a non-empty 'id' field")
	}
	p.ID = id
	delete(obj, "id")
	if len(obj) > 0 {
		p.Meta = obj
	}
	return nil
}

// MarshalJSON writes a bare string when there is no metadata.
func (p PanelRef) MarshalJSON() ([]byte, error) {
	if len(p.Meta) == 0 {
		return json.Marshal(p.ID)
	}
	obj := make(map[string]any, len(p.Meta)+1)
	for k, v := range p.Meta {
		obj[k] = v
	}
	obj["id"] = p.ID
	return json.Marshal(obj)
}
