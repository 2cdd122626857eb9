// Package validation checks pattern documents before execution. Structural
// validation uses JSON Schema Draft 2020-12; semantic validation covers what
// a schema cannot express, such as capability availability and condition
// syntax.
package validation

import "github.com/quaylabs/patternd/pkg/schema"

// PatternValidator combines structural and semantic validation. It satisfies
// engine.Validator. Safe for concurrent use.
type PatternValidator struct {
	structural *JSONSchemaValidator
	lookup     CapabilityLookup
}

// NewPatternValidator creates a PatternValidator. lookup may be nil to skip
// capability availability checks.
func NewPatternValidator(lookup CapabilityLookup) (*PatternValidator, error) {
	structural, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &PatternValidator{structural: structural, lookup: lookup}, nil
}

// ValidateDocument returns nil when the document is executable. Semantic
// warnings alone do not fail validation; errors do.
func (v *PatternValidator) ValidateDocument(doc *schema.PatternDocument) error {
	if err := v.structural.ValidateStructure(doc); err != nil {
		return err
	}
	if result := validateSemantic(doc, v.lookup); !result.Valid() {
		return result.ToError()
	}
	return nil
}

// Analyze returns the full semantic result including warnings, for surfaces
// that report rather than gate (pattern.define previews, CLI linting).
func (v *PatternValidator) Analyze(doc *schema.PatternDocument) (*schema.ValidationResult, error) {
	if err := v.structural.ValidateStructure(doc); err != nil {
		return nil, err
	}
	return validateSemantic(doc, v.lookup), nil
}

// ValidatePayload validates arbitrary data against a raw JSON Schema.
// Used by the assert.schema capability provider.
func (v *PatternValidator) ValidatePayload(data any, rawSchema []byte) error {
	return v.structural.ValidatePayload(data, rawSchema)
}
