package providers

import (
	"context"
	"encoding/json"

	"github.com/quaylabs/patternd/pkg/schema"
)

const CapAssertSchema = "assert.schema"

// PayloadValidator validates arbitrary data against a raw JSON Schema.
// Satisfied by validation.PatternValidator.
type PayloadValidator interface {
	ValidatePayload(data any, rawSchema []byte) error
}

// AssertProvider gates pattern flow on data shape: the step fails when its
// "data" parameter does not satisfy the supplied JSON Schema, and passes the
// data through unchanged when it does. Pairing it with optional:false turns a
// shape violation into a pattern abort.
type AssertProvider struct {
	validator PayloadValidator
}

func NewAssertProvider(validator PayloadValidator) *AssertProvider {
	return &AssertProvider{validator: validator}
}

func (p *AssertProvider) Name() string {
	return "builtin.assert"
}

func (p *AssertProvider) Capabilities() []string {
	return []string{CapAssertSchema}
}

// Invoke validates params["data"] against params["schema"]. The schema may be
// given inline as an object or as a JSON string.
func (p *AssertProvider) Invoke(_ context.Context, capability string, params map[string]any) (any, error) {
	if capability != CapAssertSchema {
		return nil, schema.NewErrorf(schema.ErrCodeCapabilityNotFound,
			"assert provider does not implement %q", capability)
	}

	rawSchema, err := schemaParam(params)
	if err != nil {
		return nil, err
	}

	data, ok := params["data"]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation,
			`assert.schema requires a "data" parameter`)
	}

	if err := p.validator.ValidatePayload(data, rawSchema); err != nil {
		return nil, err
	}
	return data, nil
}

func schemaParam(params map[string]any) ([]byte, error) {
	raw, ok := params["schema"]
	if !ok || raw == nil {
		return nil, schema.NewError(schema.ErrCodeValidation,
			`assert.schema requires a "schema" parameter`)
	}

	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, schema.NewError(schema.ErrCodeValidation,
				`assert.schema "schema" parameter is empty`)
		}
		return []byte(v), nil
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation,
				"assert.schema schema is not serializable").WithCause(err)
		}
		return b, nil
	default:
		return nil, schema.NewError(schema.ErrCodeValidation,
			`assert.schema "schema" parameter must be an object or JSON string`)
	}
}
