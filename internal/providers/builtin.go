package providers

import (
	"github.com/quaylabs/patternd/internal/capability"
)

// RegisterBuiltins registers the transform and assert providers with the
// registry. validator backs assert.schema; pass the process-wide
// validation.PatternValidator.
func RegisterBuiltins(registry *capability.Registry, validator PayloadValidator) error {
	transform, err := NewTransformProvider()
	if err != nil {
		return err
	}
	if err := registry.Register(transform); err != nil {
		return err
	}
	return registry.Register(NewAssertProvider(validator))
}
