package validation

import (
	"fmt"
	"strings"

	"github.com/quaylabs/patternd/internal/condition"
	"github.com/quaylabs/patternd/internal/template"
	"github.com/quaylabs/patternd/pkg/schema"
)

// CapabilityLookup reports whether a capability name has a registered
// provider. Satisfied by capability.Registry.
type CapabilityLookup interface {
	Has(capability string) bool
}

// validateSemantic performs semantic analysis beyond what JSON Schema can
// express: capability availability, condition syntax, save_as collisions,
// and output references.
func validateSemantic(doc *schema.PatternDocument, lookup CapabilityLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	saved := make(map[string]int, len(doc.Steps))
	for i := range doc.Steps {
		step := &doc.Steps[i]
		path := fmt.Sprintf("steps[%d]", i)

		// Capability availability. Advisory only: capability names are
		// late-bound, so a provider may register between validation and
		// dispatch, and a name that never resolves fails at dispatch with
		// its own error kind and trace record. Templated names are not
		// checkable here at all.
		if lookup != nil && step.Capability != "" && !template.HasTemplate(step.Capability) {
			if !lookup.Has(step.Capability) {
				result.AddWarning(path+".capability", schema.ErrCodeCapabilityNotFound,
					fmt.Sprintf("capability %q has no registered provider yet", step.Capability))
			}
		}

		// Condition syntax. Templated conditions are only checkable at runtime;
		// a static condition that fails to parse will silently skip its step,
		// which authors should hear about before execution.
		if step.Condition != "" && !template.HasTemplate(step.Condition) {
			if _, err := condition.Parse(step.Condition); err != nil {
				result.AddWarning(path+".condition", schema.ErrCodeConditionEvaluation,
					fmt.Sprintf("condition does not parse and will always skip this step: %v", err))
			}
		}

		if step.SaveAs != "" {
			if strings.Contains(step.SaveAs, ".") {
				result.AddError(path+".save_as", schema.ErrCodeValidation,
					fmt.Sprintf("save_as %q must be a top-level key without dots", step.SaveAs))
			}
			if prev, seen := saved[step.SaveAs]; seen {
				result.AddWarning(path+".save_as", schema.ErrCodeValidation,
					fmt.Sprintf("save_as %q overwrites the result of steps[%d]", step.SaveAs, prev))
			}
			saved[step.SaveAs] = i
		}
	}

	validateOutputRefs(doc, saved, result)
	return result
}

// validateOutputRefs warns about output references that no step saves and no
// input could plausibly satisfy. Warnings only: extraction is fail-open and
// inputs may legitimately provide the key at runtime.
func validateOutputRefs(doc *schema.PatternDocument, saved map[string]int, result *schema.ValidationResult) {
	if doc.Outputs.Kind == "" {
		return
	}

	check := func(path, key string) {
		if _, ok := saved[key]; !ok {
			result.AddWarning(path, schema.ErrCodeOutputExtraction,
				fmt.Sprintf("output references %q which no step saves; it must arrive as an input", key))
		}
	}

	switch doc.Outputs.Kind {
	case schema.OutputKindList:
		for j, key := range doc.Outputs.Keys {
			check(fmt.Sprintf("outputs[%d]", j), key)
		}
	case schema.OutputKindLabeled:
		for label, key := range doc.Outputs.Labels {
			check(fmt.Sprintf("outputs.%s", label), key)
		}
	case schema.OutputKindPanels:
		// Panel IDs match fuzzily against state keys; exact-match absence is
		// normal, so panels are not checked here.
	}
}
