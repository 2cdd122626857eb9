// Package output extracts the final result mapping from a finished execution
// state according to the pattern's output specification. Missing keys are
// omitted with a warning, never an error: a pattern that lost an optional
// step should still deliver whatever it could compute.
package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quaylabs/patternd/pkg/schema"
)

// Warning describes one output reference that never appeared in state.
type Warning struct {
	Key     string
	Message string
}

// Extract produces the output mapping for the given spec. The three spec
// variants are handled by one exhaustive switch; an unrecognized kind is a
// load-time defect and yields an empty result with a warning.
func Extract(spec schema.OutputSpec, state map[string]any) (map[string]any, []Warning) {
	switch spec.Kind {
	case "":
		// No outputs declared; nothing to extract.
		return map[string]any{}, nil

	case schema.OutputKindList:
		return extractKeys(spec.Keys, state)

	case schema.OutputKindLabeled:
		// Labels are informational only; the map's keys behave like the list variant.
		keys := make([]string, 0, len(spec.Labels))
		for key := range spec.Labels {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return extractKeys(keys, state)

	case schema.OutputKindPanels:
		return extractPanels(spec.Panels, state)

	default:
		return map[string]any{}, []Warning{{
			Message: fmt.Sprintf("unknown output spec kind %q", spec.Kind),
		}}
	}
}

func extractKeys(keys []string, state map[string]any) (map[string]any, []Warning) {
	result := make(map[string]any, len(keys))
	var warnings []Warning
	for _, key := range keys {
		val, ok := state[key]
		if !ok {
			warnings = append(warnings, Warning{
				Key:     key,
				Message: fmt.Sprintf("output key %q not present in state; omitted", key),
			})
			continue
		}
		result[key] = val
	}
	return result, warnings
}

// extractPanels copies panel values under the matched state key, not the panel
// id. Display metadata on panel entries is discarded here.
func extractPanels(panels []schema.PanelRef, state map[string]any) (map[string]any, []Warning) {
	result := make(map[string]any, len(panels))
	var warnings []Warning

	// Sorted keys give the fuzzy scan a stable iteration order.
	stateKeys := make([]string, 0, len(state))
	for key := range state {
		stateKeys = append(stateKeys, key)
	}
	sort.Strings(stateKeys)

	for _, panel := range panels {
		matched, ok := matchPanel(panel.ID, state, stateKeys)
		if !ok {
			warnings = append(warnings, Warning{
				Key:     panel.ID,
				Message: fmt.Sprintf("panel id %q matched no state key; omitted", panel.ID),
			})
			continue
		}
		result[matched] = state[matched]
	}
	return result, warnings
}

// matchPanel looks up a panel id against state keys: exact match first, then
// the first key (in sorted order) equal to the id, ending with "_<id>", or
// starting with "<id>_".
func matchPanel(id string, state map[string]any, sortedKeys []string) (string, bool) {
	if _, ok := state[id]; ok {
		return id, true
	}
	for _, key := range sortedKeys {
		if key == id || strings.HasSuffix(key, "_"+id) || strings.HasPrefix(key, id+"_") {
			return key, true
		}
	}
	return "", false
}
