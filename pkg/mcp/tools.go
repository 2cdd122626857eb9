package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/quaylabs/patternd/pkg/schema"
)

// handleRun executes a stored pattern by id or an inline document.
func (s *PatternServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patternID := req.GetString("pattern_id", "")
	docRaw := mcp.ParseStringMap(req, "document", nil)
	inputs := mcp.ParseStringMap(req, "inputs", nil)

	switch {
	case patternID == "" && docRaw == nil:
		return mcp.NewToolResultError("either pattern_id or document is required"), nil
	case patternID != "" && docRaw != nil:
		return mcp.NewToolResultError("pattern_id and document are mutually exclusive"), nil
	}

	if patternID != "" {
		version := req.GetString("version", "")
		result, err := s.service.RunPattern(ctx, patternID, version, inputs)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
		}
		return marshalResult(result)
	}

	doc, err := decodeDocument(docRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
	}
	result, err := s.service.RunDocument(ctx, doc, inputs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	return marshalResult(result)
}

// handleDefine validates and stores a pattern document.
func (s *PatternServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docRaw := mcp.ParseStringMap(req, "document", nil)
	if docRaw == nil {
		return mcp.NewToolResultError("document is required"), nil
	}
	description := req.GetString("description", "")

	doc, err := decodeDocument(docRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
	}

	stored, err := s.service.DefinePattern(ctx, doc, description)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("define failed: %v", err)), nil
	}

	return marshalResult(map[string]any{
		"ok":         true,
		"pattern_id": stored.ID,
		"version":    stored.Version,
		"steps":      len(stored.Document.Steps),
	})
}

// handleTrace returns a persisted execution with its per-step trace.
func (s *PatternServer) handleTrace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID, err := req.RequireString("execution_id")
	if err != nil {
		return mcp.NewToolResultError("execution_id is required"), nil
	}

	exec, err := s.service.GetExecution(ctx, executionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execution lookup failed: %v", err)), nil
	}
	trace, err := s.service.GetTrace(ctx, executionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("trace lookup failed: %v", err)), nil
	}

	return marshalResult(map[string]any{
		"execution": exec,
		"trace":     trace,
	})
}

// handleCapabilityList lists registered capabilities with their selected
// providers, plus any registrations shadowed by first-wins resolution.
func (s *PatternServer) handleCapabilityList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := s.registry.List()
	capabilities := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		capabilities = append(capabilities, map[string]any{
			"capability": info.Capability,
			"provider":   info.Provider,
			"ordinal":    info.Ordinal,
		})
	}

	var shadowed []map[string]any
	for _, reg := range s.registry.Registrations() {
		if !reg.Selected {
			shadowed = append(shadowed, map[string]any{
				"capability": reg.Capability,
				"provider":   reg.Provider.Name(),
				"ordinal":    reg.Ordinal,
			})
		}
	}

	result := map[string]any{
		"count":        len(capabilities),
		"capabilities": capabilities,
	}
	if len(shadowed) > 0 {
		result["shadowed"] = shadowed
	}
	return marshalResult(result)
}

// decodeDocument converts the tool-call map into a PatternDocument via a JSON
// round trip, so the document's custom decoding (output shapes) applies.
func decodeDocument(raw map[string]any) (*schema.PatternDocument, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	doc := &schema.PatternDocument{}
	if err := json.Unmarshal(b, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
