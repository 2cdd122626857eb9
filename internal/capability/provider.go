// Package capability maps capability names to provider handles and dispatches
// step invocations. The registry is built once at startup and treated as
// read-only afterwards: registration must complete before any execution
// begins, so concurrent executions read it without coordination.
package capability

import "context"

// Provider is an implementation of one or more named capabilities.
// Providers are external collaborators; the engine sees only this surface.
type Provider interface {
	// Name is the provider's concrete identity, used for direct dispatch
	// and recorded in execution traces.
	Name() string

	// Capabilities lists the capability names this provider implements.
	Capabilities() []string

	// Invoke executes one capability with fully resolved parameters.
	// Blocking I/O inside providers must honor ctx cancellation.
	Invoke(ctx context.Context, capability string, params map[string]any) (any, error)
}

// Info is a summary of one registered capability for listing.
type Info struct {
	Capability string `json:"capability"`
	Provider   string `json:"provider"`
	Ordinal    int    `json:"ordinal"`
}
