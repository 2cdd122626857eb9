package capability

import (
	"context"
	"errors"
	"time"

	"github.com/quaylabs/patternd/pkg/schema"
)

// Invocation is the observable record of one tracked or dynamic dispatch.
type Invocation struct {
	Capability string
	Provider   string
	Mode       schema.DispatchMode
	StartedAt  time.Time
	Duration   time.Duration
	Result     any
	Err        *schema.PatternError
}

// Dispatcher invokes providers through the registry in one of three modes.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a Dispatcher over the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// InvokeDirect calls a pinned provider by identity with no tracking overhead:
// an identity lookup and the call, nothing else.
func (d *Dispatcher) InvokeDirect(ctx context.Context, providerName, capability string, params map[string]any) (any, error) {
	provider, err := d.registry.Lookup(providerName)
	if err != nil {
		return nil, err
	}
	return provider.Invoke(ctx, capability, params)
}

// InvokeTracked calls a pinned provider by identity, wrapping the call with
// start/end timestamps and a recorded outcome.
func (d *Dispatcher) InvokeTracked(ctx context.Context, providerName, capability string, params map[string]any) Invocation {
	inv := Invocation{
		Capability: capability,
		Provider:   providerName,
		Mode:       schema.DispatchTracked,
	}

	provider, err := d.registry.Lookup(providerName)
	if err != nil {
		inv.Err = asPatternError(err, schema.ErrCodeCapabilityNotFound)
		return inv
	}

	d.run(ctx, provider, &inv, params)
	return inv
}

// InvokeDynamic resolves the first-registered provider for a capability name
// and invokes it tracked. This is the orchestrator's default mode: patterns
// stay decoupled from concrete provider identity, so providers can be swapped
// without editing patterns.
func (d *Dispatcher) InvokeDynamic(ctx context.Context, capability string, params map[string]any) Invocation {
	inv := Invocation{
		Capability: capability,
		Mode:       schema.DispatchDynamic,
	}

	provider, err := d.registry.Resolve(capability)
	if err != nil {
		inv.Err = asPatternError(err, schema.ErrCodeCapabilityNotFound)
		return inv
	}
	inv.Provider = provider.Name()

	d.run(ctx, provider, &inv, params)
	return inv
}

// run performs the timed provider call shared by tracked and dynamic modes.
func (d *Dispatcher) run(ctx context.Context, provider Provider, inv *Invocation, params map[string]any) {
	inv.StartedAt = time.Now().UTC()
	result, err := provider.Invoke(ctx, inv.Capability, params)
	inv.Duration = time.Since(inv.StartedAt)

	if err != nil {
		if ctx.Err() != nil {
			inv.Err = schema.NewErrorf(schema.ErrCodeCancelled,
				"capability %q cancelled: %s", inv.Capability, ctx.Err().Error()).WithCause(err)
			return
		}
		inv.Err = asPatternError(err, schema.ErrCodeCapabilityExecution).
			WithDetails(map[string]any{"capability": inv.Capability, "provider": inv.Provider})
		return
	}
	inv.Result = result
}

// asPatternError preserves structured errors and wraps everything else
// under the given default code.
func asPatternError(err error, defaultCode string) *schema.PatternError {
	var perr *schema.PatternError
	if errors.As(err, &perr) {
		return perr
	}
	return schema.NewError(defaultCode, err.Error()).WithCause(err)
}
