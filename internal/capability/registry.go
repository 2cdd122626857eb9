package capability

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/quaylabs/patternd/pkg/schema"
)

// Registration records one register call. Registrations that lost to an
// earlier provider for the same name are kept for audit but never selected.
type Registration struct {
	Capability string
	Provider   Provider
	Ordinal    int
	Selected   bool
}

// Registry is the concrete thread-safe capability registry. Resolution is a
// single map lookup; duplicate names resolve deterministically to the first
// registration in ordinal order. No deregistration is supported.
type Registry struct {
	mu            sync.RWMutex
	byCapability  map[string]Provider
	byIdentity    map[string]Provider
	registrations []Registration
	nextOrdinal   int
	logger        *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byCapability: make(map[string]Provider),
		byIdentity:   make(map[string]Provider),
		nextOrdinal:  1,
		logger:       logger,
	}
}

// Register adds a provider under every capability name it declares.
func (r *Registry) Register(provider Provider) error {
	if provider == nil {
		return schema.NewError(schema.ErrCodeValidation, "provider is nil")
	}
	if provider.Name() == "" {
		return schema.NewError(schema.ErrCodeValidation, "provider name is empty")
	}
	names := provider.Capabilities()
	if len(names) == 0 {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"provider %q declares no capabilities", provider.Name())
	}

	for _, name := range names {
		if err := r.RegisterCapability(name, provider); err != nil {
			return err
		}
	}
	return nil
}

// RegisterCapability binds one capability name to a provider. Idempotent for
// an identical (name, provider) pair; a no-op with a warning when the name is
// already bound to a different provider; first registration wins.
func (r *Registry) RegisterCapability(name string, provider Provider) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "capability name is empty")
	}
	if provider == nil {
		return schema.NewError(schema.ErrCodeValidation, "provider is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byIdentity[provider.Name()] = provider

	existing, bound := r.byCapability[name]
	if bound && existing == provider {
		return nil
	}

	selected := !bound
	r.registrations = append(r.registrations, Registration{
		Capability: name,
		Provider:   provider,
		Ordinal:    r.nextOrdinal,
		Selected:   selected,
	})
	r.nextOrdinal++

	if bound {
		r.logger.Warn("capability already registered; keeping first provider",
			slog.String("capability", name),
			slog.String("selected_provider", existing.Name()),
			slog.String("ignored_provider", provider.Name()),
		)
		return nil
	}

	r.byCapability[name] = provider
	return nil
}

// Resolve returns the selected provider for a capability name.
func (r *Registry) Resolve(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.byCapability[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeCapabilityNotFound,
			"no provider registered for capability %q", name)
	}
	return provider, nil
}

// Lookup returns a provider by its concrete identity (direct dispatch).
func (r *Registry) Lookup(providerName string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.byIdentity[providerName]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeCapabilityNotFound,
			"no provider with identity %q", providerName)
	}
	return provider, nil
}

// Has checks whether a capability is resolvable.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byCapability[name]
	return ok
}

// Count returns the number of resolvable capability names.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCapability)
}

// List returns the selected registrations, sorted by capability name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.byCapability))
	for _, reg := range r.registrations {
		if reg.Selected {
			infos = append(infos, Info{
				Capability: reg.Capability,
				Provider:   reg.Provider.Name(),
				Ordinal:    reg.Ordinal,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Capability < infos[j].Capability
	})
	return infos
}

// Registrations returns every register call in ordinal order, including
// losers of first-wins conflicts.
func (r *Registry) Registrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, len(r.registrations))
	copy(out, r.registrations)
	return out
}
