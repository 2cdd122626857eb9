package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaylabs/patternd/pkg/schema"
)

// --- fake provider ---

type fakeProvider struct {
	name         string
	capabilities []string
	invoke       func(ctx context.Context, capability string, params map[string]any) (any, error)
}

func (p *fakeProvider) Name() string            { return p.name }
func (p *fakeProvider) Capabilities() []string  { return p.capabilities }
func (p *fakeProvider) Invoke(ctx context.Context, capability string, params map[string]any) (any, error) {
	if p.invoke != nil {
		return p.invoke(ctx, capability, params)
	}
	return p.name, nil
}

func newFake(name string, capabilities ...string) *fakeProvider {
	return &fakeProvider{name: name, capabilities: capabilities}
}

// --- tests ---

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry(nil)
	p := newFake("market.provider", "market.fetch", "market.quote")

	require.NoError(t, r.Register(p))

	got, err := r.Resolve("market.fetch")
	require.NoError(t, err)
	assert.Same(t, p, got.(*fakeProvider))

	assert.True(t, r.Has("market.quote"))
	assert.False(t, r.Has("market.unknown"))
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_ResolveUnknownIsStructuredError(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Resolve("nope")
	require.Error(t, err)

	var perr *schema.PatternError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, schema.ErrCodeCapabilityNotFound, perr.Code)
}

func TestRegistry_FirstRegistrationWins(t *testing.T) {
	r := NewRegistry(nil)
	first := newFake("provider.a", "risk.compute")
	second := newFake("provider.b", "risk.compute")

	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	got, err := r.Resolve("risk.compute")
	require.NoError(t, err)
	assert.Equal(t, "provider.a", got.Name())

	// The losing registration is kept for audit, unselected.
	regs := r.Registrations()
	require.Len(t, regs, 2)
	assert.True(t, regs[0].Selected)
	assert.False(t, regs[1].Selected)
}

func TestRegistry_IdempotentReRegistration(t *testing.T) {
	r := NewRegistry(nil)
	p := newFake("provider.a", "risk.compute")

	require.NoError(t, r.Register(p))
	require.NoError(t, r.Register(p))

	assert.Len(t, r.Registrations(), 1)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_LookupByIdentity(t *testing.T) {
	r := NewRegistry(nil)
	winner := newFake("provider.a", "risk.compute")
	loser := newFake("provider.b", "risk.compute")
	require.NoError(t, r.Register(winner))
	require.NoError(t, r.Register(loser))

	// Identity lookup reaches the loser even though it never resolves by name.
	got, err := r.Lookup("provider.b")
	require.NoError(t, err)
	assert.Equal(t, "provider.b", got.Name())

	_, err = r.Lookup("provider.c")
	assert.Error(t, err)
}

func TestRegistry_InvalidRegistrations(t *testing.T) {
	r := NewRegistry(nil)

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(newFake("", "x")))
	assert.Error(t, r.Register(newFake("no.caps")))
	assert.Error(t, r.RegisterCapability("", newFake("p", "x")))
}

func TestRegistry_ListSortedByName(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newFake("p1", "zeta.op", "alpha.op", "mid.op")))

	infos := r.List()
	require.Len(t, infos, 3)
	assert.Equal(t, "alpha.op", infos[0].Capability)
	assert.Equal(t, "mid.op", infos[1].Capability)
	assert.Equal(t, "zeta.op", infos[2].Capability)
}

func TestRegistry_ConcurrentRegisterAndResolve(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = r.Register(newFake(fmt.Sprintf("p%d", n), fmt.Sprintf("cap.%d", n), "shared.op"))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = r.Resolve("shared.op")
			_ = r.Has("shared.op")
			_ = r.List()
		}()
	}
	wg.Wait()

	// Exactly one provider holds shared.op regardless of interleaving.
	got, err := r.Resolve("shared.op")
	require.NoError(t, err)
	assert.NotEmpty(t, got.Name())
}
