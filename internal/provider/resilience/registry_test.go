package resilience_test

import (
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdtrack/holdtrack/internal/provider/resilience"
)

func registered(t *testing.T, reg *resilience.Registry, name string) *resilience.Client {
	t.Helper()
	cfg := resilience.DefaultClientConfig(name)
	cfg.Registry = reg
	return resilience.NewClient(cfg)
}

func TestRegistry_NewClientRegisters(t *testing.T) {
	reg := resilience.NewRegistry()
	client := registered(t, reg, "helius")

	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, "helius", client.Name())

	st, ok := reg.Status("helius")
	require.True(t, ok)
	assert.Equal(t, gobreaker.StateClosed, st.State)
	assert.True(t, st.Available())
	assert.Nil(t, st.LastSuccessAt)
}

func TestRegistry_Unregister(t *testing.T) {
	reg := resilience.NewRegistry()
	registered(t, reg, "helius")

	reg.Unregister("helius")
	reg.Unregister("never-registered")

	assert.Equal(t, 0, reg.Len())
	_, ok := reg.Status("helius")
	assert.False(t, ok)
}

func TestRegistry_RecordOutcomes(t *testing.T) {
	reg := resilience.NewRegistry()
	registered(t, reg, "dexscreener")

	reg.RecordSuccess("dexscreener")
	reg.RecordFailure("dexscreener", assert.AnError)

	st, ok := reg.Status("dexscreener")
	require.True(t, ok)
	require.NotNil(t, st.LastSuccessAt)
	require.NotNil(t, st.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *st.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), st.LastError)
}

func TestRegistry_RecordUnknownIsNoop(t *testing.T) {
	reg := resilience.NewRegistry()

	reg.RecordSuccess("missing")
	reg.RecordFailure("missing", assert.AnError)

	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_AllSortedByName(t *testing.T) {
	reg := resilience.NewRegistry()
	for _, name := range []string{"helius", "dexscreener", "birdeye"} {
		registered(t, reg, name)
	}

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, "birdeye", all[0].Name)
	assert.Equal(t, "dexscreener", all[1].Name)
	assert.Equal(t, "helius", all[2].Name)
}

func TestStatus_Available(t *testing.T) {
	assert.True(t, resilience.Status{State: gobreaker.StateClosed}.Available())
	assert.True(t, resilience.Status{State: gobreaker.StateHalfOpen}.Available())
	assert.False(t, resilience.Status{State: gobreaker.StateOpen}.Available())
}
