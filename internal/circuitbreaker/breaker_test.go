package circuitbreaker

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
}

func TestObserve_AcceptsGradualDrift(t *testing.T) {
	b := New(DefaultOptions())

	require.NoError(t, b.Observe(wad(100))) // 1.00
	require.NoError(t, b.Observe(wad(101)))
	require.NoError(t, b.Observe(wad(103)))
	assert.Equal(t, StateClosed, b.GetState())
}

func TestObserve_TripsOnJump(t *testing.T) {
	var reason string
	opts := DefaultOptions()
	opts.OnTrip = func(r string) { reason = r }
	b := New(opts)

	require.NoError(t, b.Observe(wad(100)))
	err := b.Observe(wad(160)) // +60% > 50% ceiling
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.GetState())
	assert.Contains(t, reason, "jumped")
}

func TestObserve_TripsOnDrop(t *testing.T) {
	b := New(DefaultOptions())

	require.NoError(t, b.Observe(wad(100)))
	err := b.Observe(wad(90)) // -10% > 5% floor
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.GetState())
}

func TestObserve_OpenRejectsUntilCooldown(t *testing.T) {
	opts := DefaultOptions()
	opts.Cooldown = time.Hour
	b := New(opts)

	require.NoError(t, b.Observe(wad(100)))
	require.Error(t, b.Observe(wad(200)))

	err := b.Observe(wad(100))
	require.ErrorIs(t, err, ErrOpen)
}

func TestObserve_HalfOpenRecovery(t *testing.T) {
	opts := DefaultOptions()
	opts.Cooldown = 0
	opts.HealthThreshold = 2
	b := New(opts)

	require.NoError(t, b.Observe(wad(100)))
	require.Error(t, b.Observe(wad(200)))
	assert.Equal(t, StateOpen, b.GetState())

	// Zero cooldown: the next sample probes half-open.
	require.NoError(t, b.Observe(wad(101)))
	assert.Equal(t, StateHalfOpen, b.GetState())

	require.NoError(t, b.Observe(wad(102)))
	assert.Equal(t, StateClosed, b.GetState())
}

func TestObserve_RejectsNonPositive(t *testing.T) {
	b := New(DefaultOptions())
	assert.Error(t, b.Observe(nil))
	assert.Error(t, b.Observe(big.NewInt(0)))
	assert.Equal(t, StateClosed, b.GetState())
}

func TestReset(t *testing.T) {
	b := New(DefaultOptions())
	require.NoError(t, b.Observe(wad(100)))
	require.Error(t, b.Observe(wad(200)))

	b.Reset()
	assert.Equal(t, StateClosed, b.GetState())
	// Reference forgotten: the first sample after reset is always accepted.
	assert.NoError(t, b.Observe(wad(500)))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
