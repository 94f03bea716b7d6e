package chaos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseProfile(t *testing.T) {
	drop, dMin, dMax, disc, err := ParseProfile("drop-pct=30,delay=50-250,disconnect-pct=5")
	require.NoError(t, err)
	assert.Equal(t, 30, drop)
	assert.Equal(t, 50, dMin)
	assert.Equal(t, 250, dMax)
	assert.Equal(t, 5, disc)

	_, _, _, _, err = ParseProfile("drop-pct=abc")
	assert.Error(t, err)

	drop, _, _, _, err = ParseProfile("")
	require.NoError(t, err)
	assert.Zero(t, drop)
}

func TestNilInjectorIsInert(t *testing.T) {
	var c *Injector
	assert.False(t, c.Enabled())
	assert.False(t, c.MaybeDrop("op"))
	assert.False(t, c.MaybeDisconnect("op"))
	assert.NoError(t, c.MaybeDelay(context.Background(), "op"))
}

func TestDisabledInjectorNeverFires(t *testing.T) {
	c := New(&Config{Enabled: false, DropPct: 100, DisconnectPct: 100, Seed: 1}, zap.NewNop())
	for i := 0; i < 50; i++ {
		assert.False(t, c.MaybeDrop("op"))
		assert.False(t, c.MaybeDisconnect("op"))
	}
}

func TestDropPctHundredAlwaysDrops(t *testing.T) {
	c := New(&Config{Enabled: true, DropPct: 100, Seed: 1}, zap.NewNop())
	for i := 0; i < 50; i++ {
		assert.True(t, c.MaybeDrop("op"))
	}
}

func TestSeededSequencesAreDeterministic(t *testing.T) {
	a := New(&Config{Enabled: true, DropPct: 50, Seed: 42}, zap.NewNop())
	b := New(&Config{Enabled: true, DropPct: 50, Seed: 42}, zap.NewNop())

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.MaybeDrop("op"), b.MaybeDrop("op"), "same seed must reproduce the same decisions")
	}
}

func TestWindowExpiry(t *testing.T) {
	c := New(&Config{Enabled: true, DropPct: 100, Seed: 1, WindowMs: 10}, zap.NewNop())
	require.True(t, c.Enabled())

	time.Sleep(25 * time.Millisecond)
	assert.False(t, c.Enabled(), "injection stops once the window elapses")
	assert.False(t, c.MaybeDrop("op"))
}

func TestMaybeDelayCancellable(t *testing.T) {
	c := New(&Config{Enabled: true, DelayMsMin: 60000, DelayMsMax: 60000, Seed: 1}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.MaybeDelay(ctx, "op")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProfileOverridesFields(t *testing.T) {
	c := New(&Config{Enabled: true, Profile: "drop-pct=100", Seed: 1}, zap.NewNop())
	assert.True(t, c.MaybeDrop("op"))
}
