package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewControllerClampsTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		requested int
		want      int
	}{
		{"zero clamps to floor", 0, 1},
		{"negative clamps to floor", -3, 1},
		{"within range unchanged", 5, 5},
		{"ceiling unchanged", 50, 50},
		{"above ceiling clamps", 500, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewController(tt.requested)
			assert.Equal(t, tt.want, c.Target())
			assert.Equal(t, tt.want, c.Current(), "starts at full speed")
		})
	}
}

func TestControllerThrottleHalves(t *testing.T) {
	t.Parallel()

	c := NewController(8)
	now := time.Now()

	c.RecordFailure(now, true)
	assert.Equal(t, 4, c.Current())
	c.RecordFailure(now, true)
	assert.Equal(t, 2, c.Current())
	c.RecordFailure(now, true)
	assert.Equal(t, 1, c.Current())
	c.RecordFailure(now, true)
	assert.Equal(t, 1, c.Current(), "never drops below 1")
}

func TestControllerPlainFailureKeepsConcurrency(t *testing.T) {
	t.Parallel()

	c := NewController(6)
	now := time.Now()

	c.RecordFailure(now, false)
	assert.Equal(t, 6, c.Current())
	assert.Zero(t, c.CooldownRemaining(now))
}

func TestControllerCooldownDoublesToCap(t *testing.T) {
	t.Parallel()

	c := NewController(10)
	now := time.Now()

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		8000 * time.Millisecond, // capped
	}
	for i, d := range want {
		c.RecordFailure(now, true)
		assert.Equal(t, d, c.CooldownRemaining(now), "throttle %d", i+1)
	}

	assert.Zero(t, c.CooldownRemaining(now.Add(time.Minute)), "cooldown expires")
}

func TestControllerRampsAfterStreak(t *testing.T) {
	t.Parallel()

	c := NewController(4)
	now := time.Now()
	c.RecordFailure(now, true)
	require.Equal(t, 2, c.Current())

	// One success short of the streak: no change.
	for i := 0; i < 3; i++ {
		c.RecordSuccess()
	}
	assert.Equal(t, 2, c.Current())

	c.RecordSuccess()
	assert.Equal(t, 3, c.Current(), "climbs by one after target consecutive successes")

	for i := 0; i < 4; i++ {
		c.RecordSuccess()
	}
	assert.Equal(t, 4, c.Current())

	// At target already: further streaks never overshoot.
	for i := 0; i < 12; i++ {
		c.RecordSuccess()
	}
	assert.Equal(t, 4, c.Current())
}

func TestControllerFailureResetsStreak(t *testing.T) {
	t.Parallel()

	c := NewController(3)
	now := time.Now()
	c.RecordFailure(now, true)
	require.Equal(t, 1, c.Current())

	c.RecordSuccess()
	c.RecordSuccess()
	c.RecordFailure(now, false)

	// The streak restarts, so two more successes are not enough.
	c.RecordSuccess()
	c.RecordSuccess()
	assert.Equal(t, 1, c.Current())

	c.RecordSuccess()
	assert.Equal(t, 2, c.Current())
}
