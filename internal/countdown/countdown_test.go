package countdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)

func TestTimer_SixtySecondBaselineExpiresOnSixtiethTick(t *testing.T) {
	timer := New(60*time.Second, t0, DefaultMinStep)

	now := t0
	prev := timer.Remaining()
	firedAt := 0
	for i := 1; i <= 70; i++ {
		now = now.Add(time.Second)
		remaining, fired := timer.Tick(now)

		assert.LessOrEqual(t, remaining, prev, "tick %d increased remaining time", i)
		assert.GreaterOrEqual(t, remaining, time.Duration(0))
		prev = remaining

		if fired {
			require.Zero(t, firedAt, "expiry fired twice")
			firedAt = i
		}
	}

	assert.Equal(t, 60, firedAt)
	assert.Zero(t, timer.Remaining())
	assert.True(t, timer.Expired())
}

func TestTimer_SlightlyLongTicksStillExpireAtSixty(t *testing.T) {
	timer := New(60*time.Second, t0, DefaultMinStep)

	now := t0
	for i := 1; i <= 59; i++ {
		now = now.Add(1000*time.Millisecond + 500*time.Microsecond)
		_, fired := timer.Tick(now)
		require.False(t, fired, "fired early at tick %d", i)
	}
	_, fired := timer.Tick(now.Add(time.Second))
	assert.True(t, fired)
}

func TestTimer_ShortTicksCountAsMinimumStep(t *testing.T) {
	timer := New(10*time.Second, t0, DefaultMinStep)

	remaining, _ := timer.Tick(t0.Add(200 * time.Millisecond))
	assert.Equal(t, 9*time.Second, remaining)

	// A clock moved backwards still costs one step.
	remaining, _ = timer.Tick(t0.Add(-time.Hour))
	assert.Equal(t, 8*time.Second, remaining)
}

func TestTimer_ThrottledTickCatchesUp(t *testing.T) {
	timer := New(30*time.Second, t0, DefaultMinStep)

	remaining, fired := timer.Tick(t0.Add(12 * time.Second))
	assert.False(t, fired)
	assert.Equal(t, 18*time.Second, remaining)

	remaining, fired = timer.Tick(t0.Add(45 * time.Second))
	assert.True(t, fired)
	assert.Zero(t, remaining)
}

func TestTimer_ZeroBaselineExpiresOnFirstTick(t *testing.T) {
	timer := New(0, t0, DefaultMinStep)
	assert.False(t, timer.Expired())

	_, fired := timer.Tick(t0.Add(time.Second))
	assert.True(t, fired)

	_, fired = timer.Tick(t0.Add(2 * time.Second))
	assert.False(t, fired)
}

func TestTimer_RebaseOnlyLowers(t *testing.T) {
	timer := New(60*time.Second, t0, DefaultMinStep)

	timer.Rebase(90*time.Second, t0)
	assert.Equal(t, 60*time.Second, timer.Remaining())

	timer.Rebase(40*time.Second, t0.Add(time.Second))
	assert.Equal(t, 40*time.Second, timer.Remaining())

	remaining, _ := timer.Tick(t0.Add(2 * time.Second))
	assert.Equal(t, 39*time.Second, remaining)
}
