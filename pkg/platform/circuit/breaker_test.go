package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("ledger", WithFailureThreshold(3))

	assert.False(t, b.RecordFailure())
	assert.False(t, b.RecordFailure())
	assert.True(t, b.RecordFailure())
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("ledger", WithFailureThreshold(2))
	b.RecordFailure()
	b.RecordSuccess()
	assert.False(t, b.RecordFailure())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := New("ledger", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(clock.Now))
	b.RecordFailure()

	assert.False(t, b.Allow())
	clock.Advance(time.Second)
	assert.True(t, b.Allow(), "first probe allowed")
	assert.False(t, b.Allow(), "only one probe in flight")

	t.Run("failed probe re-arms cooldown", func(t *testing.T) {
		b.RecordFailure()
		assert.False(t, b.Allow())
		clock.Advance(time.Second)
		assert.True(t, b.Allow())
	})

	t.Run("successful probe closes", func(t *testing.T) {
		assert.True(t, b.RecordSuccess())
		assert.Equal(t, StateClosed, b.State())
		assert.True(t, b.Allow())
	})
}

func TestBreaker_Reset(t *testing.T) {
	b := New("ledger", WithFailureThreshold(1))
	b.RecordFailure()
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
}
