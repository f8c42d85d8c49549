package timex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	clock := NewFake(time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))

	fired := false
	clock.AfterFunc(time.Minute, func() { fired = true })

	clock.Advance(59 * time.Second)
	assert.False(t, fired)

	clock.Advance(time.Second)
	assert.True(t, fired)
}

func TestFake_AdvanceFiresInDeadlineOrder(t *testing.T) {
	clock := NewFake(time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))

	// Scheduled out of order; must fire by deadline.
	var order []string
	clock.AfterFunc(3*time.Minute, func() { order = append(order, "c") })
	clock.AfterFunc(time.Minute, func() { order = append(order, "a") })
	clock.AfterFunc(2*time.Minute, func() { order = append(order, "b") })

	clock.Advance(3 * time.Minute)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFake_StopCancelsPendingTimer(t *testing.T) {
	clock := NewFake(time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))

	fired := false
	timer := clock.AfterFunc(time.Minute, func() { fired = true })

	assert.True(t, timer.Stop())
	clock.Advance(time.Hour)
	assert.False(t, fired)

	// A second Stop, and Stop after expiry, report nothing pending.
	assert.False(t, timer.Stop())

	timer2 := clock.AfterFunc(time.Minute, func() {})
	clock.Advance(time.Minute)
	assert.False(t, timer2.Stop())
}
