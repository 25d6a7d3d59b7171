package runloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_SubmitOrdering(t *testing.T) {
	loop := New(nil)
	defer loop.Close()

	var got []int
	for i := range 10 {
		loop.Submit(func() { got = append(got, i) })
	}

	require.NoError(t, loop.Do(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLoop_Do_ReturnsAfterRun(t *testing.T) {
	loop := New(nil)
	defer loop.Close()

	ran := false
	err := loop.Do(context.Background(), func() { ran = true })
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestLoop_Do_ContextCanceled(t *testing.T) {
	loop := New(nil)
	defer loop.Close()

	block := make(chan struct{})
	loop.Submit(func() { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := loop.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}

func TestLoop_ScheduleAndCancel(t *testing.T) {
	loop := New(nil)
	defer loop.Close()

	var fired atomic.Int32
	loop.Schedule(10*time.Millisecond, func() { fired.Add(1) })
	canceled := loop.Schedule(10*time.Millisecond, func() { fired.Add(100) })
	canceled.Cancel()

	assert.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestLoop_Every(t *testing.T) {
	loop := New(nil)
	defer loop.Close()

	var ticks atomic.Int32
	every := loop.Every(5*time.Millisecond, func() { ticks.Add(1) })

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 },
		time.Second, time.Millisecond)
	every.Cancel()
}

func TestManual_AdvanceFiresInOrder(t *testing.T) {
	m := NewManual()

	var got []string
	m.Schedule(30*time.Millisecond, func() { got = append(got, "c") })
	m.Schedule(10*time.Millisecond, func() { got = append(got, "a") })
	m.Schedule(20*time.Millisecond, func() { got = append(got, "b") })

	m.Advance(25 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, got)

	m.Advance(10 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Zero(t, m.Pending())
}

func TestManual_CancelPreventsFire(t *testing.T) {
	m := NewManual()

	fired := false
	c := m.Schedule(10*time.Millisecond, func() { fired = true })
	c.Cancel()

	m.Advance(time.Second)
	assert.False(t, fired)
}

func TestManual_EveryRepeats(t *testing.T) {
	m := NewManual()

	count := 0
	every := m.Every(10*time.Millisecond, func() { count++ })

	m.Advance(35 * time.Millisecond)
	assert.Equal(t, 3, count)

	every.Cancel()
	m.Advance(100 * time.Millisecond)
	assert.Equal(t, 3, count)
}

func TestManual_TimerScheduledDuringFire(t *testing.T) {
	m := NewManual()

	var got []string
	m.Schedule(10*time.Millisecond, func() {
		got = append(got, "outer")
		m.Schedule(5*time.Millisecond, func() { got = append(got, "inner") })
	})

	m.Advance(20 * time.Millisecond)
	assert.Equal(t, []string{"outer", "inner"}, got)
}

func TestManual_NowAdvances(t *testing.T) {
	m := NewManual()
	start := m.Now()
	m.Advance(42 * time.Second)
	assert.Equal(t, start.Add(42*time.Second), m.Now())
}
