package runloop

import (
	"sort"
	"time"
)

// Manual is a deterministic Scheduler for tests. Submitted callbacks run
// inline, and scheduled callbacks fire only when Advance moves the clock
// past their deadline, in chronological order.
type Manual struct {
	now    time.Time
	timers []*manualTimer
	seq    int
}

type manualTimer struct {
	at       time.Time
	interval time.Duration // zero for one-shot
	fn       func()
	canceled bool
	seq      int
}

func (t *manualTimer) Cancel() {
	t.canceled = true
}

// NewManual creates a manual scheduler starting at a fixed epoch.
func NewManual() *Manual {
	return &Manual{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Submit runs fn immediately, preserving single-context semantics.
func (m *Manual) Submit(fn func()) {
	fn()
}

// Schedule registers a one-shot callback d from the current time.
func (m *Manual) Schedule(d time.Duration, fn func()) Canceler {
	return m.add(d, 0, fn)
}

// Every registers a repeating callback with period d.
func (m *Manual) Every(d time.Duration, fn func()) Canceler {
	return m.add(d, d, fn)
}

// Now returns the manual clock's current time.
func (m *Manual) Now() time.Time {
	return m.now
}

// Advance moves the clock forward by d, firing due timers in order.
// Timers scheduled by firing callbacks are honored within the same advance.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.at
		if next.interval > 0 {
			next.at = next.at.Add(next.interval)
		} else {
			m.remove(next)
		}
		next.fn()
	}
	m.now = target
}

// Pending reports how many scheduled callbacks have not fired or been canceled.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.timers {
		if !t.canceled {
			n++
		}
	}
	return n
}

func (m *Manual) add(d, interval time.Duration, fn func()) *manualTimer {
	m.seq++
	t := &manualTimer{at: m.now.Add(d), interval: interval, fn: fn, seq: m.seq}
	m.timers = append(m.timers, t)
	return t
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	live := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.canceled && !t.at.After(target) {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return nil
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	return live[0]
}

func (m *Manual) remove(t *manualTimer) {
	for i, cand := range m.timers {
		if cand == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}
