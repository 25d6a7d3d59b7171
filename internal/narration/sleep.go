package narration

import (
	"time"

	"github.com/listenupapp/listenup-reader/internal/runloop"
)

// SleepMode identifies the active sleep timer variant.
type SleepMode string

const (
	SleepOff          SleepMode = "off"
	SleepDuration     SleepMode = "duration"
	SleepEndOfChapter SleepMode = "end_of_chapter"
)

type sleepState struct {
	mode      SleepMode
	remaining time.Duration
	ticker    runloop.Canceler
}

// StartSleep arms a duration sleep timer that counts down once per second
// and stops playback at zero. Replaces any existing timer.
func (d *Decider) StartSleep(duration time.Duration) {
	d.CancelSleep()
	if duration <= 0 {
		return
	}
	d.sleep.mode = SleepDuration
	d.sleep.remaining = duration
	d.sleep.ticker = d.sched.Every(time.Second, d.sleepTick)
	d.logger.Info("sleep timer armed", "duration", duration)
}

// StartEndOfChapterSleep arms the end-of-chapter timer. It has no countdown;
// it vetoes the next natural section crossing instead.
func (d *Decider) StartEndOfChapterSleep() {
	d.CancelSleep()
	d.sleep.mode = SleepEndOfChapter
	d.logger.Info("end-of-chapter sleep armed")
}

// CancelSleep clears any armed sleep timer.
func (d *Decider) CancelSleep() {
	if d.sleep.ticker != nil {
		d.sleep.ticker.Cancel()
	}
	d.sleep = sleepState{mode: SleepOff}
}

// Sleep reports the armed mode and, for duration timers, the time remaining.
func (d *Decider) Sleep() (SleepMode, time.Duration) {
	if d.sleep.mode == "" {
		return SleepOff, 0
	}
	return d.sleep.mode, d.sleep.remaining
}

func (d *Decider) sleepTick() {
	if d.sleep.mode != SleepDuration {
		return
	}
	d.sleep.remaining -= time.Second
	if d.sleep.remaining > 0 {
		return
	}
	d.logger.Info("sleep timer elapsed, stopping playback")
	d.CancelSleep()
	if err := d.transport.Pause(); err != nil {
		d.logger.Warn("pause on sleep timer failed", "error", err)
	}
}

// CanCrossSection implements the transport's crossing gate. An armed
// end-of-chapter timer vetoes exactly one natural crossing and clears
// itself; the transport stops on the veto.
func (d *Decider) CanCrossSection(from, to int) bool {
	if d.sleep.mode != SleepEndOfChapter {
		return true
	}
	d.logger.Info("end-of-chapter sleep fired", "section", from)
	d.CancelSleep()
	return false
}
