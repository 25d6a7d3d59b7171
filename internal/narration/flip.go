package narration

import (
	"time"

	"github.com/listenupapp/listenup-reader/internal/renderer"
)

// Visibility thresholds for flip prediction. At or past offScreenImmediate
// the highlighted element has effectively left the page; below
// offScreenMinimum it is still comfortably visible.
const (
	offScreenImmediate = 0.9
	offScreenMinimum   = 0.1
)

// HandleVisibility reacts to a visibility report for the highlighted anchor.
// Mostly off-screen elements trigger an immediate forward flip; partially
// off-screen ones schedule a flip for when the audio still covering visible
// text runs out at the current rate, minus the early-trigger offset. Every
// report cancels the previous prediction before making a new one.
func (d *Decider) HandleVisibility(ev renderer.ElementVisibility) {
	d.cancelFlipTimer()

	if !d.syncEnabled || !d.transport.IsPlaying() {
		return
	}

	if ev.OffScreenRatio >= offScreenImmediate {
		d.issueFlip()
		return
	}
	if ev.OffScreenRatio < offScreenMinimum || ev.VisibleRatio >= 1.0 {
		return
	}

	pos := d.transport.Position()
	sec := d.model.Section(pos.Section)
	if sec == nil || pos.Entry >= len(sec.Entries) {
		return
	}
	entryDur := sec.Entries[pos.Entry].Duration()

	delay := time.Duration(entryDur*ev.VisibleRatio/d.transport.Rate()*float64(time.Second)) - d.earlyOffset
	if delay < 0 {
		delay = 0
	}

	d.flipGen++
	gen := d.flipGen
	d.flipTimer = d.sched.Schedule(delay, func() {
		if gen != d.flipGen {
			return
		}
		d.flipTimer = nil
		if d.syncEnabled && d.transport.IsPlaying() {
			d.issueFlip()
		}
	})
}

func (d *Decider) issueFlip() {
	if err := d.turnPage(true); err != nil {
		d.logger.Warn("predicted page flip failed", "error", err)
	}
}

func (d *Decider) cancelFlipTimer() {
	d.flipGen++
	if d.flipTimer != nil {
		d.flipTimer.Cancel()
		d.flipTimer = nil
	}
}
