// Package narration is the policy layer above the audio transport: the single
// authority for whether audio follows view navigation, for highlight and
// page-flip commands during active narration, and for sleep timers.
// All methods must be called on the owning session's run loop.
package narration

import (
	"context"
	"log/slog"
	"time"

	"github.com/listenupapp/listenup-reader/internal/overlay"
	"github.com/listenupapp/listenup-reader/internal/renderer"
	"github.com/listenupapp/listenup-reader/internal/runloop"
	"github.com/listenupapp/listenup-reader/internal/transport"
)

// DefaultEarlyOffset is how far ahead of audio exhausting the visible text a
// predicted page flip fires.
const DefaultEarlyOffset = time.Second

// anchorsQueryTimeout bounds the renderer round trip behind a nav-event
// alignment. On expiry audio simply stays where it is.
const anchorsQueryTimeout = 2 * time.Second

// Config carries the decider's collaborators and tunables.
type Config struct {
	Model     *overlay.Model
	Transport *transport.Transport
	Renderer  renderer.Controller
	Scheduler runloop.Scheduler
	Logger    *slog.Logger

	// TurnPage issues a deduplicated page-turn command. When nil, the
	// renderer is commanded directly.
	TurnPage func(forward bool) error

	EarlyOffset time.Duration
}

// Decider decides when audio should track navigation and times flip commands.
type Decider struct {
	model     *overlay.Model
	transport *transport.Transport
	renderer  renderer.Controller
	sched     runloop.Scheduler
	logger    *slog.Logger
	turnPage  func(forward bool) error

	earlyOffset time.Duration
	syncEnabled bool

	// flipGen invalidates stale flip timers; every new visibility report
	// bumps it.
	flipGen   int
	flipTimer runloop.Canceler

	// navGen invalidates in-flight visible-anchors queries; every handler
	// that moves audio bumps it, so a superseded answer is dropped.
	navGen int

	sleep sleepState
}

// New creates a decider with sync enabled.
func New(cfg Config) *Decider {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.EarlyOffset <= 0 {
		cfg.EarlyOffset = DefaultEarlyOffset
	}
	d := &Decider{
		model:       cfg.Model,
		transport:   cfg.Transport,
		renderer:    cfg.Renderer,
		sched:       cfg.Scheduler,
		logger:      cfg.Logger.With("component", "narration"),
		turnPage:    cfg.TurnPage,
		earlyOffset: cfg.EarlyOffset,
		syncEnabled: true,
	}
	if d.turnPage == nil {
		d.turnPage = func(forward bool) error { return d.renderer.TurnPage(forward) }
	}
	return d
}

// SyncEnabled reports whether audio follows navigation.
func (d *Decider) SyncEnabled() bool {
	return d.syncEnabled
}

// SetSyncEnabled toggles audio-follows-navigation. Disabling clears any
// active highlight and pending flip prediction.
func (d *Decider) SetSyncEnabled(on bool) {
	if d.syncEnabled == on {
		return
	}
	d.syncEnabled = on
	if !on {
		d.cancelFlipTimer()
		if err := d.renderer.ClearHighlight(); err != nil {
			d.logger.Warn("clear highlight failed", "error", err)
		}
	}
}

// HandleChapterNavigation reacts to the user selecting a chapter: when sync
// is enabled and the target section carries audio, the transport moves to its
// first entry. Returns whether audio moved.
func (d *Decider) HandleChapterNavigation(section int) (bool, error) {
	d.navGen++
	if !d.syncEnabled {
		return false, nil
	}
	sec := d.model.Section(section)
	if sec == nil || !sec.HasAudio() {
		return false, nil
	}
	if err := d.transport.SetEntry(section, 0); err != nil {
		return false, err
	}
	return true, nil
}

// HandleNavEvent reacts to a settled user navigation within a section. On
// the section's first page audio moves to the first entry; otherwise the
// renderer is asked for the fully visible anchors and audio moves to the
// first aligned one. The visible-anchors query is a renderer round trip, so
// it runs off the loop; done receives whether an alignment match was found,
// which decides fragment-vs-fraction persistence. done may be nil; when
// non-nil it is invoked on the loop, and not at all when a newer navigation
// supersedes the query before its answer lands.
func (d *Decider) HandleNavEvent(section, page, totalPages int, done func(matched bool)) {
	if done == nil {
		done = func(bool) {}
	}
	d.navGen++
	if !d.syncEnabled {
		done(false)
		return
	}
	sec := d.model.Section(section)
	if sec == nil || !sec.HasAudio() {
		done(false)
		return
	}

	if page <= 1 {
		if err := d.transport.SetEntry(section, 0); err != nil {
			d.logger.Warn("nav re-align failed", "error", err)
			done(false)
			return
		}
		done(true)
		return
	}

	gen := d.navGen
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), anchorsQueryTimeout)
		defer cancel()
		anchors, err := d.renderer.VisibleAnchors(ctx)
		d.sched.Submit(func() {
			if gen != d.navGen {
				return
			}
			if err != nil {
				// Stale or unresponsive view; leave audio where it is.
				d.logger.Warn("visible-anchors query failed", "error", err)
				done(false)
				return
			}
			done(d.alignToVisible(sec, section, anchors))
		})
	}()
}

// alignToVisible moves audio to the first aligned entry among the reported
// anchors. Runs on the loop.
func (d *Decider) alignToVisible(sec *overlay.Section, section int, anchors []string) bool {
	visible := make(map[string]struct{}, len(anchors))
	for _, a := range anchors {
		visible[a] = struct{}{}
	}
	for i := range sec.Entries {
		if _, ok := visible[sec.Entries[i].TextID]; ok {
			if err := d.transport.SetEntry(section, i); err != nil {
				d.logger.Warn("nav re-align failed", "error", err)
				return false
			}
			return true
		}
	}
	return false
}

// HandleSeek moves audio to a specific aligned anchor, highlights it, and
// resumes playback when it was playing before the seek. An anchor absent
// from the section is a stale UI event and a no-op.
func (d *Decider) HandleSeek(section int, anchor string) error {
	d.navGen++
	sec := d.model.Section(section)
	if sec == nil {
		return nil
	}
	entry, ok := sec.EntryForAnchor(anchor)
	if !ok {
		d.logger.Debug("seek to unaligned anchor ignored",
			"section", section, "anchor", anchor)
		return nil
	}

	wasPlaying := d.transport.IsPlaying()
	if err := d.transport.SetEntry(section, entry); err != nil {
		return err
	}
	if err := d.renderer.Highlight(anchor); err != nil {
		d.logger.Warn("highlight failed", "anchor", anchor, "error", err)
	}
	if wasPlaying && !d.transport.IsPlaying() {
		return d.transport.Play()
	}
	return nil
}

// Close cancels any pending timers.
func (d *Decider) Close() {
	d.cancelFlipTimer()
	d.CancelSleep()
}
