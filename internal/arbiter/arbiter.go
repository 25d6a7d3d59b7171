// Package arbiter reconciles renderer-reported relocations against pending
// user navigation intents, classifying each settled relocation as
// user-caused (worth persisting) or a natural follow. All methods must be
// called on the owning session's run loop.
package arbiter

import (
	"log/slog"
	"time"

	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/overlay"
	"github.com/listenupapp/listenup-reader/internal/progress"
	"github.com/listenupapp/listenup-reader/internal/renderer"
	"github.com/listenupapp/listenup-reader/internal/runloop"
)

// DefaultFallbackWindow bounds how long an unconfirmed intent may linger
// before it is force-resolved from the last known position.
const DefaultFallbackWindow = 700 * time.Millisecond

// Narrator is the slice of the sync decision layer the arbiter drives.
// HandleNavEvent resolves asynchronously; done is invoked on the loop with
// the match result, or never when a newer navigation supersedes the query.
type Narrator interface {
	HandleChapterNavigation(section int) (bool, error)
	HandleNavEvent(section, page, totalPages int, done func(matched bool))
}

// Persister schedules progress persistence for user-caused events.
type Persister interface {
	ScheduleDebounced(reason progress.Reason, withFragment bool)
}

// View is the last settled renderer position.
type View struct {
	Section         int     `json:"section"`
	Page            int     `json:"page"`
	TotalPages      int     `json:"total_pages"`
	Href            string  `json:"href,omitempty"`
	BookFraction    float64 `json:"book_fraction"`
	ChapterFraction float64 `json:"chapter_fraction"`
}

// Config carries the arbiter's collaborators and tunables.
type Config struct {
	Model     *overlay.Model
	Renderer  renderer.Controller
	Narrator  Narrator
	Persister Persister
	Scheduler runloop.Scheduler
	Logger    *slog.Logger

	FallbackWindow time.Duration
}

// Arbiter owns pending-intent state and relocation classification for one
// open book.
type Arbiter struct {
	model    *overlay.Model
	renderer renderer.Controller
	narrator Narrator
	persist  Persister
	sched    runloop.Scheduler
	logger   *slog.Logger

	fallbackWindow time.Duration

	view    View
	pending *intent
	gen     int

	// echoExpected counts engine-issued page-turn commands whose renderer
	// flip report has not arrived yet; those reports are duplicates of the
	// action already queued.
	echoExpected int
}

// New creates an arbiter positioned at the start of the book.
func New(cfg Config) *Arbiter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FallbackWindow <= 0 {
		cfg.FallbackWindow = DefaultFallbackWindow
	}
	return &Arbiter{
		model:          cfg.Model,
		renderer:       cfg.Renderer,
		narrator:       cfg.Narrator,
		persist:        cfg.Persister,
		sched:          cfg.Scheduler,
		logger:         cfg.Logger.With("component", "arbiter"),
		fallbackWindow: cfg.FallbackWindow,
		view:           View{Page: 1},
	}
}

// View returns the last settled renderer position.
func (a *Arbiter) View() View {
	return a.view
}

// RequestPageTurn issues a page-turn command and queues the matching intent.
// The renderer's echo of this command is consumed as a duplicate.
func (a *Arbiter) RequestPageTurn(forward bool) error {
	a.echoExpected++
	if err := a.renderer.TurnPage(forward); err != nil {
		a.echoExpected--
		return errors.Wrap(err, errors.CodeTransport, "page turn command")
	}
	a.queuePageIntent(forward)
	return nil
}

// RequestChapterJump navigates the renderer to a section and records a
// chapter-transition intent for it.
func (a *Arbiter) RequestChapterJump(section int) error {
	sec := a.model.Section(section)
	if sec == nil {
		return errors.NotFoundf("no section %d", section)
	}
	a.setPending(&intent{
		kind:    intentChapterTransition,
		section: section,
		reason:  progress.ReasonChapterSelect,
	}, false)
	return a.renderer.NavigateToHref(sec.Path)
}

// RequestSeek navigates the renderer to a seek target and records a
// seek-nav intent expecting that section.
func (a *Arbiter) RequestSeek(section int, anchor string) error {
	sec := a.model.Section(section)
	if sec == nil {
		return errors.NotFoundf("no section %d", section)
	}
	a.setPending(&intent{
		kind:    intentSeekNav,
		section: section,
		reason:  progress.ReasonSeek,
	}, true)

	href := sec.Path
	if anchor != "" {
		href += "#" + anchor
	}
	return a.renderer.NavigateToHref(href)
}

// HandlePageFlipped reacts to a flip report. The first report after an
// engine-issued command consumes one echo count and is ignored; the rest
// are swipes and queue a page intent of their own.
func (a *Arbiter) HandlePageFlipped(ev renderer.PageFlipped) {
	if a.echoExpected > 0 {
		a.echoExpected--
		return
	}
	a.queuePageIntent(ev.Forward)
}

// HandleRelocated classifies a settled relocation, updates the live view
// either way, re-aligns audio, and schedules persistence only for
// user-caused events.
func (a *Arbiter) HandleRelocated(ev renderer.Relocated) {
	userCaused := false
	var reason progress.Reason
	var kind intentKind

	if p := a.pending; p != nil {
		switch p.kind {
		case intentChapterTransition:
			if ev.Section != p.section {
				// Still mid-transition; track position but do not classify.
				a.updateView(ev)
				return
			}
			reason, kind = p.reason, p.kind
			a.clearPending()
			userCaused = true
		case intentPageNav:
			if ev.Section != p.section {
				// The user navigated away before the flip settled. The
				// intent dies and the event is evaluated fresh below.
				a.clearPending()
			} else if ev.Page == p.page {
				reason, kind = p.reason, p.kind
				a.clearPending()
				userCaused = true
			}
		case intentSeekNav:
			if ev.Section != p.section {
				a.clearPending()
			} else {
				reason, kind = p.reason, p.kind
				a.clearPending()
				userCaused = true
			}
		}
	}

	a.updateView(ev)

	if userCaused {
		a.realign(kind, ev.Section, ev.Page, ev.TotalPages, reason)
		return
	}

	// No intent pending: a natural follow. Audio tracks, nothing persists.
	if a.pending == nil {
		a.narrator.HandleNavEvent(a.view.Section, a.view.Page, a.view.TotalPages, nil)
	}
}

// Close cancels any pending intent.
func (a *Arbiter) Close() {
	a.clearPending()
}

// queuePageIntent computes the expected page, compounding off an already
// pending expectation so rapid repeated flips add up. An out-of-range
// candidate is a chapter-boundary crossing: the already issued command
// carries the view across, so only a transition intent is recorded.
func (a *Arbiter) queuePageIntent(forward bool) {
	base, total := a.view.Page, a.view.TotalPages
	if p := a.pending; p != nil && p.kind == intentPageNav {
		base, total = p.page, p.totalPages
	}
	candidate := base + 1
	if !forward {
		candidate = base - 1
	}

	if candidate < 1 || (total > 0 && candidate > total) {
		target := a.view.Section + 1
		if !forward {
			target = a.view.Section - 1
		}
		a.clearPending()
		if a.model.Section(target) == nil {
			// Edge of the book; the renderer will not move.
			return
		}
		a.setPending(&intent{
			kind:    intentChapterTransition,
			section: target,
			reason:  progress.ReasonPageFlip,
		}, false)
		return
	}

	a.setPending(&intent{
		kind:       intentPageNav,
		section:    a.view.Section,
		page:       candidate,
		totalPages: total,
		reason:     progress.ReasonPageFlip,
	}, true)
}

func (a *Arbiter) setPending(in *intent, withFallback bool) {
	a.clearPending()
	a.gen++
	in.gen = a.gen
	a.pending = in
	if withFallback {
		gen := in.gen
		in.fallback = a.sched.Schedule(a.fallbackWindow, func() {
			a.fallbackFire(gen)
		})
	}
}

func (a *Arbiter) clearPending() {
	if a.pending == nil {
		return
	}
	if a.pending.fallback != nil {
		a.pending.fallback.Cancel()
	}
	a.pending = nil
}

// fallbackFire force-resolves an intent the renderer never confirmed, using
// the last known position, so worst-case staleness stays bounded.
func (a *Arbiter) fallbackFire(gen int) {
	p := a.pending
	if p == nil || p.gen != gen {
		return
	}
	a.logger.Warn("navigation intent unresolved, force-resolving",
		"kind", p.kind.String(), "section", p.section)
	reason, kind := p.reason, p.kind
	a.clearPending()
	a.realign(kind, a.view.Section, a.view.Page, a.view.TotalPages, reason)
}

// realign re-syncs audio to a user-caused position and schedules the
// debounced persistence once the match decision lands; a found alignment
// match persists a fragment locator, otherwise a fraction.
func (a *Arbiter) realign(kind intentKind, section, page, totalPages int, reason progress.Reason) {
	if kind == intentChapterTransition {
		moved, err := a.narrator.HandleChapterNavigation(section)
		if err != nil {
			a.logger.Warn("chapter re-align failed", "error", err)
		}
		a.persist.ScheduleDebounced(reason, moved)
		return
	}
	a.narrator.HandleNavEvent(section, page, totalPages, func(matched bool) {
		a.persist.ScheduleDebounced(reason, matched)
	})
}

func (a *Arbiter) updateView(ev renderer.Relocated) {
	if ev.Section >= 0 {
		a.view.Section = ev.Section
	}
	if ev.Page > 0 {
		a.view.Page = ev.Page
	}
	if ev.TotalPages > 0 {
		a.view.TotalPages = ev.TotalPages
	}
	if ev.Href != "" {
		a.view.Href = ev.Href
	}
	if ev.Fraction > 0 {
		a.view.BookFraction = ev.Fraction
	}
	if ev.ChapterFraction > 0 {
		a.view.ChapterFraction = ev.ChapterFraction
	}
}
