// Package session owns the per-book engine assembly: one run loop, one audio
// transport, one sync decider, one navigation arbiter, and one progress
// policy, wired together for the lifetime of an open book. All engine state
// lives on the session's loop; the public methods marshal onto it.
package session

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/listenupapp/listenup-reader/internal/arbiter"
	"github.com/listenupapp/listenup-reader/internal/config"
	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/id"
	"github.com/listenupapp/listenup-reader/internal/narration"
	"github.com/listenupapp/listenup-reader/internal/overlay"
	"github.com/listenupapp/listenup-reader/internal/player"
	"github.com/listenupapp/listenup-reader/internal/progress"
	"github.com/listenupapp/listenup-reader/internal/renderer"
	"github.com/listenupapp/listenup-reader/internal/runloop"
	"github.com/listenupapp/listenup-reader/internal/transport"
)

// Config carries everything needed to open one book.
type Config struct {
	BookID   string
	BookPath string
	Store    progress.RemoteStore
	Logger   *slog.Logger

	Engine config.EngineConfig
	Sync   config.SyncConfig

	// AudioRoot is the directory audio resources are extracted into; the
	// session uses AudioRoot/BookID.
	AudioRoot string

	// Player overrides the simulated audio backend. When set, no audio is
	// extracted from the archive.
	Player transport.Player
}

// Session is one open book.
type Session struct {
	id       string
	bookID   string
	bookPath string
	model    *overlay.Model
	logger   *slog.Logger

	loop      *runloop.Loop
	view      *attachableView
	transport *transport.Transport
	decider   *narration.Decider
	arbiter   *arbiter.Arbiter
	policy    *progress.Policy

	closeOnce sync.Once
}

// New opens the book at cfg.BookPath: parses its alignment model, extracts
// its audio resources, and assembles the engine around a fresh run loop.
func New(cfg Config) (*Session, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("book_id", cfg.BookID)

	model, err := overlay.Load(cfg.BookPath, log)
	if err != nil {
		return nil, err
	}

	sessionID, err := id.Generate("ses")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate session id")
	}

	pl := cfg.Player
	if pl == nil {
		audioRoot := filepath.Join(cfg.AudioRoot, cfg.BookID)
		if err := extractAudio(cfg.BookPath, model, audioRoot, log); err != nil {
			return nil, err
		}
		pl = player.NewSim(audioRoot, log)
	}

	s := &Session{
		id:       sessionID,
		bookID:   cfg.BookID,
		bookPath: cfg.BookPath,
		model:    model,
		logger:   log.With("component", "session", "session_id", sessionID),
		loop:     runloop.New(log),
		view:     &attachableView{},
	}

	s.policy = progress.New(progress.Config{
		BookID:         cfg.BookID,
		Store:          cfg.Store,
		Scheduler:      s.loop,
		Logger:         log,
		Snapshot:       s.snapshot,
		Navigate:       s.adoptRemote,
		Source:         cfg.Sync.Source,
		DebounceWindow: cfg.Engine.DebounceWindow,
		SyncInterval:   cfg.Sync.Interval,
	})

	s.transport = transport.New(transport.Config{
		Model:        model,
		Player:       pl,
		Scheduler:    s.loop,
		Gate:         crossingGate{s},
		Emit:         s.handleTransportEvent,
		Logger:       log,
		TickInterval: cfg.Engine.TickInterval,
		ResumeWindow: cfg.Engine.ResumeWindow,
	})

	s.decider = narration.New(narration.Config{
		Model:     model,
		Transport: s.transport,
		Renderer:  s.view,
		Scheduler: s.loop,
		Logger:    log,
		// Predicted flips go through the arbiter so their renderer echo is
		// consumed as a duplicate.
		TurnPage:    func(forward bool) error { return s.arbiter.RequestPageTurn(forward) },
		EarlyOffset: cfg.Engine.FlipEarlyOffset,
	})
	if !cfg.Sync.LockAudioToNavigation {
		s.decider.SetSyncEnabled(false)
	}

	s.arbiter = arbiter.New(arbiter.Config{
		Model:          model,
		Renderer:       s.view,
		Narrator:       s.decider,
		Persister:      s.policy,
		Scheduler:      s.loop,
		Logger:         log,
		FallbackWindow: cfg.Engine.FallbackWindow,
	})

	s.logger.Info("session opened", "title", model.Title, "sections", len(model.Sections))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// BookID returns the open book's identifier.
func (s *Session) BookID() string { return s.bookID }

// Model returns the book's immutable alignment model.
func (s *Session) Model() *overlay.Model { return s.model }

// Chapter is one table-of-contents row of the open book.
type Chapter struct {
	Index    int     `json:"index"`
	Path     string  `json:"path"`
	Label    string  `json:"label,omitempty"`
	Level    int     `json:"level"`
	HasAudio bool    `json:"has_audio"`
	Duration float64 `json:"duration_seconds"`
}

// Chapters lists the book's sections in spine order.
func (s *Session) Chapters() []Chapter {
	out := make([]Chapter, 0, len(s.model.Sections))
	for i := range s.model.Sections {
		sec := &s.model.Sections[i]
		out = append(out, Chapter{
			Index:    sec.Index,
			Path:     sec.Path,
			Label:    sec.Label,
			Level:    sec.Level,
			HasAudio: sec.HasAudio(),
			Duration: sec.Duration(),
		})
	}
	return out
}

// Status is a point-in-time snapshot of the whole engine.
type Status struct {
	ID          string              `json:"id"`
	BookID      string              `json:"book_id"`
	Title       string              `json:"title"`
	State       string              `json:"state"`
	Rate        float64             `json:"rate"`
	SyncEnabled bool                `json:"sync_enabled"`
	Position    transport.Position  `json:"position"`
	View        arbiter.View        `json:"view"`
	Progress    narration.Progress  `json:"progress"`
	SleepMode   narration.SleepMode `json:"sleep_mode"`
	// SleepRemaining is seconds left on a duration sleep timer.
	SleepRemaining   float64 `json:"sleep_remaining_seconds,omitempty"`
	RendererAttached bool    `json:"renderer_attached"`
}

// Status collects the current engine state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.loop.Do(ctx, func() {
		mode, remaining := s.decider.Sleep()
		st = Status{
			ID:               s.id,
			BookID:           s.bookID,
			Title:            s.model.Title,
			State:            s.transport.State().String(),
			Rate:             s.transport.Rate(),
			SyncEnabled:      s.decider.SyncEnabled(),
			Position:         s.transport.Position(),
			View:             s.arbiter.View(),
			Progress:         s.decider.Progress(),
			SleepMode:        mode,
			SleepRemaining:   remaining.Seconds(),
			RendererAttached: s.view.attached(),
		}
	})
	return st, err
}

// Play starts or resumes playback. Pressing play is user activity, so the
// policy timestamp is stamped; without it a resume reconciliation could adopt
// a remote position recorded after the last local sync.
func (s *Session) Play(ctx context.Context) error {
	return s.do(ctx, func() error {
		if err := s.transport.Play(); err != nil {
			return err
		}
		s.policy.Touch()
		return nil
	})
}

// Pause halts playback and syncs progress immediately.
func (s *Session) Pause(ctx context.Context) error {
	return s.do(ctx, s.transport.Pause)
}

// SetRate sets the playback rate multiplier.
func (s *Session) SetRate(ctx context.Context, rate float64) error {
	return s.do(ctx, func() error { return s.transport.SetRate(rate) })
}

// SetVolume sets the player volume, 0..1.
func (s *Session) SetVolume(ctx context.Context, volume float64) error {
	return s.do(ctx, func() error { return s.transport.SetVolume(volume) })
}

// TurnPage issues a user page turn through the arbiter.
func (s *Session) TurnPage(ctx context.Context, forward bool) error {
	return s.do(ctx, func() error { return s.arbiter.RequestPageTurn(forward) })
}

// JumpToChapter navigates to a section. With a renderer attached the view is
// commanded there and the relocation settles the rest; headless, audio moves
// directly and persistence is scheduled here.
func (s *Session) JumpToChapter(ctx context.Context, section int) error {
	return s.do(ctx, func() error {
		if s.model.Section(section) == nil {
			return errors.NotFoundf("no section %d", section)
		}
		if s.view.attached() {
			return s.arbiter.RequestChapterJump(section)
		}
		moved, err := s.decider.HandleChapterNavigation(section)
		if err != nil {
			return err
		}
		s.policy.ScheduleDebounced(progress.ReasonChapterSelect, moved)
		return nil
	})
}

// SeekToAnchor moves audio to an aligned anchor and navigates the view to it.
func (s *Session) SeekToAnchor(ctx context.Context, section int, anchor string) error {
	return s.do(ctx, func() error {
		if err := s.decider.HandleSeek(section, anchor); err != nil {
			return err
		}
		if s.view.attached() {
			return s.arbiter.RequestSeek(section, anchor)
		}
		s.policy.ScheduleDebounced(progress.ReasonSeek, true)
		return nil
	})
}

// SetSyncEnabled toggles audio-follows-navigation.
func (s *Session) SetSyncEnabled(ctx context.Context, on bool) error {
	return s.do(ctx, func() error {
		s.decider.SetSyncEnabled(on)
		return nil
	})
}

// StartSleep arms a duration sleep timer.
func (s *Session) StartSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return errors.Validationf("sleep duration must be positive, got %s", d)
	}
	return s.do(ctx, func() error {
		s.decider.StartSleep(d)
		return nil
	})
}

// StartEndOfChapterSleep arms the end-of-chapter sleep timer.
func (s *Session) StartEndOfChapterSleep(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.decider.StartEndOfChapterSleep()
		return nil
	})
}

// CancelSleep clears any armed sleep timer.
func (s *Session) CancelSleep(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.decider.CancelSleep()
		return nil
	})
}

// Reconcile resolves local activity against the newest remote position,
// adopting and navigating to the remote one when it is strictly newer.
func (s *Session) Reconcile(ctx context.Context) (progress.Locator, bool, error) {
	var (
		loc     progress.Locator
		adopted bool
		inner   error
	)
	err := s.loop.Do(ctx, func() {
		loc, adopted, inner = s.policy.Reconcile(ctx)
	})
	if err != nil {
		return progress.Locator{}, false, err
	}
	return loc, adopted, inner
}

// AttachRenderer connects a renderer controller. At most one is active; a
// newcomer replaces the previous connection.
func (s *Session) AttachRenderer(ctx context.Context, c renderer.Controller) error {
	return s.loop.Do(ctx, func() {
		s.view.set(c)
		s.logger.Info("renderer attached")
	})
}

// DetachRenderer disconnects a renderer; the engine keeps running headless.
// Passing the controller being detached protects a successor connection from
// being cleared by its replaced predecessor; nil detaches unconditionally.
func (s *Session) DetachRenderer(ctx context.Context, c renderer.Controller) error {
	return s.loop.Do(ctx, func() {
		if s.view.clear(c) {
			s.logger.Info("renderer detached")
		}
	})
}

// RendererSink returns the event sink a renderer bridge should deliver into.
// It marshals events onto the session loop.
func (s *Session) RendererSink() func(renderer.Event) {
	return func(ev renderer.Event) {
		s.loop.Submit(func() { s.dispatchRendererEvent(ev) })
	}
}

// Close performs the final book-closed sync and tears the engine down.
// Safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.loop.Do(context.Background(), func() {
			s.decider.Close()
			s.arbiter.Close()
			s.transport.Close()
			s.policy.Touch()
			if err := s.policy.SyncNow(progress.ReasonBookClosed, true); err != nil {
				s.logger.Warn("final sync failed", "error", err)
			}
			s.policy.Close()
		})
		s.loop.Close()
		s.logger.Info("session closed")
	})
}

// do runs fn on the loop and surfaces its error.
func (s *Session) do(ctx context.Context, fn func() error) error {
	var inner error
	if err := s.loop.Do(ctx, func() { inner = fn() }); err != nil {
		return err
	}
	return inner
}

func (s *Session) dispatchRendererEvent(ev renderer.Event) {
	switch e := ev.(type) {
	case renderer.Relocated:
		s.arbiter.HandleRelocated(e)
	case renderer.PageFlipped:
		s.arbiter.HandlePageFlipped(e)
	case renderer.ElementVisibility:
		s.decider.HandleVisibility(e)
	default:
		s.logger.Debug("unhandled renderer event")
	}
}

// handleTransportEvent fans transport events out to the policy and the view.
// Runs on the loop; the transport emits synchronously.
func (s *Session) handleTransportEvent(ev transport.Event) {
	switch e := ev.(type) {
	case transport.StateChanged:
		switch {
		case e.To == transport.StatePlaying:
			s.policy.StartPeriodic()
		case e.To == transport.StateIdle:
			// Load failure parked the transport. Not user activity.
			s.policy.StopPeriodic()
		case e.Continuation:
			// Mid-playback entry change; the transport resumes on its own.
		case e.From == transport.StatePlaying:
			s.policy.StopPeriodic()
			s.policy.HandlePlaybackStopped(progress.ReasonPause)
		}
	case transport.EntryChanged:
		s.highlightEntry(e.Section, e.Entry)
	case transport.Finished:
		s.logger.Info("book playback finished")
	case transport.LoadFailed:
		s.logger.Warn("audio load failed", "path", e.Path, "error", e.Err)
	}
}

// highlightEntry moves the renderer highlight to the entry now narrating.
func (s *Session) highlightEntry(section, entry int) {
	if !s.decider.SyncEnabled() || !s.view.attached() {
		return
	}
	sec := s.model.Section(section)
	if sec == nil || entry < 0 || entry >= len(sec.Entries) {
		return
	}
	if err := s.view.Highlight(sec.Entries[entry].TextID); err != nil {
		s.logger.Debug("highlight failed", "error", err)
	}
}

// snapshot builds the live position the progress policy persists from.
// Audio-derived fields are included only when the transport is positioned on
// an aligned entry.
func (s *Session) snapshot() progress.Position {
	view := s.arbiter.View()
	pos := progress.Position{
		Href:            view.Href,
		ChapterFraction: view.ChapterFraction,
		BookFraction:    view.BookFraction,
	}

	state := s.transport.State()
	if state == transport.StateIdle || state == transport.StateLoading {
		return pos
	}
	tp := s.transport.Position()
	sec := s.model.Section(tp.Section)
	if sec == nil || !sec.HasAudio() || tp.Entry >= len(sec.Entries) {
		return pos
	}

	pos.SectionPath = sec.Path
	pos.Anchor = sec.Entries[tp.Entry].TextID
	pos.Title = sec.Label
	if pr := s.decider.Progress(); pr.BookTotal > 0 {
		pos.ChapterFraction = pr.ChapterFraction()
		pos.BookFraction = pr.BookFraction()
	}
	return pos
}

// adoptRemote navigates to a locator a resume reconciliation adopted.
func (s *Session) adoptRemote(loc progress.Locator) {
	href := loc.Href
	if len(loc.Fragments) > 0 {
		href += "#" + loc.Fragments[0]
	}

	if section, entry, ok := s.model.ResolveFragment(href); ok {
		if s.view.attached() {
			if err := s.view.NavigateToHref(href); err != nil {
				s.logger.Warn("resume navigation failed", "error", err)
			}
		}
		if sec := s.model.Section(section); sec != nil && sec.HasAudio() {
			if err := s.transport.SetEntry(section, entry); err != nil {
				s.logger.Warn("resume audio positioning failed", "error", err)
			}
		}
		return
	}

	if !s.view.attached() {
		return
	}
	switch {
	case loc.BookFraction != nil:
		if err := s.view.NavigateToBookFraction(*loc.BookFraction); err != nil {
			s.logger.Warn("resume navigation failed", "error", err)
		}
	case loc.ChapterFraction != nil:
		if sec, ok := s.model.SectionByPath(loc.Href); ok {
			if err := s.view.NavigateToFraction(sec.Index, *loc.ChapterFraction); err != nil {
				s.logger.Warn("resume navigation failed", "error", err)
			}
			return
		}
		fallthrough
	default:
		if err := s.view.NavigateToHref(loc.Href); err != nil {
			s.logger.Warn("resume navigation failed", "error", err)
		}
	}
}

// crossingGate routes the transport's section-crossing question to the sleep
// timer logic. Indirection only; the decider is built after the transport.
type crossingGate struct {
	s *Session
}

func (g crossingGate) CanCrossSection(from, to int) bool {
	return g.s.decider.CanCrossSection(from, to)
}

// attachableView is the renderer slot the engine components hold. Renderer
// connections come and go; the engine keeps one stable Controller whose
// commands fail softly while nothing is attached. Attach and detach happen on
// the loop, but the decider queries visible anchors from its own goroutine,
// so the slot is guarded.
type attachableView struct {
	mu sync.RWMutex
	c  renderer.Controller
}

func (v *attachableView) get() renderer.Controller {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.c
}

func (v *attachableView) set(c renderer.Controller) {
	v.mu.Lock()
	v.c = c
	v.mu.Unlock()
}

// clear detaches c if it is the current controller; a nil c detaches
// unconditionally. Reports whether the slot changed.
func (v *attachableView) clear(c renderer.Controller) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c != nil && v.c != c {
		return false
	}
	v.c = nil
	return true
}

func (v *attachableView) attached() bool {
	return v.get() != nil
}

func (v *attachableView) NavigateToHref(href string) error {
	c := v.get()
	if c == nil {
		return errors.Transport("no renderer attached")
	}
	return c.NavigateToHref(href)
}

func (v *attachableView) NavigateToFraction(section int, fraction float64) error {
	c := v.get()
	if c == nil {
		return errors.Transport("no renderer attached")
	}
	return c.NavigateToFraction(section, fraction)
}

func (v *attachableView) NavigateToBookFraction(fraction float64) error {
	c := v.get()
	if c == nil {
		return errors.Transport("no renderer attached")
	}
	return c.NavigateToBookFraction(fraction)
}

func (v *attachableView) TurnPage(forward bool) error {
	c := v.get()
	if c == nil {
		return errors.Transport("no renderer attached")
	}
	return c.TurnPage(forward)
}

func (v *attachableView) Highlight(anchor string) error {
	c := v.get()
	if c == nil {
		return errors.Transport("no renderer attached")
	}
	return c.Highlight(anchor)
}

func (v *attachableView) ClearHighlight() error {
	c := v.get()
	if c == nil {
		return nil
	}
	return c.ClearHighlight()
}

func (v *attachableView) VisibleAnchors(ctx context.Context) ([]string, error) {
	c := v.get()
	if c == nil {
		return nil, errors.Transport("no renderer attached")
	}
	return c.VisibleAnchors(ctx)
}
