// Package transport drives audio playback through the alignment model.
//
// The transport owns the playback state machine and the mapping from raw
// player time to (section, entry) position. It never talks to the renderer
// or the progress store; it emits events and lets the layers above decide.
// All methods must be called on the owning session's run loop.
package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/overlay"
	"github.com/listenupapp/listenup-reader/internal/runloop"
)

const (
	// DefaultTickInterval is the playback progress polling period.
	DefaultTickInterval = 100 * time.Millisecond
	// DefaultResumeWindow bounds how long after a pause a position change
	// still restarts playback automatically.
	DefaultResumeWindow = 500 * time.Millisecond
)

// Player is the audio backend contract. Implementations report time in
// seconds from the start of the loaded file.
type Player interface {
	Load(ctx context.Context, path string) error
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetRate(rate float64) error
	SetVolume(volume float64) error
	CurrentTime() float64
	Duration() float64
	// OnFinished registers the natural end-of-file callback. The callback
	// may fire on any goroutine.
	OnFinished(fn func())
}

// Gate is consulted before the transport crosses a section boundary during
// natural playback. Explicit navigation never asks.
type Gate interface {
	CanCrossSection(from, to int) bool
}

// Position is the transport's current playback location.
type Position struct {
	Section int
	Entry   int
	// AudioTime is the offset into the entry's audio file, seconds.
	AudioTime float64
}

// Config carries the transport's collaborators and tunables.
type Config struct {
	Model     *overlay.Model
	Player    Player
	Scheduler runloop.Scheduler
	Gate      Gate    // optional
	Emit      Emitter // optional
	Logger    *slog.Logger

	TickInterval time.Duration
	ResumeWindow time.Duration
}

// Transport is the audio playback state machine for one open book.
type Transport struct {
	model  *overlay.Model
	player Player
	sched  runloop.Scheduler
	gate   Gate
	emit   Emitter
	logger *slog.Logger

	tickInterval time.Duration
	resumeWindow time.Duration

	state      State
	pos        Position
	loadedPath string
	rate       float64
	pausedAt   time.Time
	ticker     runloop.Canceler
	continuing bool
}

// New creates a transport positioned at nothing, in the idle state.
func New(cfg Config) *Transport {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ResumeWindow <= 0 {
		cfg.ResumeWindow = DefaultResumeWindow
	}

	t := &Transport{
		model:        cfg.Model,
		player:       cfg.Player,
		sched:        cfg.Scheduler,
		gate:         cfg.Gate,
		emit:         cfg.Emit,
		logger:       cfg.Logger.With("component", "transport"),
		tickInterval: cfg.TickInterval,
		resumeWindow: cfg.ResumeWindow,
		state:        StateIdle,
		rate:         1.0,
	}
	t.player.OnFinished(func() {
		t.sched.Submit(t.handleAudioEnded)
	})
	return t
}

// State returns the current machine state.
func (t *Transport) State() State {
	return t.state
}

// IsPlaying reports whether audio is actively playing.
func (t *Transport) IsPlaying() bool {
	return t.state == StatePlaying
}

// Rate returns the current playback rate multiplier.
func (t *Transport) Rate() float64 {
	return t.rate
}

// Position returns the current playback location. While playing, the audio
// time is read live from the player.
func (t *Transport) Position() Position {
	p := t.pos
	if t.state == StatePlaying {
		p.AudioTime = t.player.CurrentTime()
	}
	return p
}

// SectionElapsed returns seconds of aligned audio elapsed within the
// current section.
func (t *Transport) SectionElapsed() float64 {
	sec := t.model.Section(t.pos.Section)
	if sec == nil {
		return 0
	}
	return sec.ElapsedAt(t.pos.Entry, t.Position().AudioTime)
}

// BookElapsed returns seconds of aligned audio elapsed from the start of
// the book.
func (t *Transport) BookElapsed() float64 {
	return t.model.ElapsedBefore(t.pos.Section) + t.SectionElapsed()
}

// SetEntry moves playback to the given aligned entry: loads the entry's
// audio file if it differs from the loaded one, seeks to the clip start,
// and resumes playback when the transport was playing at the time of the
// call or had paused within the resume window. Safe to call in any state.
func (t *Transport) SetEntry(section, entry int) error {
	sec := t.model.Section(section)
	if sec == nil || !sec.HasAudio() {
		return errors.NotFoundf("section %d has no aligned audio", section)
	}
	if entry < 0 || entry >= len(sec.Entries) {
		return errors.NotFoundf("section %d has no entry %d", section, entry)
	}
	e := sec.Entries[entry]

	resume := t.state == StatePlaying || t.withinResumeWindow()
	if resume {
		// Transitions through loading/ready on the way back to playing are
		// part of this entry change, not a stop.
		t.continuing = true
		defer func() { t.continuing = false }()
	}

	if e.AudioPath != t.loadedPath {
		if err := t.load(e.AudioPath); err != nil {
			return err
		}
	}
	if err := t.player.Seek(e.Begin); err != nil {
		return errors.Wrapf(err, errors.CodeTransport, "seek to %.3fs in %s", e.Begin, e.AudioPath)
	}

	t.pos = Position{Section: section, Entry: entry, AudioTime: e.Begin}
	t.publish(EntryChanged{Section: section, Entry: entry})

	if resume {
		return t.Play()
	}
	return nil
}

// Play starts or resumes playback at the current position.
func (t *Transport) Play() error {
	switch t.state {
	case StatePlaying:
		return nil
	case StateIdle, StateLoading:
		return errors.Transport("no audio loaded")
	}
	if err := t.player.Play(); err != nil {
		return errors.Wrap(err, errors.CodeTransport, "start playback")
	}
	t.pausedAt = time.Time{}
	t.setState(StatePlaying)
	t.startTicker()
	return nil
}

// Pause halts playback and records the pause instant for the resume window.
// No-op unless playing.
func (t *Transport) Pause() error {
	if t.state != StatePlaying {
		return nil
	}
	if err := t.player.Pause(); err != nil {
		return errors.Wrap(err, errors.CodeTransport, "pause playback")
	}
	t.pos.AudioTime = t.player.CurrentTime()
	t.pausedAt = t.sched.Now()
	t.stopTicker()
	t.setState(StatePaused)
	return nil
}

// Next moves to the next aligned entry, crossing into the next section with
// audio when the current one is exhausted. Explicit navigation, so the gate
// is not consulted.
func (t *Transport) Next() error {
	sec := t.model.Section(t.pos.Section)
	if sec != nil && t.pos.Entry+1 < len(sec.Entries) {
		return t.SetEntry(t.pos.Section, t.pos.Entry+1)
	}
	next := t.model.NextAudioSection(t.pos.Section)
	if next < 0 {
		return errors.NotFound("no aligned audio after current position")
	}
	return t.SetEntry(next, 0)
}

// Previous moves to the previous aligned entry, crossing into the nearest
// earlier section with audio. At the very start of the book it re-seeks the
// first entry.
func (t *Transport) Previous() error {
	if t.pos.Entry > 0 {
		return t.SetEntry(t.pos.Section, t.pos.Entry-1)
	}
	prev := t.model.PrevAudioSection(t.pos.Section)
	if prev < 0 {
		return t.SetEntry(t.pos.Section, 0)
	}
	return t.SetEntry(prev, len(t.model.Section(prev).Entries)-1)
}

// SetRate sets the playback rate multiplier.
func (t *Transport) SetRate(rate float64) error {
	if rate <= 0 {
		return errors.Validationf("rate must be positive, got %g", rate)
	}
	if err := t.player.SetRate(rate); err != nil {
		return errors.Wrap(err, errors.CodeTransport, "set rate")
	}
	t.rate = rate
	return nil
}

// SetVolume sets the player volume, 0..1.
func (t *Transport) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return errors.Validationf("volume must be in [0,1], got %g", volume)
	}
	if err := t.player.SetVolume(volume); err != nil {
		return errors.Wrap(err, errors.CodeTransport, "set volume")
	}
	return nil
}

// Close stops the progress timer and halts the player. The transport is not
// usable afterwards.
func (t *Transport) Close() {
	t.stopTicker()
	if t.state == StatePlaying {
		if err := t.player.Pause(); err != nil {
			t.logger.Warn("pause on close failed", "error", err)
		}
	}
}

func (t *Transport) load(path string) error {
	t.setState(StateLoading)
	if err := t.player.Load(context.Background(), path); err != nil {
		t.loadedPath = ""
		t.stopTicker()
		t.setState(StateIdle)
		t.publish(LoadFailed{Path: path, Err: err})
		return errors.Wrapf(err, errors.CodeTransport, "load %s", path)
	}
	t.loadedPath = path
	t.setState(StateReady)
	return nil
}

// tick polls the player while playing, advancing past the current entry's
// clip end.
func (t *Transport) tick() {
	if t.state != StatePlaying {
		return
	}
	now := t.player.CurrentTime()
	t.pos.AudioTime = now

	e := t.currentEntry()
	if e == nil {
		return
	}
	if now >= e.End {
		t.advance()
		return
	}
	t.publish(Tick{Section: t.pos.Section, Entry: t.pos.Entry, AudioTime: now})
}

// handleAudioEnded reacts to the player reaching end of file.
func (t *Transport) handleAudioEnded() {
	if t.state != StatePlaying {
		return
	}
	t.advance()
}

// advance moves playback past the current entry. Section crossings during
// natural playback ask the gate first.
func (t *Transport) advance() {
	sec := t.model.Section(t.pos.Section)
	if sec != nil && t.pos.Entry+1 < len(sec.Entries) {
		if err := t.SetEntry(t.pos.Section, t.pos.Entry+1); err != nil {
			t.logger.Warn("entry advance failed", "error", err)
		}
		return
	}

	next := t.model.NextAudioSection(t.pos.Section)
	if next < 0 {
		t.finish()
		return
	}
	if t.gate != nil && !t.gate.CanCrossSection(t.pos.Section, next) {
		t.logger.Info("section crossing vetoed", "from", t.pos.Section, "to", next)
		if err := t.Pause(); err != nil {
			t.logger.Warn("pause after veto failed", "error", err)
		}
		return
	}
	if err := t.SetEntry(next, 0); err != nil {
		t.logger.Warn("section advance failed", "error", err)
	}
}

// finish parks the transport at the end of the final aligned entry.
func (t *Transport) finish() {
	if err := t.player.Pause(); err != nil {
		t.logger.Warn("pause at book end failed", "error", err)
	}
	t.stopTicker()
	if e := t.currentEntry(); e != nil {
		t.pos.AudioTime = e.End
	}
	t.setState(StatePaused)
	t.publish(Finished{})
}

func (t *Transport) currentEntry() *overlay.Entry {
	sec := t.model.Section(t.pos.Section)
	if sec == nil || t.pos.Entry < 0 || t.pos.Entry >= len(sec.Entries) {
		return nil
	}
	return &sec.Entries[t.pos.Entry]
}

func (t *Transport) withinResumeWindow() bool {
	return !t.pausedAt.IsZero() && t.sched.Now().Sub(t.pausedAt) <= t.resumeWindow
}

func (t *Transport) setState(next State) {
	if t.state == next {
		return
	}
	if !t.state.canTransition(next) {
		t.logger.Warn("illegal state transition",
			"from", t.state.String(),
			"to", next.String())
	}
	from := t.state
	t.state = next
	t.publish(StateChanged{From: from, To: next, Continuation: t.continuing})
}

func (t *Transport) startTicker() {
	if t.ticker != nil {
		return
	}
	t.ticker = t.sched.Every(t.tickInterval, t.tick)
}

func (t *Transport) stopTicker() {
	if t.ticker != nil {
		t.ticker.Cancel()
		t.ticker = nil
	}
}

func (t *Transport) publish(ev Event) {
	if t.emit != nil {
		t.emit(ev)
	}
}
