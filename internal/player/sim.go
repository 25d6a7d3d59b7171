// Package player provides a simulated audio player so the engine runs end to
// end without a platform decoder. Playback time advances by wall clock,
// scaled by the playback rate; file durations are probed from the real audio
// metadata.
package player

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/simonhull/audiometa"

	"github.com/listenupapp/listenup-reader/internal/errors"
)

// Sim is a wall-clock playback simulator implementing transport.Player.
// Unlike the engine components it is internally locked, because its finish
// timer fires off the session loop.
type Sim struct {
	root   string
	logger *slog.Logger
	probe  func(ctx context.Context, path string) (time.Duration, error)

	mu        sync.Mutex
	path      string
	duration  time.Duration
	rate      float64
	volume    float64
	playing   bool
	offset    time.Duration
	resumedAt time.Time

	finished    func()
	finishTimer *time.Timer
}

// NewSim creates a simulator resolving audio paths against root.
func NewSim(root string, logger *slog.Logger) *Sim {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sim{
		root:   root,
		logger: logger.With("component", "player"),
		probe:  probeDuration,
		rate:   1.0,
		volume: 1.0,
	}
}

func probeDuration(ctx context.Context, path string) (time.Duration, error) {
	file, err := audiometa.OpenContext(ctx, path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return file.Audio.Duration, nil
}

// Load stops playback and probes the file's duration.
func (s *Sim) Load(ctx context.Context, path string) error {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	dur, err := s.probe(ctx, full)
	if err != nil {
		return errors.Wrapf(err, errors.CodeTransport, "probe %s", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopFinishTimerLocked()
	s.path = path
	s.duration = dur
	s.offset = 0
	s.playing = false
	s.logger.Debug("audio loaded", "path", path, "duration", dur)
	return nil
}

func (s *Sim) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return errors.Transport("no file loaded")
	}
	if s.playing {
		return nil
	}
	s.playing = true
	s.resumedAt = time.Now()
	s.scheduleFinishLocked()
	return nil
}

func (s *Sim) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return nil
	}
	s.offset = s.positionLocked()
	s.playing = false
	s.stopFinishTimerLocked()
	return nil
}

func (s *Sim) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := time.Duration(seconds * float64(time.Second))
	if pos < 0 {
		pos = 0
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	s.offset = pos
	s.resumedAt = time.Now()
	if s.playing {
		s.scheduleFinishLocked()
	}
	return nil
}

func (s *Sim) SetRate(rate float64) error {
	if rate <= 0 {
		return errors.Validationf("rate must be positive, got %g", rate)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-anchor so already elapsed time keeps the old rate.
	s.offset = s.positionLocked()
	s.resumedAt = time.Now()
	s.rate = rate
	if s.playing {
		s.scheduleFinishLocked()
	}
	return nil
}

func (s *Sim) SetVolume(volume float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = volume
	return nil
}

func (s *Sim) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked().Seconds()
}

func (s *Sim) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration.Seconds()
}

func (s *Sim) OnFinished(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = fn
}

func (s *Sim) positionLocked() time.Duration {
	pos := s.offset
	if s.playing {
		pos += time.Duration(float64(time.Since(s.resumedAt)) * s.rate)
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	return pos
}

func (s *Sim) scheduleFinishLocked() {
	s.stopFinishTimerLocked()
	if s.duration <= 0 {
		return
	}
	remaining := time.Duration(float64(s.duration-s.positionLocked()) / s.rate)
	if remaining < 0 {
		remaining = 0
	}
	s.finishTimer = time.AfterFunc(remaining, s.fireFinished)
}

func (s *Sim) stopFinishTimerLocked() {
	if s.finishTimer != nil {
		s.finishTimer.Stop()
		s.finishTimer = nil
	}
}

func (s *Sim) fireFinished() {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	s.offset = s.duration
	s.playing = false
	fn := s.finished
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
