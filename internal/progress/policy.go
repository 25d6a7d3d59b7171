package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/runloop"
)

const (
	// DefaultDebounceWindow coalesces rapid navigation-driven syncs.
	DefaultDebounceWindow = time.Second
	// DefaultSuppressWindow swallows startup navigation events racing a
	// resume reconciliation.
	DefaultSuppressWindow = 2 * time.Second
	// DefaultSyncInterval is the periodic sync period while playing.
	DefaultSyncInterval = 30 * time.Second

	syncTimeout = 5 * time.Second
)

// Config carries the policy's collaborators and tunables.
type Config struct {
	BookID    string
	Store     RemoteStore
	Scheduler runloop.Scheduler
	Logger    *slog.Logger

	// Snapshot returns the live position; called at sync time, not at
	// schedule time, so a debounced sync reports where the user ended up.
	Snapshot func() Position
	// Navigate is invoked when resume reconciliation adopts a newer remote
	// position.
	Navigate func(Locator)

	// Source labels this device/session in sync records.
	Source string

	DebounceWindow time.Duration
	SuppressWindow time.Duration
	SyncInterval   time.Duration
}

// Policy owns the progress persistence decisions for one open book.
type Policy struct {
	bookID   string
	store    RemoteStore
	sched    runloop.Scheduler
	logger   *slog.Logger
	snapshot func() Position
	navigate func(Locator)
	source   string

	debounceWindow time.Duration
	suppressWindow time.Duration
	syncInterval   time.Duration

	// lastActivityMs is the authoritative progress timestamp: stamped by
	// user-caused events, millisecond-floored, never decreasing. It, not
	// wall clock at send time, travels with every sync.
	lastActivityMs int64

	lastSyncedMs       int64
	lastSyncedFraction float64

	pendingReason   Reason
	pendingFragment bool

	debounce  runloop.Canceler
	periodic  runloop.Canceler
	resumedAt time.Time
}

// New creates a policy for one book.
func New(cfg Config) *Policy {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = DefaultSuppressWindow
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	return &Policy{
		bookID:         cfg.BookID,
		store:          cfg.Store,
		sched:          cfg.Scheduler,
		logger:         cfg.Logger.With("component", "progress", "book_id", cfg.BookID),
		snapshot:       cfg.Snapshot,
		navigate:       cfg.Navigate,
		source:         cfg.Source,
		debounceWindow: cfg.DebounceWindow,
		suppressWindow: cfg.SuppressWindow,
		syncInterval:   cfg.SyncInterval,
	}
}

// Touch stamps the activity timestamp with the scheduler's current time.
// The stamp is millisecond-floored and never moves backwards.
func (p *Policy) Touch() {
	now := p.sched.Now().UnixMilli()
	if now > p.lastActivityMs {
		p.lastActivityMs = now
	}
}

// LastActivityMs returns the current activity timestamp.
func (p *Policy) LastActivityMs() int64 {
	return p.lastActivityMs
}

// Suppressed reports whether the post-resume suppression window is active.
func (p *Policy) Suppressed() bool {
	return !p.resumedAt.IsZero() && p.sched.Now().Sub(p.resumedAt) < p.suppressWindow
}

// ScheduleDebounced records a user-caused event and (re)starts the debounce
// window; a rapid sequence of events produces one sync carrying the last
// event's reason. Suppressed during the post-resume window.
func (p *Policy) ScheduleDebounced(reason Reason, withFragment bool) {
	p.Touch()
	if p.Suppressed() {
		p.logger.Debug("sync suppressed after resume", "reason", string(reason))
		return
	}
	p.pendingReason = reason
	p.pendingFragment = withFragment

	if p.debounce != nil {
		p.debounce.Cancel()
	}
	p.debounce = p.sched.Schedule(p.debounceWindow, func() {
		p.debounce = nil
		if err := p.sync(p.pendingReason, p.pendingFragment); err != nil {
			p.logger.Warn("debounced sync failed", "error", err)
		}
	})
}

// SyncNow performs an immediate sync, cancelling any pending debounce.
func (p *Policy) SyncNow(reason Reason, withFragment bool) error {
	if p.debounce != nil {
		p.debounce.Cancel()
		p.debounce = nil
	}
	return p.sync(reason, withFragment)
}

// HandlePlaybackStopped reacts to playback stopping for any cause. The
// window before a possible process suspension is small, so this sync is
// immediate, never debounced.
func (p *Policy) HandlePlaybackStopped(reason Reason) {
	p.Touch()
	if err := p.SyncNow(reason, true); err != nil {
		p.logger.Warn("stop sync failed", "error", err)
	}
}

// StartPeriodic begins the recurring while-playing sync.
func (p *Policy) StartPeriodic() {
	if p.periodic != nil {
		return
	}
	p.periodic = p.sched.Every(p.syncInterval, func() {
		if err := p.sync(ReasonPeriodic, true); err != nil {
			p.logger.Warn("periodic sync failed", "error", err)
		}
	})
}

// StopPeriodic stops the recurring sync.
func (p *Policy) StopPeriodic() {
	if p.periodic != nil {
		p.periodic.Cancel()
		p.periodic = nil
	}
}

// Reconcile resolves the resume-from-background race: when the remote
// timestamp is strictly newer than local activity, the remote position wins
// and the renderer is commanded there. Starts the suppression window either
// way.
func (p *Policy) Reconcile(ctx context.Context) (Locator, bool, error) {
	p.resumedAt = p.sched.Now()

	loc, ts, ok, err := p.store.LatestProgress(ctx, p.bookID)
	if err != nil {
		return Locator{}, false, errors.Wrap(err, errors.CodeSyncFailed, "fetch latest progress")
	}
	if !ok || ts <= p.lastActivityMs {
		return Locator{}, false, nil
	}

	p.lastActivityMs = ts
	p.lastSyncedMs = ts
	p.logger.Info("adopting newer remote position", "remote_ts", ts)
	if p.navigate != nil {
		p.navigate(loc)
	}
	return loc, true, nil
}

// Close cancels outstanding timers. It does not perform a final sync; the
// owning session does that explicitly with reason book_closed.
func (p *Policy) Close() {
	if p.debounce != nil {
		p.debounce.Cancel()
		p.debounce = nil
	}
	p.StopPeriodic()
}

func (p *Policy) sync(reason Reason, withFragment bool) error {
	pos := p.snapshot()
	loc, ok := Resolve(pos, withFragment)
	if !ok {
		p.logger.Debug("no locator input, skipping sync", "reason", string(reason))
		return nil
	}
	if p.lastActivityMs == 0 {
		p.Touch()
	}
	ts := p.lastActivityMs

	// Nothing new since the last delivery.
	if ts == p.lastSyncedMs && pos.BookFraction == p.lastSyncedFraction {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	if err := p.store.SyncProgress(ctx, p.bookID, loc, ts, reason, p.source, pos.Title); err != nil {
		// lastSyncedMs stays put so the next trigger retries naturally.
		return errors.Wrap(err, errors.CodeSyncFailed, "sync progress")
	}
	p.lastSyncedMs = ts
	p.lastSyncedFraction = pos.BookFraction
	p.logger.Debug("progress synced", "reason", string(reason), "ts", ts)
	return nil
}
