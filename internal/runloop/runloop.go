// Package runloop provides the per-book execution context the engine runs on.
//
// All mutation of playback position, pending navigation intents, and progress
// fields happens on one loop per open book: transport ticks, renderer event
// callbacks, and sleep/debounce/fallback timers are all scheduled onto the
// same loop, so ordering is established purely by callback scheduling order
// and no field needs a lock.
package runloop

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Canceler stops a scheduled callback. Safe to call multiple times.
type Canceler interface {
	Cancel()
}

// Scheduler is the scheduling surface engine components run against.
// The live implementation is *Loop; tests use *Manual for deterministic time.
type Scheduler interface {
	// Submit queues fn to run on the loop.
	Submit(fn func())
	// Schedule runs fn on the loop once after d.
	Schedule(d time.Duration, fn func()) Canceler
	// Every runs fn on the loop repeatedly with period d until canceled.
	Every(d time.Duration, fn func()) Canceler
	// Now returns the scheduler's notion of the current time.
	Now() time.Time
}

// Loop is a single-goroutine executor.
type Loop struct {
	calls chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	logger *slog.Logger
}

// New creates and starts a loop.
func New(logger *slog.Logger) *Loop {
	l := &Loop{
		calls:  make(chan func(), 256),
		done:   make(chan struct{}),
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.calls:
			fn()
		case <-l.done:
			// Drain anything already queued so submitted work is not lost.
			for {
				select {
				case fn := <-l.calls:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Submit queues fn to run on the loop. Calls after Close are dropped.
func (l *Loop) Submit(fn func()) {
	select {
	case <-l.done:
	case l.calls <- fn:
	}
}

// Do runs fn on the loop and waits for it to finish.
// Used by request handlers that need a result computed on the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	l.Submit(func() {
		defer close(ran)
		fn()
	})

	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return context.Canceled
	}
}

// Schedule runs fn on the loop once after d.
func (l *Loop) Schedule(d time.Duration, fn func()) Canceler {
	t := time.AfterFunc(d, func() {
		l.Submit(fn)
	})
	return timerCanceler{t}
}

// Every runs fn on the loop with period d until canceled.
func (l *Loop) Every(d time.Duration, fn func()) Canceler {
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Submit(fn)
			case <-stop:
				return
			case <-l.done:
				return
			}
		}
	}()

	return cancelFunc(func() {
		once.Do(func() { close(stop) })
	})
}

// Now returns the current wall-clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Close stops the loop after draining queued work. Safe to call repeatedly.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
}

type timerCanceler struct {
	t *time.Timer
}

func (c timerCanceler) Cancel() {
	c.t.Stop()
}

type cancelFunc func()

func (f cancelFunc) Cancel() { f() }
