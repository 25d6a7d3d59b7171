// Package store implements the remote progress store as a local,
// offline-capable sync actor: badger-backed records keyed by book, writes
// guarded by their carried timestamps, at most one in-flight sync per book,
// and per-book delivery pacing.
package store

import (
	"context"
	"encoding/json/v2"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/progress"
	"github.com/listenupapp/listenup-reader/internal/ratelimit"
	"github.com/listenupapp/listenup-reader/internal/store/sqlite"
)

const progressPrefix = "progress:"

// Delivery pacing per book. Bursty navigation is already debounced by the
// policy; this bounds what still gets through.
const (
	syncRPS   = 2.0
	syncBurst = 5
)

// Record is the persisted progress state for one book.
type Record struct {
	BookID      string           `json:"book_id"`
	Locator     progress.Locator `json:"locator"`
	TimestampMs int64            `json:"timestamp_ms"`
	Reason      string           `json:"reason"`
	Source      string           `json:"source"`
	Description string           `json:"description,omitempty"`
	SyncedAt    time.Time        `json:"synced_at"`
}

// Store wraps a Badger database holding per-book progress records. It
// implements progress.RemoteStore.
type Store struct {
	db      *badger.DB
	logger  *slog.Logger
	limiter *ratelimit.KeyedRateLimiter
	journal *sqlite.Journal

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Open creates a store at the given database path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "open progress db")
	}

	logger.Info("progress database opened", "path", path)
	return &Store{
		db:       db,
		logger:   logger.With("component", "store"),
		limiter:  ratelimit.New(syncRPS, syncBurst),
		inFlight: make(map[string]struct{}),
	}, nil
}

// SetJournal attaches the sync journal. Journal failures never fail a sync.
func (s *Store) SetJournal(j *sqlite.Journal) {
	s.journal = j
}

// Close releases the database and the limiter.
func (s *Store) Close() error {
	s.limiter.Stop()
	return s.db.Close()
}

// SyncProgress delivers a progress record for a book. A record carrying an
// older timestamp than the stored one is dropped rather than reordered.
func (s *Store) SyncProgress(ctx context.Context, bookID string, loc progress.Locator, timestampMs int64, reason progress.Reason, source, description string) error {
	if err := s.acquire(bookID); err != nil {
		return err
	}
	defer s.release(bookID)

	if err := s.limiter.Wait(ctx, bookID); err != nil {
		return errors.Wrap(err, errors.CodeSyncFailed, "sync pacing")
	}

	rec := Record{
		BookID:      bookID,
		Locator:     loc,
		TimestampMs: timestampMs,
		Reason:      string(reason),
		Source:      source,
		Description: description,
		SyncedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "marshal progress record")
	}

	status := sqlite.StatusDelivered
	err = s.db.Update(func(txn *badger.Txn) error {
		key := []byte(progressPrefix + bookID)

		item, err := txn.Get(key)
		if err == nil {
			var existing Record
			if verr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); verr == nil && existing.TimestampMs > timestampMs {
				status = sqlite.StatusStale
				return nil
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		return txn.Set(key, data)
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeSyncFailed, "write progress record")
	}

	if status == sqlite.StatusStale {
		s.logger.Debug("stale progress record dropped",
			"book_id", bookID, "ts", timestampMs)
	}
	s.recordJournal(ctx, &rec, status)
	return nil
}

// LatestProgress returns the stored position for a book.
func (s *Store) LatestProgress(ctx context.Context, bookID string) (progress.Locator, int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return progress.Locator{}, 0, false, err
	}

	var rec Record
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(progressPrefix + bookID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return progress.Locator{}, 0, false, errors.Wrap(err, errors.CodeSyncFailed, "read progress record")
	}
	if !found {
		return progress.Locator{}, 0, false, nil
	}
	return rec.Locator, rec.TimestampMs, true, nil
}

// acquire reserves the book's sync slot.
func (s *Store) acquire(bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[bookID]; busy {
		return errors.Conflict("sync already in flight for book " + bookID)
	}
	s.inFlight[bookID] = struct{}{}
	return nil
}

func (s *Store) release(bookID string) {
	s.mu.Lock()
	delete(s.inFlight, bookID)
	s.mu.Unlock()
}

func (s *Store) recordJournal(ctx context.Context, rec *Record, status string) {
	if s.journal == nil {
		return
	}
	entry := &sqlite.Entry{
		BookID:      rec.BookID,
		Reason:      rec.Reason,
		Source:      rec.Source,
		TimestampMs: rec.TimestampMs,
		Href:        rec.Locator.Href,
		Status:      status,
		CreatedAt:   rec.SyncedAt,
	}
	if len(rec.Locator.Fragments) > 0 {
		entry.Fragment = rec.Locator.Fragments[0]
	}
	if rec.Locator.BookFraction != nil {
		entry.BookFraction = rec.Locator.BookFraction
	}
	if err := s.journal.Record(ctx, entry); err != nil {
		s.logger.Warn("journal write failed", "book_id", rec.BookID, "error", err)
	}
}
