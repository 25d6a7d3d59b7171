// Package progress converts playback position into persistable locators and
// paces their delivery to the remote progress store: debounced for
// navigation, periodic while playing, immediate on playback stop.
// Policy methods must be called on the owning session's run loop.
package progress

import "context"

// Reason is the cause attached to a persistence event. Diagnostic only; it
// never affects merge semantics.
type Reason string

const (
	ReasonPageFlip      Reason = "user_page_flip"
	ReasonSeek          Reason = "user_seek"
	ReasonChapterSelect Reason = "user_chapter_select"
	ReasonPause         Reason = "user_pause"
	ReasonPeriodic      Reason = "periodic"
	ReasonBookClosed    Reason = "book_closed"
)

// Locator is the persisted position representation. Built fresh on every
// sync, never mutated in place.
type Locator struct {
	Href            string   `json:"href"`
	Fragments       []string `json:"fragments,omitempty"`
	ChapterFraction *float64 `json:"chapter_fraction,omitempty"`
	BookFraction    *float64 `json:"book_fraction,omitempty"`
	Title           string   `json:"title,omitempty"`
}

// RemoteStore is the offline-capable progress sync actor. Implementations
// must keep at-most-one in-flight sync per book and must never reorder
// deliveries against their carried timestamps.
type RemoteStore interface {
	SyncProgress(ctx context.Context, bookID string, loc Locator, timestampMs int64, reason Reason, source, description string) error
	// LatestProgress returns the newest known position for the book, with
	// ok=false when none is recorded.
	LatestProgress(ctx context.Context, bookID string) (loc Locator, timestampMs int64, ok bool, err error)
}

// Position is the live snapshot locator resolution draws from. Zero-value
// fields mean the corresponding input is unavailable.
type Position struct {
	// SectionPath is the current section's content document path.
	SectionPath string
	// Anchor is the active aligned anchor id, empty without alignment.
	Anchor string
	// Href is the renderer's last reported location.
	Href            string
	ChapterFraction float64
	BookFraction    float64
	Title           string
}
