package arbiter

import (
	"github.com/listenupapp/listenup-reader/internal/progress"
	"github.com/listenupapp/listenup-reader/internal/runloop"
)

// intentKind identifies the in-flight navigation variant.
type intentKind int

const (
	intentPageNav intentKind = iota
	intentSeekNav
	intentChapterTransition
)

func (k intentKind) String() string {
	switch k {
	case intentPageNav:
		return "page-nav"
	case intentSeekNav:
		return "seek-nav"
	case intentChapterTransition:
		return "chapter-transition"
	default:
		return "unknown"
	}
}

// intent is a recorded expectation for a navigation not yet confirmed by
// the renderer. At most one is active per book.
type intent struct {
	kind    intentKind
	section int
	// page and totalPages apply to page-nav only.
	page       int
	totalPages int
	// reason is carried through to the persistence event on resolution.
	reason progress.Reason

	fallback runloop.Canceler
	gen      int
}
