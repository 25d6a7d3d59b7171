package arbiter

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-reader/internal/overlay"
	"github.com/listenupapp/listenup-reader/internal/overlay/overlaytest"
	"github.com/listenupapp/listenup-reader/internal/progress"
	"github.com/listenupapp/listenup-reader/internal/renderer"
	"github.com/listenupapp/listenup-reader/internal/runloop"
)

type fakeRenderer struct {
	turns    []bool
	navHrefs []string
}

func (r *fakeRenderer) NavigateToHref(href string) error {
	r.navHrefs = append(r.navHrefs, href)
	return nil
}
func (r *fakeRenderer) NavigateToFraction(int, float64) error { return nil }
func (r *fakeRenderer) NavigateToBookFraction(float64) error  { return nil }
func (r *fakeRenderer) TurnPage(forward bool) error {
	r.turns = append(r.turns, forward)
	return nil
}
func (r *fakeRenderer) Highlight(string) error { return nil }
func (r *fakeRenderer) ClearHighlight() error  { return nil }
func (r *fakeRenderer) VisibleAnchors(context.Context) ([]string, error) {
	return nil, nil
}

type navCall struct {
	section, page, totalPages int
}

type fakeNarrator struct {
	chapterCalls []int
	navCalls     []navCall
	matched      bool
	moved        bool
}

func (n *fakeNarrator) HandleChapterNavigation(section int) (bool, error) {
	n.chapterCalls = append(n.chapterCalls, section)
	return n.moved, nil
}

func (n *fakeNarrator) HandleNavEvent(section, page, totalPages int, done func(matched bool)) {
	n.navCalls = append(n.navCalls, navCall{section, page, totalPages})
	if done != nil {
		done(n.matched)
	}
}

type persistCall struct {
	reason   progress.Reason
	fragment bool
}

type fakePersister struct {
	calls []persistCall
}

func (p *fakePersister) ScheduleDebounced(reason progress.Reason, withFragment bool) {
	p.calls = append(p.calls, persistCall{reason, withFragment})
}

type harness struct {
	renderer *fakeRenderer
	narr     *fakeNarrator
	persist  *fakePersister
	sched    *runloop.Manual
	a        *Arbiter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	chapters := make([]overlaytest.Chapter, 5)
	for i, id := range []string{"ch0", "ch1", "ch2", "ch3", "ch4"} {
		chapters[i] = overlaytest.Chapter{ID: id, Clips: []float64{2}}
	}
	data := overlaytest.Archive("Arbiter", chapters)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	model, err := overlay.LoadArchive(zr, nil)
	require.NoError(t, err)

	h := &harness{
		renderer: &fakeRenderer{},
		narr:     &fakeNarrator{matched: true, moved: true},
		persist:  &fakePersister{},
		sched:    runloop.NewManual(),
	}
	h.a = New(Config{
		Model:     model,
		Renderer:  h.renderer,
		Narrator:  h.narr,
		Persister: h.persist,
		Scheduler: h.sched,
	})
	return h
}

// seed settles the view at a known position without leaving traces in the
// recorded calls.
func (h *harness) seed(section, page, totalPages int) {
	h.a.HandleRelocated(renderer.Relocated{
		Section: section, Page: page, TotalPages: totalPages,
	})
	h.narr.navCalls = nil
	h.persist.calls = nil
}

func TestArbiter_PageNav_ResolvesOnExactMatch(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 3, 10)

	require.NoError(t, h.a.RequestPageTurn(true))
	assert.Equal(t, []bool{true}, h.renderer.turns)

	// The renderer echoes the command, then confirms the relocation.
	h.a.HandlePageFlipped(renderer.PageFlipped{Forward: true})
	h.a.HandleRelocated(renderer.Relocated{Section: 0, Page: 4, TotalPages: 10})

	require.Len(t, h.persist.calls, 1)
	assert.Equal(t, progress.ReasonPageFlip, h.persist.calls[0].reason)
	assert.True(t, h.persist.calls[0].fragment)
	assert.Equal(t, []navCall{{0, 4, 10}}, h.narr.navCalls)

	// A duplicate confirm finds no pending intent and persists nothing.
	h.a.HandleRelocated(renderer.Relocated{Section: 0, Page: 4, TotalPages: 10})
	assert.Len(t, h.persist.calls, 1)
}

func TestArbiter_PageNav_CompoundsRapidFlips(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 3, 10)

	require.NoError(t, h.a.RequestPageTurn(true))
	require.NoError(t, h.a.RequestPageTurn(true))

	// Page 4 alone does not resolve the compounded expectation of page 5.
	h.a.HandleRelocated(renderer.Relocated{Section: 0, Page: 4, TotalPages: 10})
	assert.Empty(t, h.persist.calls)

	h.a.HandleRelocated(renderer.Relocated{Section: 0, Page: 5, TotalPages: 10})
	assert.Len(t, h.persist.calls, 1)
}

func TestArbiter_PageNav_CrossingChapterBoundary(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 5, 5)

	require.NoError(t, h.a.RequestPageTurn(true))
	// One command only; the transition rides on it.
	assert.Equal(t, []bool{true}, h.renderer.turns)
	assert.Empty(t, h.renderer.navHrefs)

	h.a.HandlePageFlipped(renderer.PageFlipped{Forward: true})

	// A relocation still in the old section is mid-transition noise.
	h.a.HandleRelocated(renderer.Relocated{Section: 0, Page: 5, TotalPages: 5})
	assert.Empty(t, h.persist.calls)

	h.a.HandleRelocated(renderer.Relocated{Section: 1, Page: 1, TotalPages: 8})
	assert.Equal(t, []int{1}, h.narr.chapterCalls)
	require.Len(t, h.persist.calls, 1)
	assert.Equal(t, progress.ReasonPageFlip, h.persist.calls[0].reason)
}

func TestArbiter_PageNav_InvalidatedBySectionChange(t *testing.T) {
	h := newHarness(t)
	h.seed(3, 4, 10)

	require.NoError(t, h.a.RequestPageTurn(true))
	h.a.HandlePageFlipped(renderer.PageFlipped{Forward: true})

	// The user jumped elsewhere before the flip settled: the intent dies
	// and the event is treated as a natural follow.
	h.a.HandleRelocated(renderer.Relocated{Section: 4, Page: 1, TotalPages: 6})

	assert.Empty(t, h.persist.calls)
	assert.Equal(t, []navCall{{4, 1, 6}}, h.narr.navCalls)
	assert.Equal(t, 4, h.a.View().Section)
}

func TestArbiter_EchoDedup_SwipeStillQueues(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 3, 10)

	require.NoError(t, h.a.RequestPageTurn(true))
	// Echo of the engine command: consumed, no compounding.
	h.a.HandlePageFlipped(renderer.PageFlipped{Forward: true})
	// A genuine swipe: compounds on the pending expectation.
	h.a.HandlePageFlipped(renderer.PageFlipped{Forward: true})

	h.a.HandleRelocated(renderer.Relocated{Section: 0, Page: 5, TotalPages: 10})
	assert.Len(t, h.persist.calls, 1)
}

func TestArbiter_SwipeWithoutCommand_QueuesIntent(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 3, 10)

	h.a.HandlePageFlipped(renderer.PageFlipped{Forward: false})
	h.a.HandleRelocated(renderer.Relocated{Section: 0, Page: 2, TotalPages: 10})

	require.Len(t, h.persist.calls, 1)
	assert.Equal(t, progress.ReasonPageFlip, h.persist.calls[0].reason)
}

func TestArbiter_SeekNav_ResolvesOnSection(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 1, 5)

	require.NoError(t, h.a.RequestSeek(2, "p0"))
	assert.Equal(t, []string{"OEBPS/chapters/ch2.xhtml#p0"}, h.renderer.navHrefs)

	h.a.HandleRelocated(renderer.Relocated{Section: 2, Page: 4, TotalPages: 9})
	require.Len(t, h.persist.calls, 1)
	assert.Equal(t, progress.ReasonSeek, h.persist.calls[0].reason)
}

func TestArbiter_ChapterJump_ResolvesOnTarget(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 1, 5)

	require.NoError(t, h.a.RequestChapterJump(3))
	assert.Equal(t, []string{"OEBPS/chapters/ch3.xhtml"}, h.renderer.navHrefs)

	h.a.HandleRelocated(renderer.Relocated{Section: 3, Page: 1, TotalPages: 7})
	assert.Equal(t, []int{3}, h.narr.chapterCalls)
	require.Len(t, h.persist.calls, 1)
	assert.Equal(t, progress.ReasonChapterSelect, h.persist.calls[0].reason)
}

func TestArbiter_Fallback_ForceResolves(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 3, 10)

	require.NoError(t, h.a.RequestPageTurn(true))
	h.sched.Advance(DefaultFallbackWindow)

	require.Len(t, h.persist.calls, 1)
	assert.Equal(t, []navCall{{0, 3, 10}}, h.narr.navCalls)

	// Nothing left to resolve afterwards.
	h.a.HandleRelocated(renderer.Relocated{Section: 0, Page: 4, TotalPages: 10})
	assert.Len(t, h.persist.calls, 1)
}

func TestArbiter_Fallback_CanceledByResolution(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 3, 10)

	require.NoError(t, h.a.RequestPageTurn(true))
	h.a.HandleRelocated(renderer.Relocated{Section: 0, Page: 4, TotalPages: 10})
	require.Len(t, h.persist.calls, 1)

	h.sched.Advance(5 * DefaultFallbackWindow)
	assert.Len(t, h.persist.calls, 1)
}

func TestArbiter_Relocation_AlwaysUpdatesView(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 5, 5)

	require.NoError(t, h.a.RequestPageTurn(true))
	h.a.HandlePageFlipped(renderer.PageFlipped{Forward: true})

	// Mid-transition relocations are not classified but still tracked.
	h.a.HandleRelocated(renderer.Relocated{
		Section: 0, Page: 5, TotalPages: 5, Fraction: 0.42, ChapterFraction: 0.9,
	})
	v := h.a.View()
	assert.InDelta(t, 0.42, v.BookFraction, 1e-9)
	assert.InDelta(t, 0.9, v.ChapterFraction, 1e-9)

	h.a.HandleRelocated(renderer.Relocated{Section: 1, Page: 1, TotalPages: 8})
	assert.Equal(t, 1, h.a.View().Section)
}

func TestArbiter_BackwardFlipAtBookStart_NoIntent(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 1, 5)

	require.NoError(t, h.a.RequestPageTurn(false))
	h.a.HandlePageFlipped(renderer.PageFlipped{Forward: false})

	h.sched.Advance(5 * DefaultFallbackWindow)
	assert.Empty(t, h.persist.calls)
}

func TestArbiter_FragmentChoice_FollowsMatch(t *testing.T) {
	h := newHarness(t)
	h.seed(0, 3, 10)
	h.narr.matched = false

	require.NoError(t, h.a.RequestPageTurn(true))
	h.a.HandleRelocated(renderer.Relocated{Section: 0, Page: 4, TotalPages: 10})

	require.Len(t, h.persist.calls, 1)
	assert.False(t, h.persist.calls[0].fragment)
}
