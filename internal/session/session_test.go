package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-reader/internal/config"
	"github.com/listenupapp/listenup-reader/internal/overlay/overlaytest"
	"github.com/listenupapp/listenup-reader/internal/progress"
	"github.com/listenupapp/listenup-reader/internal/renderer"
	"github.com/listenupapp/listenup-reader/internal/transport"
)

// fakePlayer is a minimal transport.Player; the loop runs on its own
// goroutine, so it locks.
type fakePlayer struct {
	mu       sync.Mutex
	path     string
	time     float64
	playing  bool
	rate     float64
	volume   float64
	finished func()
}

func (p *fakePlayer) Load(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = path
	p.time = 0
	p.playing = false
	return nil
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	return nil
}

func (p *fakePlayer) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.time = seconds
	return nil
}

func (p *fakePlayer) SetRate(rate float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
	return nil
}

func (p *fakePlayer) SetVolume(volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	return nil
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.time
}

func (p *fakePlayer) Duration() float64 { return 0 }

func (p *fakePlayer) OnFinished(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = fn
}

type fakeRenderer struct {
	mu         sync.Mutex
	anchors    []string
	navHrefs   []string
	turns      []bool
	highlights []string
	cleared    int
}

func (r *fakeRenderer) NavigateToHref(href string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navHrefs = append(r.navHrefs, href)
	return nil
}

func (r *fakeRenderer) NavigateToFraction(int, float64) error { return nil }

func (r *fakeRenderer) NavigateToBookFraction(float64) error { return nil }

func (r *fakeRenderer) TurnPage(forward bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, forward)
	return nil
}

func (r *fakeRenderer) Highlight(anchor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.highlights = append(r.highlights, anchor)
	return nil
}

func (r *fakeRenderer) ClearHighlight() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
	return nil
}

func (r *fakeRenderer) VisibleAnchors(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.anchors, nil
}

func (r *fakeRenderer) turnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

func (r *fakeRenderer) lastNavHref() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.navHrefs) == 0 {
		return ""
	}
	return r.navHrefs[len(r.navHrefs)-1]
}

func (r *fakeRenderer) highlighted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.highlights...)
}

type syncCall struct {
	loc    progress.Locator
	ts     int64
	reason progress.Reason
}

type fakeStore struct {
	mu        sync.Mutex
	calls     []syncCall
	latest    progress.Locator
	latestTs  int64
	hasLatest bool
}

func (s *fakeStore) SyncProgress(_ context.Context, _ string, loc progress.Locator, ts int64, reason progress.Reason, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, syncCall{loc: loc, ts: ts, reason: reason})
	return nil
}

func (s *fakeStore) LatestProgress(context.Context, string) (progress.Locator, int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latestTs, s.hasLatest, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeStore) last() (syncCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return syncCall{}, false
	}
	return s.calls[len(s.calls)-1], true
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		ResumeWindow:    500 * time.Millisecond,
		DebounceWindow:  20 * time.Millisecond,
		FallbackWindow:  700 * time.Millisecond,
		FlipEarlyOffset: time.Second,
		TickInterval:    25 * time.Millisecond,
	}
}

func testBook(t *testing.T) string {
	t.Helper()
	return overlaytest.WriteFile(t, t.TempDir(), "Wiring Test", []overlaytest.Chapter{
		{ID: "ch1", Label: "Chapter One", Clips: []float64{2, 3}},
		{ID: "notes", Label: "Notes"},
		{ID: "ch2", Label: "Chapter Two", Clips: []float64{4}},
	})
}

func newTestSession(t *testing.T, st *fakeStore, fp *fakePlayer) *Session {
	t.Helper()
	s, err := New(Config{
		BookID:   "bk-1",
		BookPath: testBook(t),
		Store:    st,
		Player:   fp,
		Logger:   discardLogger(),
		Engine:   testEngineConfig(),
		Sync:     config.SyncConfig{Interval: time.Hour, LockAudioToNavigation: true, Source: "test"},
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSession_Open_BuildsModel(t *testing.T) {
	s := newTestSession(t, &fakeStore{}, &fakePlayer{})

	chapters := s.Chapters()
	require.Len(t, chapters, 3)
	assert.Equal(t, "Chapter One", chapters[0].Label)
	assert.True(t, chapters[0].HasAudio)
	assert.InDelta(t, 5.0, chapters[0].Duration, 1e-9)
	assert.False(t, chapters[1].HasAudio)
	assert.True(t, chapters[2].HasAudio)

	st, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "idle", st.State)
	assert.True(t, st.SyncEnabled)
	assert.False(t, st.RendererAttached)
	assert.InDelta(t, 9.0, st.Progress.BookTotal, 1e-9)
}

func TestSession_SeekToAnchor_Headless(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, store, &fakePlayer{})
	ctx := context.Background()

	require.NoError(t, s.SeekToAnchor(ctx, 0, "p1"))

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ready", st.State)
	assert.Equal(t, transport.Position{Section: 0, Entry: 1, AudioTime: 2.0}, st.Position)

	// The debounced seek sync carries the aligned fragment.
	require.Eventually(t, func() bool { return store.count() >= 1 }, time.Second, 10*time.Millisecond)
	call, ok := store.last()
	require.True(t, ok)
	assert.Equal(t, progress.ReasonSeek, call.reason)
	assert.Equal(t, "OEBPS/chapters/ch1.xhtml", call.loc.Href)
	assert.Equal(t, []string{"p1"}, call.loc.Fragments)
}

func TestSession_Pause_SyncsImmediately(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, store, &fakePlayer{})
	ctx := context.Background()

	require.NoError(t, s.SeekToAnchor(ctx, 0, "p0"))
	require.NoError(t, s.Play(ctx))
	require.NoError(t, s.Pause(ctx))

	call, ok := store.last()
	require.True(t, ok)
	assert.Equal(t, progress.ReasonPause, call.reason)

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "paused", st.State)
}

func TestSession_Relocation_NaturalFollowMovesAudio(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, store, &fakePlayer{})
	ctx := context.Background()

	view := &fakeRenderer{}
	require.NoError(t, s.AttachRenderer(ctx, view))

	s.RendererSink()(renderer.Relocated{
		Section: 0, Page: 1, TotalPages: 5, Href: "OEBPS/chapters/ch1.xhtml",
	})

	require.Eventually(t, func() bool {
		st, err := s.Status(ctx)
		return err == nil && st.View.Page == 1 && st.State == "ready"
	}, time.Second, 10*time.Millisecond)

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Position.Section)
	assert.Equal(t, 0, st.Position.Entry)
	assert.Contains(t, view.highlighted(), "p0")

	// A natural follow never persists.
	assert.Equal(t, 0, store.count())
}

func TestSession_NaturalSectionCrossing_NoPauseSync(t *testing.T) {
	store := &fakeStore{}
	fp := &fakePlayer{}
	s := newTestSession(t, store, fp)
	ctx := context.Background()

	require.NoError(t, s.SeekToAnchor(ctx, 0, "p1"))
	require.Eventually(t, func() bool { return store.count() >= 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Play(ctx))
	before := store.count()

	// Entry p1 ends at 5.0s; pushing the playhead past it crosses into
	// chapter two, which lives in a different audio file. The reload must
	// read as a continuation, not a user pause.
	fp.mu.Lock()
	fp.time = 5.1
	fp.mu.Unlock()

	require.Eventually(t, func() bool {
		st, err := s.Status(ctx)
		return err == nil && st.Position.Section == 2
	}, time.Second, 10*time.Millisecond)

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "playing", st.State)
	assert.Equal(t, before, store.count())
	call, ok := store.last()
	require.True(t, ok)
	assert.NotEqual(t, progress.ReasonPause, call.reason)
}

func TestSession_Reconcile_PlayCountsAsActivity(t *testing.T) {
	store := &fakeStore{
		latest:    progress.Locator{Href: "OEBPS/chapters/ch2.xhtml", Fragments: []string{"p0"}},
		hasLatest: true,
	}
	s := newTestSession(t, store, &fakePlayer{})
	ctx := context.Background()

	require.NoError(t, s.SeekToAnchor(ctx, 0, "p0"))
	time.Sleep(5 * time.Millisecond)

	// The remote position lands after the seek but before the user presses
	// play. Pressing play is the newer activity, so local wins.
	store.mu.Lock()
	store.latestTs = time.Now().UnixMilli()
	store.mu.Unlock()
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, s.Play(ctx))

	_, adopted, err := s.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, adopted)

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Position.Section)
	assert.Equal(t, "playing", st.State)
}

func TestSession_Visibility_DrivesPredictedFlip(t *testing.T) {
	s := newTestSession(t, &fakeStore{}, &fakePlayer{})
	ctx := context.Background()

	view := &fakeRenderer{}
	require.NoError(t, s.AttachRenderer(ctx, view))
	require.NoError(t, s.SeekToAnchor(ctx, 0, "p0"))
	require.NoError(t, s.Play(ctx))

	s.RendererSink()(renderer.ElementVisibility{Anchor: "p0", OffScreenRatio: 0.95})

	require.Eventually(t, func() bool { return view.turnCount() >= 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, view.turns[0])
}

func TestSession_JumpToChapter_Headless(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, store, &fakePlayer{})
	ctx := context.Background()

	require.NoError(t, s.JumpToChapter(ctx, 2))

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Position.Section)
	assert.Equal(t, 0, st.Position.Entry)

	require.Eventually(t, func() bool { return store.count() >= 1 }, time.Second, 10*time.Millisecond)
	call, ok := store.last()
	require.True(t, ok)
	assert.Equal(t, progress.ReasonChapterSelect, call.reason)
	assert.Equal(t, "OEBPS/chapters/ch2.xhtml", call.loc.Href)
	assert.Equal(t, []string{"p0"}, call.loc.Fragments)
}

func TestSession_JumpToChapter_UnknownSection(t *testing.T) {
	s := newTestSession(t, &fakeStore{}, &fakePlayer{})

	err := s.JumpToChapter(context.Background(), 9)
	require.Error(t, err)
}

func TestSession_Reconcile_AdoptsNewerRemote(t *testing.T) {
	store := &fakeStore{
		latest:    progress.Locator{Href: "OEBPS/chapters/ch2.xhtml", Fragments: []string{"p0"}},
		latestTs:  12345,
		hasLatest: true,
	}
	s := newTestSession(t, store, &fakePlayer{})
	ctx := context.Background()

	view := &fakeRenderer{}
	require.NoError(t, s.AttachRenderer(ctx, view))

	loc, adopted, err := s.Reconcile(ctx)
	require.NoError(t, err)
	require.True(t, adopted)
	assert.Equal(t, "OEBPS/chapters/ch2.xhtml", loc.Href)
	assert.Equal(t, "OEBPS/chapters/ch2.xhtml#p0", view.lastNavHref())

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Position.Section)
}

func TestSession_Close_FinalSync(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, store, &fakePlayer{})
	ctx := context.Background()

	require.NoError(t, s.SeekToAnchor(ctx, 0, "p1"))
	s.Close()

	call, ok := store.last()
	require.True(t, ok)
	assert.Equal(t, progress.ReasonBookClosed, call.reason)
	assert.Equal(t, []string{"p1"}, call.loc.Fragments)
}

func TestSession_SyncDisabled_NavigationLeavesAudio(t *testing.T) {
	s := newTestSession(t, &fakeStore{}, &fakePlayer{})
	ctx := context.Background()

	require.NoError(t, s.SetSyncEnabled(ctx, false))
	require.NoError(t, s.JumpToChapter(ctx, 2))

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", st.State)
	assert.False(t, st.SyncEnabled)
}

func newTestManager(t *testing.T, store *fakeStore) *Manager {
	t.Helper()
	cfg := &config.Config{
		Data:   config.DataConfig{BasePath: t.TempDir()},
		Engine: testEngineConfig(),
		Sync:   config.SyncConfig{Interval: time.Hour, LockAudioToNavigation: true, Source: "test"},
	}
	m := NewManager(cfg, store, discardLogger())
	m.newPlayer = func(string) transport.Player { return &fakePlayer{} }
	t.Cleanup(m.CloseAll)
	return m
}

func TestManager_Open_OneSessionPerBook(t *testing.T) {
	m := newTestManager(t, &fakeStore{})
	ctx := context.Background()
	path := testBook(t)

	s1, err := m.Open(ctx, "bk-1", path)
	require.NoError(t, err)
	s2, err := m.Open(ctx, "bk-1", path)
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	got, ok := m.Get(s1.ID())
	require.True(t, ok)
	assert.Same(t, s1, got)

	got, ok = m.GetByBook("bk-1")
	require.True(t, ok)
	assert.Same(t, s1, got)
}

func TestManager_Close_RemovesSession(t *testing.T) {
	m := newTestManager(t, &fakeStore{})
	ctx := context.Background()

	s, err := m.Open(ctx, "bk-1", testBook(t))
	require.NoError(t, err)

	require.NoError(t, m.Close(s.ID()))
	_, ok := m.Get(s.ID())
	assert.False(t, ok)
	_, ok = m.GetByBook("bk-1")
	assert.False(t, ok)

	require.Error(t, m.Close(s.ID()))
}

func TestManager_CloseAll(t *testing.T) {
	m := newTestManager(t, &fakeStore{})
	ctx := context.Background()

	_, err := m.Open(ctx, "bk-1", testBook(t))
	require.NoError(t, err)
	_, err = m.Open(ctx, "bk-2", testBook(t))
	require.NoError(t, err)
	require.Len(t, m.Sessions(), 2)

	m.CloseAll()
	assert.Empty(t, m.Sessions())
}