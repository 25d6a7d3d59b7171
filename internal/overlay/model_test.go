package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-reader/internal/overlay/overlaytest"
)

func sumsModel(t *testing.T) *Model {
	t.Helper()
	return loadTestModel(t, "Nav", []overlaytest.Chapter{
		{ID: "ch1", Clips: []float64{2, 3}},
		{ID: "interlude"},
		{ID: "ch2", Clips: []float64{5}},
		{ID: "ch3", Clips: []float64{1, 1, 1}},
	})
}

func TestSection_EntryForAnchor(t *testing.T) {
	model := sumsModel(t)
	sec := model.Section(0)

	i, ok := sec.EntryForAnchor("p1")
	require.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = sec.EntryForAnchor("p9")
	assert.False(t, ok)
}

func TestSection_ElapsedAt(t *testing.T) {
	model := sumsModel(t)
	sec := model.Section(0) // clips 2s + 3s

	assert.InDelta(t, 0.0, sec.ElapsedAt(0, 0), 1e-9)
	assert.InDelta(t, 1.5, sec.ElapsedAt(0, 1.5), 1e-9)
	// Entry 1 begins at audio offset 2.
	assert.InDelta(t, 3.0, sec.ElapsedAt(1, 3.0), 1e-9)
	// Offsets clamp to the entry's clip bounds.
	assert.InDelta(t, 2.0, sec.ElapsedAt(1, 0), 1e-9)
	assert.InDelta(t, 5.0, sec.ElapsedAt(1, 99), 1e-9)
	assert.InDelta(t, 0.0, sec.ElapsedAt(7, 1), 1e-9)
}

func TestModel_Totals(t *testing.T) {
	model := sumsModel(t)

	assert.InDelta(t, 13.0, model.TotalDuration(), 1e-9)
	assert.InDelta(t, 0.0, model.ElapsedBefore(0), 1e-9)
	assert.InDelta(t, 5.0, model.ElapsedBefore(2), 1e-9)
	assert.InDelta(t, 10.0, model.ElapsedBefore(3), 1e-9)
}

func TestModel_AudioSectionWalk(t *testing.T) {
	model := sumsModel(t)

	// Walks skip the text-only interlude at index 1.
	assert.Equal(t, 2, model.NextAudioSection(0))
	assert.Equal(t, 3, model.NextAudioSection(2))
	assert.Equal(t, -1, model.NextAudioSection(3))

	assert.Equal(t, 0, model.PrevAudioSection(2))
	assert.Equal(t, 2, model.PrevAudioSection(3))
	assert.Equal(t, -1, model.PrevAudioSection(0))
}

func TestModel_ResolveFragment_RoundTrip(t *testing.T) {
	model := sumsModel(t)
	sec := model.Section(3)

	// A locator href built from a (section, anchor) pair resolves back to it.
	href := sec.Path + "#" + sec.Entries[2].TextID
	gotSection, gotEntry, ok := model.ResolveFragment(href)
	require.True(t, ok)
	assert.Equal(t, 3, gotSection)
	assert.Equal(t, 2, gotEntry)
}

func TestModel_ResolveFragment_Fallbacks(t *testing.T) {
	model := sumsModel(t)

	// Unknown anchor falls back to the section's first entry.
	section, entry, ok := model.ResolveFragment(model.Section(2).Path + "#missing")
	require.True(t, ok)
	assert.Equal(t, 2, section)
	assert.Equal(t, 0, entry)

	// No fragment at all resolves to the first entry.
	section, entry, ok = model.ResolveFragment(model.Section(0).Path)
	require.True(t, ok)
	assert.Equal(t, 0, section)
	assert.Equal(t, 0, entry)

	_, _, ok = model.ResolveFragment("OEBPS/chapters/nope.xhtml#p0")
	assert.False(t, ok)
}
