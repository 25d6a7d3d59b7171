package overlay

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/overlay/overlaytest"
)

func loadTestModel(t *testing.T, title string, chapters []overlaytest.Chapter) *Model {
	t.Helper()
	data := overlaytest.Archive(title, chapters)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	model, err := LoadArchive(zr, nil)
	require.NoError(t, err)
	return model
}

func TestLoadArchive_BuildsSections(t *testing.T) {
	model := loadTestModel(t, "Test Book", []overlaytest.Chapter{
		{ID: "ch1", Label: "Chapter One", Clips: []float64{2, 3, 5}},
		{ID: "notes", Label: "Notes"},
		{ID: "ch2", Label: "Chapter Two", Clips: []float64{4, 4}},
	})

	assert.Equal(t, "Test Book", model.Title)
	require.Len(t, model.Sections, 3)

	ch1 := model.Section(0)
	assert.Equal(t, 0, ch1.Index)
	assert.Equal(t, "OEBPS/chapters/ch1.xhtml", ch1.Path)
	assert.Equal(t, "Chapter One", ch1.Label)
	require.Len(t, ch1.Entries, 3)
	assert.Equal(t, "p0", ch1.Entries[0].TextID)
	assert.Equal(t, "OEBPS/chapters/ch1.xhtml", ch1.Entries[0].TextPath)
	assert.Equal(t, "OEBPS/audio/ch1.mp3", ch1.Entries[0].AudioPath)
	assert.InDelta(t, 2.0, ch1.Entries[0].End, 1e-9)
	assert.InDelta(t, 10.0, ch1.Duration(), 1e-9)

	// Text-only chapters keep their spine slot so indices stay stable.
	notes := model.Section(1)
	assert.Equal(t, 1, notes.Index)
	assert.False(t, notes.HasAudio())

	ch2 := model.Section(2)
	assert.Equal(t, 2, ch2.Index)
	assert.InDelta(t, 8.0, ch2.Duration(), 1e-9)
}

func TestLoadArchive_CumSumsNonDecreasing(t *testing.T) {
	model := loadTestModel(t, "Sums", []overlaytest.Chapter{
		{ID: "a", Clips: []float64{1.5, 0, 2.25, 4}},
		{ID: "b", Clips: []float64{3, 3, 3}},
	})

	for _, sec := range model.Sections {
		prev := 0.0
		for _, e := range sec.Entries {
			assert.GreaterOrEqual(t, e.CumEnd, prev,
				"section %d cum sums must be non-decreasing", sec.Index)
			prev = e.CumEnd
		}
		if sec.HasAudio() {
			assert.InDelta(t, sec.Entries[len(sec.Entries)-1].CumEnd, sec.Duration(), 1e-9)
		}
	}
}

func TestLoadArchive_MalformedOverlayDegradesSection(t *testing.T) {
	model := loadTestModel(t, "Degraded", []overlaytest.Chapter{
		{ID: "good", Clips: []float64{2, 2}},
		{ID: "bad", Clips: []float64{1}, MalformedSMIL: true},
	})

	require.Len(t, model.Sections, 2)
	assert.True(t, model.Section(0).HasAudio())
	// The malformed overlay degrades its section instead of failing the book.
	assert.False(t, model.Section(1).HasAudio())
}

func TestLoadArchive_MissingContainerFails(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("mimetype")
	require.NoError(t, err)
	_, err = w.Write([]byte("application/epub+zip"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	_, err = LoadArchive(zr, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrParse))
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/book.epub", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrParse))
}
