// Package overlay builds and exposes the per-book text/audio alignment model.
//
// The model is parsed once from an EPUB's media-overlay (SMIL) resources and
// is immutable for the lifetime of that load. Sections mirror the spine one
// to one, so section indices are dense and stable; text-only chapters keep
// their slot with an empty entry list.
package overlay

import "strings"

// Entry is one time-coded unit binding a text anchor to an audio clip.
type Entry struct {
	// TextID is the anchor id, unique within the owning content document.
	TextID string `json:"text_id"`
	// TextPath is the content document path, archive-relative.
	TextPath string `json:"text_path"`
	// AudioPath is the audio file path, archive-relative. It may differ
	// entry to entry within a section.
	AudioPath string `json:"audio_path"`
	// Begin and End are offsets into the audio file, in seconds. End > Begin.
	Begin float64 `json:"begin"`
	End   float64 `json:"end"`
	// CumEnd is the running duration sum from the start of the section
	// through the end of this entry, in seconds. Non-decreasing across the
	// section's entry list; chapter/book elapsed math derives from it
	// without re-summation.
	CumEnd float64 `json:"cum_end"`
}

// Duration returns the entry's clip length in seconds.
func (e Entry) Duration() float64 {
	return e.End - e.Begin
}

// Section is one spine unit of the book.
type Section struct {
	// Index is 0-based and stable within a loaded book.
	Index int `json:"index"`
	// Path is the section's content document path, its stable identifier.
	Path string `json:"path"`
	// Label is the table-of-contents display label, when one resolved.
	Label string `json:"label,omitempty"`
	// Level is the TOC nesting depth (0 = top level).
	Level int `json:"level"`
	// Entries is ordered by non-decreasing cumulative time. Empty for
	// text-only sections.
	Entries []Entry `json:"entries"`
}

// HasAudio reports whether the section carries any aligned entries.
func (s *Section) HasAudio() bool {
	return len(s.Entries) > 0
}

// Duration returns the section's total aligned audio duration in seconds.
func (s *Section) Duration() float64 {
	if len(s.Entries) == 0 {
		return 0
	}
	return s.Entries[len(s.Entries)-1].CumEnd
}

// EntryForAnchor returns the index of the entry whose text anchor matches,
// or false if the anchor is not aligned in this section.
func (s *Section) EntryForAnchor(anchor string) (int, bool) {
	for i := range s.Entries {
		if s.Entries[i].TextID == anchor {
			return i, true
		}
	}
	return 0, false
}

// ElapsedAt returns seconds of section audio elapsed at the given entry and
// intra-entry audio time (an offset into the entry's audio file).
func (s *Section) ElapsedAt(entry int, audioTime float64) float64 {
	if entry < 0 || entry >= len(s.Entries) {
		return 0
	}
	e := s.Entries[entry]
	within := audioTime - e.Begin
	if within < 0 {
		within = 0
	}
	if within > e.Duration() {
		within = e.Duration()
	}
	var before float64
	if entry > 0 {
		before = s.Entries[entry-1].CumEnd
	}
	return before + within
}

// Model is the whole-book alignment structure.
type Model struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`

	byPath map[string]int
}

// Section returns the section at index i, or nil when out of range.
func (m *Model) Section(i int) *Section {
	if i < 0 || i >= len(m.Sections) {
		return nil
	}
	return &m.Sections[i]
}

// SectionByPath returns the section whose content document matches path.
func (m *Model) SectionByPath(path string) (*Section, bool) {
	i, ok := m.byPath[path]
	if !ok {
		return nil, false
	}
	return &m.Sections[i], true
}

// TotalDuration returns the book's total aligned audio duration in seconds.
func (m *Model) TotalDuration() float64 {
	var total float64
	for i := range m.Sections {
		total += m.Sections[i].Duration()
	}
	return total
}

// ElapsedBefore returns the summed duration of all sections prior to index.
func (m *Model) ElapsedBefore(section int) float64 {
	var total float64
	for i := range m.Sections {
		if i >= section {
			break
		}
		total += m.Sections[i].Duration()
	}
	return total
}

// NextAudioSection returns the index of the nearest section after from that
// has aligned entries, or -1 when none remains.
func (m *Model) NextAudioSection(from int) int {
	for i := from + 1; i < len(m.Sections); i++ {
		if m.Sections[i].HasAudio() {
			return i
		}
	}
	return -1
}

// PrevAudioSection returns the index of the nearest section before from that
// has aligned entries, or -1 when none exists.
func (m *Model) PrevAudioSection(from int) int {
	for i := from - 1; i >= 0; i-- {
		if m.Sections[i].HasAudio() {
			return i
		}
	}
	return -1
}

// ResolveFragment maps an href of the form "path#anchor" back to a (section,
// entry) pair. A missing or unaligned anchor resolves to the section's first
// entry. Returns false when the path names no known section.
func (m *Model) ResolveFragment(href string) (section, entry int, ok bool) {
	p, frag := SplitFragment(href)
	sec, found := m.SectionByPath(p)
	if !found {
		return 0, 0, false
	}
	if frag != "" {
		if i, matched := sec.EntryForAnchor(frag); matched {
			return sec.Index, i, true
		}
	}
	return sec.Index, 0, true
}

// SplitFragment splits "path#anchor" into its parts.
func SplitFragment(href string) (path, fragment string) {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i], href[i+1:]
	}
	return href, ""
}
