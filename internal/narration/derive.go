package narration

// Progress is the audio-relative progress derived from the transport's
// current position. Recomputed per query from cumulative sums, never cached.
type Progress struct {
	ChapterElapsed float64 `json:"chapter_elapsed"`
	ChapterTotal   float64 `json:"chapter_total"`
	BookElapsed    float64 `json:"book_elapsed"`
	BookTotal      float64 `json:"book_total"`
}

// ChapterFraction returns intra-chapter progression, 0..1.
func (p Progress) ChapterFraction() float64 {
	if p.ChapterTotal <= 0 {
		return 0
	}
	return p.ChapterElapsed / p.ChapterTotal
}

// BookFraction returns whole-book progression, 0..1.
func (p Progress) BookFraction() float64 {
	if p.BookTotal <= 0 {
		return 0
	}
	return p.BookElapsed / p.BookTotal
}

// Progress derives current chapter and book elapsed/total times.
func (d *Decider) Progress() Progress {
	pos := d.transport.Position()
	sec := d.model.Section(pos.Section)
	if sec == nil {
		return Progress{BookTotal: d.model.TotalDuration()}
	}
	chapterElapsed := sec.ElapsedAt(pos.Entry, pos.AudioTime)
	return Progress{
		ChapterElapsed: chapterElapsed,
		ChapterTotal:   sec.Duration(),
		BookElapsed:    d.model.ElapsedBefore(pos.Section) + chapterElapsed,
		BookTotal:      d.model.TotalDuration(),
	}
}

// RemainingAtRate returns seconds of book audio left at the current
// playback rate.
func (d *Decider) RemainingAtRate() float64 {
	p := d.Progress()
	return (p.BookTotal - p.BookElapsed) / d.transport.Rate()
}
