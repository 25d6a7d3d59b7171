// Package renderer defines the contract between the engine and the external
// text-rendering engine: tagged events the renderer emits and the command
// surface it accepts. The engine never sees rendered pages, only positions.
package renderer

// Event is the interface implemented by all renderer events.
type Event interface {
	isRendererEvent()
}

// Relocated reports that the view settled on a new position. Fields the
// renderer could not determine are left at their zero value, with Section
// carrying -1 when unknown.
type Relocated struct {
	Section    int    `json:"section"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	Href       string `json:"href,omitempty"`
	// Fraction is whole-book progression, 0..1.
	Fraction float64 `json:"fraction"`
	// ChapterFraction is intra-chapter progression, 0..1.
	ChapterFraction float64 `json:"chapter_fraction"`
}

func (Relocated) isRendererEvent() {}

// PageFlipped reports a page turn observed by the renderer, whether caused
// by a swipe or by an engine-issued command.
type PageFlipped struct {
	Forward  bool `json:"forward"`
	FromPage int  `json:"from_page"`
	ToPage   int  `json:"to_page"`
}

func (PageFlipped) isRendererEvent() {}

// ElementVisibility reports how much of the currently highlighted anchor
// remains on screen.
type ElementVisibility struct {
	Anchor         string  `json:"anchor"`
	VisibleRatio   float64 `json:"visible_ratio"`
	OffScreenRatio float64 `json:"off_screen_ratio"`
}

func (ElementVisibility) isRendererEvent() {}
