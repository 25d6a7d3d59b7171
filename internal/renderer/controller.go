package renderer

import "context"

// Controller is the command surface into the rendering engine. Commands are
// fire-and-forget; VisibleAnchors is the one request/response round trip.
type Controller interface {
	// NavigateToHref moves the view to "path" or "path#anchor".
	NavigateToHref(href string) error
	// NavigateToFraction moves the view to a progression fraction within a
	// section, 0..1.
	NavigateToFraction(section int, fraction float64) error
	// NavigateToBookFraction moves the view to a whole-book fraction, 0..1.
	NavigateToBookFraction(fraction float64) error
	// TurnPage flips one page forward or backward.
	TurnPage(forward bool) error
	// Highlight marks the anchor as the active narration unit.
	Highlight(anchor string) error
	// ClearHighlight removes any active narration highlight.
	ClearHighlight() error
	// VisibleAnchors returns the anchor ids fully visible on the current page.
	VisibleAnchors(ctx context.Context) ([]string, error)
}
