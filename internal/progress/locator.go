package progress

// A strategy turns the live position into a locator, or declines. Strategies
// are tried in order so the fallback chain (fragment, section progression,
// book fraction, bare href) can be reordered or extended in one place.
type strategy func(pos Position, withFragment bool) (Locator, bool)

var strategies = []strategy{
	fragmentStrategy,
	sectionProgressionStrategy,
	bookFractionStrategy,
	hrefStrategy,
}

// Resolve builds a locator from the position, preferring a text-anchor
// fragment when requested and available. Returns false when no strategy has
// enough input, in which case a sync is a no-op.
func Resolve(pos Position, withFragment bool) (Locator, bool) {
	for _, s := range strategies {
		if loc, ok := s(pos, withFragment); ok {
			return loc, true
		}
	}
	return Locator{}, false
}

func fragmentStrategy(pos Position, withFragment bool) (Locator, bool) {
	if !withFragment || pos.SectionPath == "" || pos.Anchor == "" {
		return Locator{}, false
	}
	return Locator{
		Href:            pos.SectionPath,
		Fragments:       []string{pos.Anchor},
		ChapterFraction: fraction(pos.ChapterFraction),
		BookFraction:    fraction(pos.BookFraction),
		Title:           pos.Title,
	}, true
}

func sectionProgressionStrategy(pos Position, _ bool) (Locator, bool) {
	if pos.SectionPath == "" || pos.ChapterFraction <= 0 {
		return Locator{}, false
	}
	return Locator{
		Href:            pos.SectionPath,
		ChapterFraction: fraction(pos.ChapterFraction),
		BookFraction:    fraction(pos.BookFraction),
		Title:           pos.Title,
	}, true
}

func bookFractionStrategy(pos Position, _ bool) (Locator, bool) {
	if pos.BookFraction <= 0 {
		return Locator{}, false
	}
	href := pos.Href
	if href == "" {
		href = pos.SectionPath
	}
	return Locator{
		Href:         href,
		BookFraction: fraction(pos.BookFraction),
		Title:        pos.Title,
	}, true
}

func hrefStrategy(pos Position, _ bool) (Locator, bool) {
	href := pos.Href
	if href == "" {
		href = pos.SectionPath
	}
	if href == "" {
		return Locator{}, false
	}
	return Locator{Href: href, Title: pos.Title}, true
}

func fraction(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}
