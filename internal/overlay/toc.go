package overlay

import "encoding/xml"

// tocEntry is a display label with its nesting depth, keyed by content path.
type tocEntry struct {
	Label string
	Level int
}

type ncxDoc struct {
	NavMap struct {
		Points []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// parseNCX resolves TOC labels from the navigation-control file, keyed by
// normalized content-document path. Labels are matched to spine items by
// path; a malformed NCX yields no labels rather than failing the load.
func parseNCX(data []byte, ncxPath string) map[string]tocEntry {
	var doc ncxDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil
	}

	labels := make(map[string]tocEntry)
	var walk func(points []ncxNavPoint, level int)
	walk = func(points []ncxNavPoint, level int) {
		for _, pt := range points {
			p, _ := SplitFragment(pt.Content.Src)
			resolved := resolvePath(ncxPath, p)
			if resolved != "" {
				// First label wins; deeper duplicates don't override.
				if _, seen := labels[resolved]; !seen {
					labels[resolved] = tocEntry{Label: pt.Label, Level: level}
				}
			}
			walk(pt.Children, level+1)
		}
	}
	walk(doc.NavMap.Points, 0)
	return labels
}
