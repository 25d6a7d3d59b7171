package overlay

import (
	"encoding/xml"

	"github.com/listenupapp/listenup-reader/internal/errors"
)

// opfPackage is the EPUB package document: metadata, an id-keyed manifest,
// and the ordered spine.
type opfPackage struct {
	Titles   []string     `xml:"metadata>title"`
	Manifest []opfItem    `xml:"manifest>item"`
	Spine    []opfItemref `xml:"spine>itemref"`
}

type opfItem struct {
	ID           string `xml:"id,attr"`
	Href         string `xml:"href,attr"`
	MediaType    string `xml:"media-type,attr"`
	MediaOverlay string `xml:"media-overlay,attr"`
}

type opfItemref struct {
	IDRef string `xml:"idref,attr"`
}

const ncxMediaType = "application/x-dtbncx+xml"

// parseOPF parses the package document and indexes the manifest by id.
func parseOPF(data []byte) (*opfPackage, map[string]opfItem, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeParse, "malformed package document")
	}
	if len(pkg.Spine) == 0 {
		return nil, nil, errors.Parse("package document has an empty spine")
	}

	items := make(map[string]opfItem, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		if item.ID != "" {
			items[item.ID] = item
		}
	}
	return &pkg, items, nil
}

// title returns the first declared title, if any.
func (p *opfPackage) title() string {
	if len(p.Titles) == 0 {
		return ""
	}
	return p.Titles[0]
}

// ncxItem locates the navigation-control file in the manifest.
func (p *opfPackage) ncxItem() (opfItem, bool) {
	for _, item := range p.Manifest {
		if item.MediaType == ncxMediaType {
			return item, true
		}
	}
	return opfItem{}, false
}
