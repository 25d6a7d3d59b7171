package overlay

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/listenupapp/listenup-reader/internal/errors"
)

// smilPar is one <par> element: a text reference paired with an audio clip.
type smilPar struct {
	Text struct {
		Src string `xml:"src,attr"`
	} `xml:"text"`
	Audio struct {
		Src       string `xml:"src,attr"`
		ClipBegin string `xml:"clipBegin,attr"`
		ClipEnd   string `xml:"clipEnd,attr"`
	} `xml:"audio"`
}

// parseSMIL extracts all <par> elements in document order. Walking tokens
// rather than unmarshalling the tree keeps pars ordered across nested <seq>
// groupings.
func parseSMIL(data []byte) ([]smilPar, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var pars []smilPar
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeParse, "malformed media overlay")
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "par" {
			continue
		}
		var par smilPar
		if err := dec.DecodeElement(&par, &se); err != nil {
			return nil, errors.Wrap(err, errors.CodeParse, "malformed par element")
		}
		pars = append(pars, par)
	}
	return pars, nil
}
