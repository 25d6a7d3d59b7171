// Package overlaytest builds minimal EPUB archives with media overlays for
// engine tests.
package overlaytest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Chapter describes one spine item of a generated test book.
type Chapter struct {
	// ID names the chapter's files (ID.xhtml, ID.smil, ID.mp3).
	ID string
	// Label is the NCX navigation label.
	Label string
	// Clips is the per-paragraph clip duration list, in seconds. Empty
	// means a text-only chapter with no media overlay.
	Clips []float64
	// AudioFile overrides the default audio path for every clip.
	AudioFile string
	// MalformedSMIL emits a truncated overlay to exercise degradation.
	MalformedSMIL bool
}

// Archive writes a complete EPUB zip and returns its bytes.
func Archive(title string, chapters []Chapter) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, content string) {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			panic(err)
		}
	}

	write("mimetype", "application/epub+zip")
	write("META-INF/container.xml", `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`)
	write("OEBPS/content.opf", packageDoc(title, chapters))
	write("OEBPS/toc.ncx", ncxDoc(title, chapters))

	for _, ch := range chapters {
		write("OEBPS/chapters/"+ch.ID+".xhtml", chapterDoc(ch))
		if len(ch.Clips) == 0 {
			continue
		}
		if ch.MalformedSMIL {
			write("OEBPS/smil/"+ch.ID+".smil", "<smil><body><seq><par>")
			continue
		}
		write("OEBPS/smil/"+ch.ID+".smil", smilDoc(ch))
	}

	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// WriteFile writes a generated EPUB into dir and returns its path.
func WriteFile(t *testing.T, dir, title string, chapters []Chapter) string {
	t.Helper()
	path := filepath.Join(dir, strings.ReplaceAll(title, " ", "_")+".epub")
	if err := os.WriteFile(path, Archive(title, chapters), 0o644); err != nil {
		t.Fatalf("write test epub: %v", err)
	}
	return path
}

func packageDoc(title string, chapters []Chapter) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="pub-id">urn:uuid:test</dc:identifier>
`)
	fmt.Fprintf(&sb, "    <dc:title>%s</dc:title>\n", title)
	sb.WriteString("  </metadata>\n  <manifest>\n")
	sb.WriteString(`    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>` + "\n")

	for _, ch := range chapters {
		if len(ch.Clips) > 0 {
			fmt.Fprintf(&sb, `    <item id="%s" href="chapters/%s.xhtml" media-type="application/xhtml+xml" media-overlay="%s_overlay"/>`+"\n", ch.ID, ch.ID, ch.ID)
			fmt.Fprintf(&sb, `    <item id="%s_overlay" href="smil/%s.smil" media-type="application/smil+xml"/>`+"\n", ch.ID, ch.ID)
			fmt.Fprintf(&sb, `    <item id="%s_audio" href="audio/%s" media-type="audio/mpeg"/>`+"\n", ch.ID, audioFile(ch))
		} else {
			fmt.Fprintf(&sb, `    <item id="%s" href="chapters/%s.xhtml" media-type="application/xhtml+xml"/>`+"\n", ch.ID, ch.ID)
		}
	}

	sb.WriteString("  </manifest>\n  <spine toc=\"ncx\">\n")
	for _, ch := range chapters {
		fmt.Fprintf(&sb, `    <itemref idref="%s"/>`+"\n", ch.ID)
	}
	sb.WriteString("  </spine>\n</package>\n")
	return sb.String()
}

func ncxDoc(title string, chapters []Chapter) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
`)
	for i, ch := range chapters {
		label := ch.Label
		if label == "" {
			label = ch.ID
		}
		fmt.Fprintf(&sb, `    <navPoint id="nav-%d" playOrder="%d">
      <navLabel><text>%s</text></navLabel>
      <content src="chapters/%s.xhtml"/>
    </navPoint>
`, i+1, i+1, label, ch.ID)
	}
	sb.WriteString("  </navMap>\n</ncx>\n")
	return sb.String()
}

func chapterDoc(ch Chapter) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body>
`)
	for i := range ch.Clips {
		fmt.Fprintf(&sb, `  <p id="p%d">paragraph %d</p>`+"\n", i, i)
	}
	sb.WriteString("</body></html>\n")
	return sb.String()
}

func smilDoc(ch Chapter) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<smil xmlns="http://www.w3.org/ns/SMIL" version="3.0">
  <body>
    <seq id="seq1">
`)
	var offset float64
	for i, clip := range ch.Clips {
		fmt.Fprintf(&sb, `      <par id="par%d">
        <text src="../chapters/%s.xhtml#p%d"/>
        <audio src="../audio/%s" clipBegin="%.3fs" clipEnd="%.3fs"/>
      </par>
`, i, ch.ID, i, audioFile(ch), offset, offset+clip)
		offset += clip
	}
	sb.WriteString("    </seq>\n  </body>\n</smil>\n")
	return sb.String()
}

func audioFile(ch Chapter) string {
	if ch.AudioFile != "" {
		return ch.AudioFile
	}
	return ch.ID + ".mp3"
}
