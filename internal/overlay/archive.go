package overlay

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"path"
	"strings"

	"github.com/listenupapp/listenup-reader/internal/errors"
)

const containerPath = "META-INF/container.xml"

// containerXML is the fixed container pointer file locating the root manifest.
type containerXML struct {
	Rootfiles []rootfile `xml:"rootfiles>rootfile"`
}

type rootfile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// rootfilePath extracts the package document path from container.xml.
func rootfilePath(data []byte) (string, error) {
	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", errors.Wrap(err, errors.CodeParse, "malformed container.xml")
	}
	for _, rf := range c.Rootfiles {
		if rf.MediaType == "application/oebps-package+xml" && rf.FullPath != "" {
			return rf.FullPath, nil
		}
	}
	// Fall back to the first rootfile if none carries the expected media type.
	if len(c.Rootfiles) > 0 && c.Rootfiles[0].FullPath != "" {
		return c.Rootfiles[0].FullPath, nil
	}
	return "", errors.Parse("container.xml declares no rootfile")
}

// readArchiveFile reads one file out of the zip by normalized name.
func readArchiveFile(zr *zip.Reader, name string) ([]byte, error) {
	normalized := normalizePath(name)
	for _, f := range zr.File {
		if normalizePath(f.Name) != normalized {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeParse, "open archive entry %s", name)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeParse, "read archive entry %s", name)
		}
		return data, nil
	}
	return nil, errors.NotFoundf("archive entry %s not found", name)
}

// resolvePath resolves ref relative to the directory of from, normalizing
// "."/".." segments. All archive paths use forward slashes.
func resolvePath(from, ref string) string {
	ref = strings.TrimPrefix(ref, "/")
	if from == "" {
		return normalizePath(ref)
	}
	return normalizePath(path.Join(path.Dir(from), ref))
}

func normalizePath(p string) string {
	cleaned := path.Clean(strings.TrimPrefix(p, "/"))
	// Clean can leave leading parent segments for malformed refs; they can
	// never resolve inside the archive, so strip them.
	for strings.HasPrefix(cleaned, "../") {
		cleaned = cleaned[3:]
	}
	if cleaned == "." || cleaned == ".." {
		return ""
	}
	return cleaned
}
