package overlay

import (
	"archive/zip"
	"log/slog"

	"github.com/listenupapp/listenup-reader/internal/errors"
)

// Load opens an EPUB archive from disk and builds its alignment model.
// Archive-level failures abort the load; a malformed per-section media
// overlay only degrades that section to text-only.
func Load(bookPath string, log *slog.Logger) (*Model, error) {
	zr, err := zip.OpenReader(bookPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeParse, "open archive %s", bookPath)
	}
	defer zr.Close()
	return LoadArchive(&zr.Reader, log)
}

// LoadArchive builds the alignment model from an already-open zip reader.
func LoadArchive(zr *zip.Reader, log *slog.Logger) (*Model, error) {
	containerData, err := readArchiveFile(zr, containerPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeParse, "missing container pointer file")
	}

	rootPath, err := rootfilePath(containerData)
	if err != nil {
		return nil, err
	}
	rootPath = normalizePath(rootPath)

	opfData, err := readArchiveFile(zr, rootPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeParse, "missing package document %s", rootPath)
	}
	pkg, items, err := parseOPF(opfData)
	if err != nil {
		return nil, err
	}

	labels := loadLabels(zr, pkg, rootPath)

	model := &Model{
		Title:    pkg.title(),
		Sections: make([]Section, 0, len(pkg.Spine)),
		byPath:   make(map[string]int, len(pkg.Spine)),
	}

	for i, ref := range pkg.Spine {
		item, ok := items[ref.IDRef]
		if !ok {
			return nil, errors.Parsef("spine references unknown manifest id %q", ref.IDRef)
		}

		section := Section{
			Index: i,
			Path:  resolvePath(rootPath, item.Href),
		}
		if toc, ok := labels[section.Path]; ok {
			section.Label = toc.Label
			section.Level = toc.Level
		}

		if item.MediaOverlay != "" {
			section.Entries = loadEntries(zr, items, item.MediaOverlay, rootPath, log)
		}

		model.byPath[section.Path] = i
		model.Sections = append(model.Sections, section)
	}

	return model, nil
}

// loadLabels parses the NCX when the manifest declares one.
func loadLabels(zr *zip.Reader, pkg *opfPackage, rootPath string) map[string]tocEntry {
	ncx, ok := pkg.ncxItem()
	if !ok {
		return nil
	}
	ncxPath := resolvePath(rootPath, ncx.Href)
	data, err := readArchiveFile(zr, ncxPath)
	if err != nil {
		return nil
	}
	return parseNCX(data, ncxPath)
}

// loadEntries parses one section's media overlay into ordered entries with
// cumulative duration sums. Any failure degrades the section to text-only.
func loadEntries(zr *zip.Reader, items map[string]opfItem, overlayID, rootPath string, log *slog.Logger) []Entry {
	overlayItem, ok := items[overlayID]
	if !ok {
		warn(log, "media overlay id not in manifest", "overlay", overlayID)
		return nil
	}

	// Manifest hrefs are declared relative to the package document.
	smilPath := resolvePath(rootPath, overlayItem.Href)
	data, err := readArchiveFile(zr, smilPath)
	if err != nil {
		warn(log, "media overlay unreadable", "path", smilPath, "error", err)
		return nil
	}

	pars, err := parseSMIL(data)
	if err != nil {
		warn(log, "media overlay malformed, section degraded to text-only",
			"path", smilPath, "error", err)
		return nil
	}

	entries := make([]Entry, 0, len(pars))
	var cum float64
	for _, par := range pars {
		textPath, anchor := SplitFragment(par.Text.Src)
		if anchor == "" || par.Audio.Src == "" {
			continue
		}

		// Unparsable clip offsets fail closed to 0 instead of aborting.
		begin, _ := ParseClock(par.Audio.ClipBegin)
		end, _ := ParseClock(par.Audio.ClipEnd)
		if end < begin {
			end = begin
		}

		cum += end - begin
		entries = append(entries, Entry{
			TextID:    anchor,
			TextPath:  resolvePath(smilPath, textPath),
			AudioPath: resolvePath(smilPath, par.Audio.Src),
			Begin:     begin,
			End:       end,
			CumEnd:    cum,
		})
	}
	return entries
}

func warn(log *slog.Logger, msg string, args ...any) {
	if log != nil {
		log.Warn(msg, args...)
	}
}
