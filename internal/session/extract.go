package session

import (
	"archive/zip"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/overlay"
)

// extractAudio copies every audio resource the alignment model references out
// of the archive into destRoot, preserving archive-relative paths. Already
// extracted files with matching sizes are kept. Audio the archive is missing
// only logs; the load failure surfaces if playback ever reaches it.
func extractAudio(bookPath string, model *overlay.Model, destRoot string, log *slog.Logger) error {
	wanted := make(map[string]struct{})
	for i := range model.Sections {
		for _, e := range model.Sections[i].Entries {
			wanted[e.AudioPath] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	zr, err := zip.OpenReader(bookPath)
	if err != nil {
		return errors.Wrapf(err, errors.CodeParse, "open archive %s", bookPath)
	}
	defer zr.Close()

	cleanRoot := filepath.Clean(destRoot)
	for _, f := range zr.File {
		name := path.Clean(strings.TrimPrefix(f.Name, "/"))
		if _, ok := wanted[name]; !ok {
			continue
		}
		delete(wanted, name)

		dest := filepath.Join(cleanRoot, filepath.FromSlash(name))
		if !strings.HasPrefix(dest, cleanRoot+string(os.PathSeparator)) {
			return errors.Parsef("audio path escapes cache: %s", name)
		}

		if fi, statErr := os.Stat(dest); statErr == nil && fi.Size() == int64(f.UncompressedSize64) {
			continue
		}
		if err := copyEntry(f, dest); err != nil {
			return errors.Wrapf(err, errors.CodeInternal, "extract %s", name)
		}
	}

	for name := range wanted {
		log.Warn("aligned audio missing from archive", "path", name)
	}
	return nil
}

func copyEntry(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest) //#nosec G304 -- destination is containment-checked above
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil { //#nosec G110 -- local EPUB, bounded by disk
		out.Close()
		return err
	}
	return out.Close()
}
