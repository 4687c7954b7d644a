package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

var tabularExt = map[string]bool{".csv": true, ".xlsx": true, ".shp": true}

// ExtractTabular unpacks zipPath into destDir and returns the first CSV,
// XLSX or shapefile entry in archive order. Shapefile sidecars (.dbf, .shx)
// are unpacked alongside.
func ExtractTabular(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var picked string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		p, err := extractEntry(f, destDir)
		if err != nil {
			return "", err
		}
		if picked == "" && tabularExt[strings.ToLower(filepath.Ext(p))] {
			picked = p
		}
	}
	if picked == "" {
		return "", eris.Errorf("zip: no csv, xlsx or shp entry in %s", zipPath)
	}
	return picked, nil
}

func extractEntry(f *zip.File, destDir string) (string, error) {
	dest := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(dest), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}
	return dest, nil
}
