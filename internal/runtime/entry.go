package runtime

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// extractBundle unpacks the zip archive at bundlePath into destDir.
// Entries escaping destDir are rejected.
func extractBundle(bundlePath, destDir string) error {
	zr, err := zip.OpenReader(bundlePath)
	if err != nil {
		return fmt.Errorf("opening bundle %s: %w", bundlePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(destDir, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("bundle entry %q escapes extraction dir", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating dir %s: %w", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating dir for %s: %w", target, err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening bundle entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return nil
}

// findServerEntry locates the game server script under dir. The explicit
// entry from the game record wins when present; otherwise the first file
// whose name contains "server" (case-insensitive) with the script suffix is
// taken.
func findServerEntry(dir, explicit, suffix string) (string, error) {
	var found string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return err
		}
		name := d.Name()
		if explicit != "" {
			if name == filepath.Base(explicit) || strings.HasSuffix(path, explicit) {
				found = path
			}
			return nil
		}
		if strings.Contains(strings.ToLower(name), "server") && strings.HasSuffix(name, suffix) {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", dir, err)
	}

	if found == "" && explicit != "" {
		// Declared entry is missing from the archive; fall back to the
		// filename heuristic before giving up.
		return findServerEntry(dir, "", suffix)
	}
	if found == "" {
		return "", fmt.Errorf("no server entry found under %s", dir)
	}
	return found, nil
}
