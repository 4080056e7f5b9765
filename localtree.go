package ftp

import (
	"os"
	"path/filepath"
)

// LocalTree enumerates the local side of UploadDirectory.
type LocalTree interface {
	// Files returns the paths of the regular files directly inside dir whose
	// base name matches mask (filepath.Match syntax).
	Files(dir, mask string) ([]string, error)

	// Dirs returns the paths of the immediate subdirectories of dir.
	Dirs(dir string) ([]string, error)
}

// OSTree is the LocalTree backed by the local filesystem. Entries are
// returned in lexical order. The masks "", "*" and "*.*" match every file.
type OSTree struct{}

// Files implements LocalTree.
func (OSTree) Files(dir, mask string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	matchAll := mask == "" || mask == "*" || mask == "*.*"

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !matchAll {
			ok, err := filepath.Match(mask, e.Name())
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// Dirs implements LocalTree.
func (OSTree) Dirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(dir, e.Name()))
		}
	}
	return dirs, nil
}
