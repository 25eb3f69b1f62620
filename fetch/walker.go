package fetch

import (
	"io/fs"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Walker enumerates ingestable files under a directory, filtered by
// doublestar glob patterns relative to the walked root.
type Walker struct {
	includes []string
	excludes []string
}

// NewWalker builds a walker. Empty includes match everything.
func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{includes: includes, excludes: excludes}
}

// Walk returns the paths under root that match the include patterns,
// skip the exclude patterns, and have a supported extension.
func (w *Walker) Walk(root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	fetcher := NewFileFetcher()
	var files []string

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && w.matches(w.excludes, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !fetcher.Supported(path) {
			return nil
		}
		if w.matches(w.includes, rel) && !w.matches(w.excludes, rel) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func (w *Walker) matches(patterns []string, path string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}
