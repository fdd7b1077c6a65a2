// Package discover finds convertible files under a directory.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nicholasgasior/docconv-go/internal/fsutil"
)

// Discover walks dir and returns the files whose extension is in exts,
// sorted lexicographically. Subdirectories are visited only when recursive
// is set. Directories listed in skip (typically the output directory) are
// pruned, and in-progress temp artifacts are never returned.
func Discover(dir string, exts []string, recursive bool, skip ...string) ([]string, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		want[e] = true
	}
	pruned := make(map[string]bool, len(skip))
	for _, s := range skip {
		if s == "" {
			continue
		}
		pruned[absPath(s)] = true
	}
	root := absPath(dir)

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			abs := absPath(path)
			if abs == root {
				return nil
			}
			if !recursive || pruned[abs] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || fsutil.IsTemp(d.Name()) {
			return nil
		}
		if want[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
