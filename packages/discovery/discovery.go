// Package discovery finds tkrun test documents on disk. It only lists
// files; loading and running them is the driver's job.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Marker is the stem segment that makes a YAML file a test document:
// users.tk.yaml, checkout.smoke.tk.yml.
const Marker = ".tk"

var ErrNoTestFiles = errors.New("no test files found")

var skipDirs = map[string]bool{
	"vendor":       true,
	"node_modules": true,
}

// IsTestFile reports whether path names a test document.
func IsTestFile(path string) bool {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	if ext != ".yaml" && ext != ".yml" {
		return false
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.HasSuffix(stem, Marker) || strings.Contains(stem, Marker+".")
}

// Find walks root and returns every test document below it, sorted.
// Hidden directories, vendor and node_modules are not entered. A root that
// is itself a file is returned as is when it is a test document.
func Find(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if IsTestFile(root) {
			return []string{root}, nil
		}
		return nil, fmt.Errorf("%s: %w", root, ErrNoTestFiles)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || skipDirs[d.Name()]) {
				return filepath.SkipDir
			}
			return nil
		}
		if IsTestFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", root, ErrNoTestFiles)
	}

	sort.Strings(files)
	return files, nil
}

// FindAll runs Find over several roots and drops duplicates.
func FindAll(roots []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, root := range roots {
		found, err := Find(root)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files, nil
}

// Dirs returns root and every directory below it that Find would enter.
// The watcher subscribes to these.
func Dirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (strings.HasPrefix(d.Name(), ".") || skipDirs[d.Name()]) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}
