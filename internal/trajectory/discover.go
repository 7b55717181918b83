package trajectory

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is a trajectory file and the configuration it belongs to.
type File struct {
	Path string
	Key  Key
}

// NotFoundError is returned when a configuration resolves to zero or to
// more than one trajectory file.
type NotFoundError struct {
	Root       string
	Key        Key
	Candidates []string
}

func (e *NotFoundError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("no trajectory file for %s under %s", e.Key.Name(), e.Root)
	}
	return fmt.Sprintf("ambiguous trajectory file for %s under %s: %s",
		e.Key.Name(), e.Root, strings.Join(e.Candidates, ", "))
}

// ResolveRoot returns root, or root with a trailing space when only that
// variant exists on disk.
func ResolveRoot(root string) (string, error) {
	if info, err := os.Stat(root); err == nil {
		if !info.IsDir() {
			return "", fmt.Errorf("trajectory root %s is not a directory", root)
		}
		return root, nil
	}
	alt := strings.TrimRight(root, `/\`) + " "
	if info, err := os.Stat(alt); err == nil && info.IsDir() {
		return alt, nil
	}
	return "", fmt.Errorf("trajectory root %s: %w", root, os.ErrNotExist)
}

// Discover walks root and returns every trajectory file whose configuration
// can be derived from its path, sorted by path. Files under result or
// summary directories are ignored.
func Discover(root string) ([]File, error) {
	root, err := ResolveRoot(root)
	if err != nil {
		return nil, err
	}
	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsTrajectoryFile(path) {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		lower := strings.ToLower(rel)
		if strings.Contains(lower, "results") || strings.Contains(lower, "summary") {
			return nil
		}
		key, ok := KeyFromPath(path)
		if !ok {
			return nil
		}
		files = append(files, File{Path: path, Key: key})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Locate returns the single trajectory file for key.
func Locate(root string, key Key) (string, error) {
	files, err := Discover(root)
	if err != nil {
		return "", err
	}
	var candidates []string
	for _, f := range files {
		if f.Key == key {
			candidates = append(candidates, f.Path)
		}
	}
	if len(candidates) != 1 {
		return "", &NotFoundError{Root: root, Key: key, Candidates: candidates}
	}
	return candidates[0], nil
}

// Keys returns the distinct configurations present under root, optionally
// restricted to one model size, ordered by name.
func Keys(files []File, modelSize string) []Key {
	modelSize = NormalizeModelSize(modelSize)
	seen := map[Key]bool{}
	var keys []Key
	for _, f := range files {
		if modelSize != "" && f.Key.ModelSize != modelSize {
			continue
		}
		if !seen[f.Key] {
			seen[f.Key] = true
			keys = append(keys, f.Key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name() < keys[j].Name() })
	return keys
}

func baseName(path string) string { return filepath.Base(path) }

func dirName(path string) string { return filepath.Dir(path) }
