package util

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ReadFilesFromDir reads every regular file in dir, sorted lexicographically
// by name. The returned order is significant: it is the leaf order of the
// merkle tree, so uploader and verifier must enumerate the same way.
// Subdirectories are skipped.
func ReadFilesFromDir(dir string) ([]string, [][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, nil, fmt.Errorf("no regular files found in %s", dir)
	}

	contents := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read file %s: %w", name, err)
		}
		contents = append(contents, data)
	}

	return names, contents, nil
}

// WriteFile writes data to dir/name, creating dir if it does not exist.
func WriteFile(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
