package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/titanous/json5"
)

// LoadSkipList reads the ids of huts known not to be in the reservation system.
// A missing file is an empty list.
func LoadSkipList(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read skip list: %w", err)
	}
	var ids []int
	if err := json5.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse skip list %s: %w", path, err)
	}
	return ids, nil
}

// SaveSkipList writes the ids sorted, replacing the file atomically
func SaveSkipList(path string, ids []int) error {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	if sorted == nil {
		sorted = []int{}
	}

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("encode skip list: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create skip list directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".not_in_system-*.json")
	if err != nil {
		return fmt.Errorf("create temp skip list: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write skip list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close skip list: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace skip list: %w", err)
	}
	return nil
}
