// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const fileSuffix = ".gob.gz"

// Store keeps versioned snapshots in a directory as {name}_v{version}.gob.gz.
// It is safe for concurrent use.
type Store struct {
	baseDir string
	mu      sync.RWMutex

	// latest version per name
	versions map[string]int
}

// NewStore creates a store rooted at baseDir, creating the directory if needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	s := &Store{
		baseDir:  baseDir,
		versions: make(map[string]int),
	}

	all, err := s.scan()
	if err != nil {
		return nil, fmt.Errorf("scan existing snapshots: %w", err)
	}
	for name, versions := range all {
		s.versions[name] = slices.Max(versions)
	}

	return s, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.baseDir
}

// Save writes data as the next version of name and returns the stored metadata.
//
//nolint:gocritic // meta passed by value is acceptable for this write operation
func (s *Store) Save(ctx context.Context, name string, data interface{}, meta Metadata) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return meta, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.versions[name] + 1
	meta.Name = name
	meta.Version = version

	stored, err := WriteFile(s.path(name, version), data, meta)
	if err != nil {
		return stored, err
	}

	s.versions[name] = version
	return stored, nil
}

// Load reads version of name into target. Version 0 selects the latest.
func (s *Store) Load(ctx context.Context, name string, version int, target interface{}) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		latest, ok := s.versions[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		version = latest
	}

	return ReadFile(s.path(name, version), target)
}

// Versions returns the metadata of every stored version of name, newest
// first. Unreadable files are skipped.
func (s *Store) Versions(ctx context.Context, name string) ([]Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.scan()
	if err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}

	versions := all[name]
	slices.Sort(versions)
	slices.Reverse(versions)

	out := make([]Metadata, 0, len(versions))
	for _, v := range versions {
		meta, err := ReadMetadata(s.path(name, v))
		if err != nil {
			continue
		}
		out = append(out, *meta)
	}
	return out, nil
}

// Prune removes all but the newest keep versions of name.
func (s *Store) Prune(ctx context.Context, name string, keep int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if keep < 1 {
		keep = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.scan()
	if err != nil {
		return 0, fmt.Errorf("scan snapshots: %w", err)
	}

	versions := all[name]
	slices.Sort(versions)
	slices.Reverse(versions)

	removed := 0
	for i := keep; i < len(versions); i++ {
		if err := os.Remove(s.path(name, versions[i])); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove snapshot v%d: %w", versions[i], err)
		}
		removed++
	}
	return removed, nil
}

// scan lists every stored version per name. Callers hold mu or own s exclusively.
func (s *Store) scan() (map[string][]int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, version, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}
		out[name] = append(out[name], version)
	}
	return out, nil
}

// parseFilename splits "course_index_v12.gob.gz" into ("course_index", 12).
func parseFilename(filename string) (string, int, bool) {
	base, ok := strings.CutSuffix(filename, fileSuffix)
	if !ok {
		return "", 0, false
	}
	idx := strings.LastIndex(base, "_v")
	if idx <= 0 {
		return "", 0, false
	}
	version, err := strconv.Atoi(base[idx+2:])
	if err != nil || version < 1 {
		return "", 0, false
	}
	return base[:idx], version, true
}

func (s *Store) path(name string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d%s", name, version, fileSuffix))
}
