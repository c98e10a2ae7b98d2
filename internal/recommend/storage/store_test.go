// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package storage

import (
	"context"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testPayload struct {
	IDs    []string
	Matrix [][]float32
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name: "creates directory if not exists",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nested", "dir")
			},
		},
		{
			name: "uses existing directory",
			setup: func(t *testing.T) string {
				return t.TempDir()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setup(t)
			store, err := NewStore(dir)
			if err != nil {
				t.Fatalf("NewStore() error = %v", err)
			}
			if store.Dir() != dir {
				t.Errorf("Dir() = %q, want %q", store.Dir(), dir)
			}
		})
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	data := testPayload{
		IDs:    []string{"a", "b"},
		Matrix: [][]float32{{1, 0}, {0.5, 0.5}},
	}
	meta := Metadata{Generation: "gen-1", Dimensions: 2, ItemCount: 2, BuiltAt: time.Now()}

	saved, err := store.Save(ctx, "course_index", data, meta)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.Version != 1 {
		t.Errorf("Version = %d, want 1", saved.Version)
	}
	if saved.Checksum == "" {
		t.Error("Checksum is empty")
	}
	if saved.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want > 0", saved.SizeBytes)
	}

	var got testPayload
	loaded, err := store.Load(ctx, "course_index", 0, &got)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Generation != "gen-1" || loaded.Dimensions != 2 {
		t.Errorf("metadata = %+v, want generation gen-1 dims 2", loaded)
	}
	if len(got.IDs) != 2 || got.IDs[1] != "b" {
		t.Errorf("IDs = %v, want [a b]", got.IDs)
	}
	if got.Matrix[1][0] != 0.5 {
		t.Errorf("Matrix[1][0] = %v, want 0.5", got.Matrix[1][0])
	}
}

func TestStore_VersionsAndPrune(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := store.Save(ctx, "course_index", testPayload{IDs: []string{"x"}}, Metadata{}); err != nil {
			t.Fatalf("Save() #%d error = %v", i, err)
		}
	}
	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	meta, err := reopened.Save(ctx, "course_index", testPayload{}, Metadata{})
	if err != nil {
		t.Fatalf("Save() after reopen error = %v", err)
	}
	if meta.Version != 5 {
		t.Errorf("Save() after reopen version = %d, want 5", meta.Version)
	}

	removed, err := store.Prune(ctx, "course_index", 2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Prune() removed = %d, want 3", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "course_index_v1.gob.gz")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("v1 still present after prune: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "course_index_v4.gob.gz")); err != nil {
		t.Errorf("v4 missing after prune: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "course_index_v3.gob.gz")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("v3 still present after prune: %v", err)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	var got testPayload
	if _, err := store.Load(context.Background(), "nothing", 0, &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Versions(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := store.Save(ctx, "idx", testPayload{}, Metadata{ItemCount: i, BuildDurationMS: int64(10 * i)}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if _, err := store.Save(ctx, "other", testPayload{}, Metadata{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	versions, err := store.Versions(ctx, "idx")
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("len(Versions()) = %d, want 3", len(versions))
	}
	if versions[0].Version != 3 || versions[2].Version != 1 {
		t.Errorf("Versions() order = v%d..v%d, want v3..v1", versions[0].Version, versions[2].Version)
	}
	if versions[0].ItemCount != 3 || versions[0].BuildDurationMS != 30 {
		t.Errorf("Versions()[0] = %+v", versions[0])
	}

	none, err := store.Versions(ctx, "missing")
	if err != nil || len(none) != 0 {
		t.Errorf("Versions(missing) = %v, %v, want empty", none, err)
	}
}

func TestReadFile_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snap.gob.gz")
	if _, err := WriteFile(path, testPayload{IDs: []string{"a"}}, Metadata{}); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	sf, err := readEnvelope(f)
	_ = f.Close()
	if err != nil {
		t.Fatalf("readEnvelope() error = %v", err)
	}

	sf.Metadata.Checksum = "deadbeef"
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := gob.NewEncoder(out).Encode(sf); err != nil {
		t.Fatal(err)
	}
	_ = out.Close()

	var payload testPayload
	if _, err := ReadFile(path, &payload); !errors.Is(err, ErrChecksum) {
		t.Errorf("ReadFile() error = %v, want ErrChecksum", err)
	}
}

func TestReadFile_Missing(t *testing.T) {
	t.Parallel()

	var payload testPayload
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.gob.gz"), &payload); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadFile() error = %v, want ErrNotFound", err)
	}
}

func TestParseFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		name    string
		version int
		ok      bool
	}{
		{"course_index_v12.gob.gz", "course_index", 12, true},
		{"a_v1.gob.gz", "a", 1, true},
		{"course_index_v1.gob.gz.tmp-123", "", 0, false},
		{"_v1.gob.gz", "", 0, false},
		{"course_index_vx.gob.gz", "", 0, false},
		{"readme.txt", "", 0, false},
	}

	for _, tt := range tests {
		name, version, ok := parseFilename(tt.in)
		if name != tt.name || version != tt.version || ok != tt.ok {
			t.Errorf("parseFilename(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tt.in, name, version, ok, tt.name, tt.version, tt.ok)
		}
	}
}
