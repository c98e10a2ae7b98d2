// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

// Package storage persists trained index snapshots.
//
// A snapshot file is a gob-encoded envelope holding the metadata and the
// gzip-compressed gob encoding of the payload. The SHA-256 checksum of the
// uncompressed payload is stored in the metadata and verified on read.
// Files are written to a temporary name and renamed into place, so a reader
// never observes a partially written snapshot.
//
// The byte layout is private to this package.
package storage

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrNotFound is returned when no snapshot exists for a name or path.
	ErrNotFound = errors.New("snapshot not found")

	// ErrChecksum is returned when a snapshot payload fails verification.
	ErrChecksum = errors.New("snapshot checksum mismatch")
)

// Metadata describes a stored snapshot.
type Metadata struct {
	// Name is the logical snapshot name (e.g. "course_index").
	Name string `json:"name"`

	// Version increases with each save under the same name.
	Version int `json:"version"`

	// Generation identifies the index generation the snapshot was taken from.
	Generation string `json:"generation"`

	// ModelID identifies the encoder that produced the embeddings.
	ModelID string `json:"model_id"`

	// Dimensions is the embedding width.
	Dimensions int `json:"dimensions"`

	// ItemCount is the number of indexed courses.
	ItemCount int `json:"item_count"`

	// BuiltAt is when the index was built.
	BuiltAt time.Time `json:"built_at"`

	// SavedAt is set when the snapshot is written.
	SavedAt time.Time `json:"saved_at"`

	// Checksum is the SHA-256 of the uncompressed payload.
	Checksum string `json:"checksum"`

	// SizeBytes is the compressed payload size.
	SizeBytes int64 `json:"size_bytes"`

	// BuildDurationMS is how long the index build took.
	BuildDurationMS int64 `json:"build_duration_ms"`
}

// storedFile is the on-disk envelope.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

// WriteFile encodes data and writes it with meta to path.
// The returned metadata has Checksum, SizeBytes and SavedAt filled in.
//
//nolint:gocritic // meta passed by value is acceptable for this write operation
func WriteFile(path string, data interface{}, meta Metadata) (Metadata, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(data); err != nil {
		return meta, fmt.Errorf("encode snapshot: %w", err)
	}

	hash := sha256.Sum256(raw.Bytes())
	meta.Checksum = hex.EncodeToString(hash[:])

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return meta, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return meta, fmt.Errorf("finalize compression: %w", err)
	}

	meta.SizeBytes = int64(compressed.Len())
	meta.SavedAt = time.Now().UTC()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return meta, fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return meta, fmt.Errorf("create snapshot file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() //nolint:errcheck // no-op after a successful rename

	if err := gob.NewEncoder(tmp).Encode(storedFile{Metadata: meta, CompressedData: compressed.Bytes()}); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		return meta, fmt.Errorf("write snapshot file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // sync error takes precedence
		return meta, fmt.Errorf("sync snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return meta, fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return meta, fmt.Errorf("rename snapshot file: %w", err)
	}

	return meta, nil
}

// ReadFile reads the snapshot at path into target and returns its metadata.
func ReadFile(path string, target interface{}) (*Metadata, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // read-only file

	sf, err := readEnvelope(f)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // in-memory reader

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(raw)
	if got := hex.EncodeToString(hash[:]); got != sf.Metadata.Checksum {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksum, sf.Metadata.Checksum, got)
	}

	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(target); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	return &sf.Metadata, nil
}

// ReadMetadata returns only the metadata of the snapshot at path.
func ReadMetadata(path string) (*Metadata, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // read-only file

	sf, err := readEnvelope(f)
	if err != nil {
		return nil, err
	}
	return &sf.Metadata, nil
}

func readEnvelope(r io.Reader) (*storedFile, error) {
	var sf storedFile
	if err := gob.NewDecoder(r).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	return &sf, nil
}
