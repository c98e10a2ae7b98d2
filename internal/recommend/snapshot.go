// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package recommend

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/coursematch/internal/models"
	"github.com/tomtom215/coursematch/internal/recommend/storage"
)

// SnapshotName is the store name under which index snapshots are saved.
const SnapshotName = "course_index"

// Snapshot is the persisted form of an Index.
type Snapshot struct {
	Generation    string
	BuiltAt       time.Time
	BuildDuration time.Duration
	ModelID       string
	Dimensions    int
	Courses       []models.Course
	Matrix        []float32
}

// Snapshot captures the index for persistence.
func (ix *Index) Snapshot(modelID string) *Snapshot {
	if ix == nil {
		return nil
	}
	return &Snapshot{
		Generation:    ix.generation,
		BuiltAt:       ix.builtAt,
		BuildDuration: ix.buildDuration,
		ModelID:       modelID,
		Dimensions:    ix.dims,
		Courses:       ix.courses,
		Matrix:        ix.matrix,
	}
}

// metadata describes the snapshot for the storage envelope.
func (s *Snapshot) metadata() storage.Metadata {
	return storage.Metadata{
		Generation:      s.Generation,
		ModelID:         s.ModelID,
		Dimensions:      s.Dimensions,
		ItemCount:       len(s.Courses),
		BuiltAt:         s.BuiltAt,
		BuildDurationMS: s.BuildDuration.Milliseconds(),
	}
}

// IndexFromSnapshot rebuilds an Index without re-encoding. dims is the
// width the current encoder produces; a different stored width fails with
// ErrDimensionMismatch. Pass dims <= 0 to skip the check.
func IndexFromSnapshot(s *Snapshot, dims int) (*Index, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: empty snapshot", ErrPersistence)
	}
	if dims > 0 && s.Dimensions != dims {
		return nil, fmt.Errorf("%w: snapshot has %d, encoder produces %d", ErrDimensionMismatch, s.Dimensions, dims)
	}
	if len(s.Matrix) != len(s.Courses)*s.Dimensions {
		return nil, fmt.Errorf("%w: matrix has %d values for %d courses of width %d",
			ErrPersistence, len(s.Matrix), len(s.Courses), s.Dimensions)
	}

	ix := &Index{
		generation:    s.Generation,
		builtAt:       s.BuiltAt,
		buildDuration: s.BuildDuration,
		dims:          s.Dimensions,
		courses:       make([]models.Course, len(s.Courses)),
		matrix:        append([]float32(nil), s.Matrix...),
		norms:         make([]float64, len(s.Courses)),
		positions:     make(map[string]int, len(s.Courses)),
	}
	for i := range s.Courses {
		c := s.Courses[i].WithDefaults()
		if _, dup := ix.positions[c.ID]; dup || c.ID == "" {
			return nil, fmt.Errorf("%w: invalid or duplicate course id %q", ErrPersistence, c.ID)
		}
		ix.courses[i] = c
		ix.positions[c.ID] = i
		ix.norms[i] = norm(ix.row(i))
	}
	return ix, nil
}

// SaveIndex writes ix to a single snapshot file at path.
func SaveIndex(path string, ix *Index, modelID string) error {
	if ix == nil {
		return ErrUntrained
	}
	snap := ix.Snapshot(modelID)
	if _, err := storage.WriteFile(path, snap, snap.metadata()); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// LoadIndex restores the snapshot file at path, checking its width against dims.
func LoadIndex(path string, dims int) (*Index, error) {
	var snap Snapshot
	if _, err := storage.ReadFile(path, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return IndexFromSnapshot(&snap, dims)
}

// IsNotFound reports whether err means no snapshot was stored.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
