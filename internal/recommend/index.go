// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package recommend

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/coursematch/internal/models"
)

// Encoder maps a batch of texts to vectors of Dimensions() width.
// Implementations live in package embedding.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// CourseText composes the text embedded for a course: description, name,
// level, then categories.
//
//nolint:gocritic // Course is small and read-only here
func CourseText(c models.Course) string {
	parts := []string{c.Description, c.Name, c.Level, strings.Join(c.Categories, " ")}
	return strings.Join(parts, " ")
}

// Index is an immutable snapshot of courses and their embeddings.
// Row i of the matrix belongs to courses[i]. A nil *Index is a valid,
// untrained index on which every query returns an empty result.
type Index struct {
	generation    string
	builtAt       time.Time
	buildDuration time.Duration
	dims          int

	courses   []models.Course
	matrix    []float32 // len(courses) rows of dims values, row-major
	norms     []float64
	positions map[string]int
}

// Fit encodes courses in one batch and builds a new Index.
//
// Defaults are applied to every course. Records without an id are skipped
// and only the first occurrence of a duplicated id is kept. An empty input
// yields a trained index with no rows.
func Fit(ctx context.Context, enc Encoder, courses []models.Course) (*Index, error) {
	records := make([]models.Course, 0, len(courses))
	seen := make(map[string]struct{}, len(courses))
	for i := range courses {
		c := courses[i]
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		records = append(records, c.WithDefaults())
	}

	dims := enc.Dimensions()
	if len(records) == 0 {
		return newIndex(records, nil, dims), nil
	}

	texts := make([]string, len(records))
	for i := range records {
		texts[i] = CourseText(records[i])
	}

	vectors, err := enc.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("%w: encoder returned %d vectors for %d texts", ErrEncoding, len(vectors), len(records))
	}
	if dims <= 0 {
		dims = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrEncoding, i, len(v), dims)
		}
	}

	return newIndex(records, vectors, dims), nil
}

// newIndex copies vectors into a contiguous matrix. It assumes every row is dims wide.
func newIndex(records []models.Course, vectors [][]float32, dims int) *Index {
	ix := &Index{
		generation: uuid.New().String(),
		builtAt:    time.Now().UTC(),
		dims:       dims,
		courses:    records,
		matrix:     make([]float32, len(vectors)*dims),
		norms:      make([]float64, len(vectors)),
		positions:  make(map[string]int, len(records)),
	}
	for i, v := range vectors {
		row := ix.matrix[i*dims : (i+1)*dims]
		copy(row, v)
		ix.norms[i] = norm(row)
	}
	for i := range records {
		ix.positions[records[i].ID] = i
	}
	return ix
}

// Len returns the number of indexed courses.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.courses)
}

// Dimensions returns the embedding width.
func (ix *Index) Dimensions() int {
	if ix == nil {
		return 0
	}
	return ix.dims
}

// Generation returns the unique id assigned when the index was built.
func (ix *Index) Generation() string {
	if ix == nil {
		return ""
	}
	return ix.generation
}

// BuiltAt returns when the index was built.
func (ix *Index) BuiltAt() time.Time {
	if ix == nil {
		return time.Time{}
	}
	return ix.builtAt
}

// Contains reports whether id is indexed.
func (ix *Index) Contains(id string) bool {
	if ix == nil {
		return false
	}
	_, ok := ix.positions[id]
	return ok
}

// Course returns the indexed record for id.
func (ix *Index) Course(id string) (models.Course, bool) {
	if ix == nil {
		return models.Course{}, false
	}
	pos, ok := ix.positions[id]
	if !ok {
		return models.Course{}, false
	}
	return ix.courses[pos], true
}

// IDs returns the indexed course ids in index order.
func (ix *Index) IDs() []string {
	ids := make([]string, 0, ix.Len())
	if ix == nil {
		return ids
	}
	for i := range ix.courses {
		ids = append(ids, ix.courses[i].ID)
	}
	return ids
}

// Vector returns a copy of the embedding for id.
func (ix *Index) Vector(id string) ([]float32, bool) {
	if ix == nil {
		return nil, false
	}
	pos, ok := ix.positions[id]
	if !ok {
		return nil, false
	}
	return append([]float32(nil), ix.row(pos)...), true
}

func (ix *Index) row(pos int) []float32 {
	return ix.matrix[pos*ix.dims : (pos+1)*ix.dims]
}

// Profile averages the embeddings of the enrolled ids that are indexed.
// Unknown and repeated ids are ignored. It returns false when no id matches.
func (ix *Index) Profile(enrolled []string) ([]float32, bool) {
	if ix == nil || len(enrolled) == 0 {
		return nil, false
	}

	matched := make([]int, 0, len(enrolled))
	for _, id := range enrolled {
		if pos, ok := ix.positions[id]; ok {
			matched = append(matched, pos)
		}
	}
	if len(matched) == 0 {
		return nil, false
	}
	// Sum in index order so the result does not depend on input order.
	slices.Sort(matched)
	matched = slices.Compact(matched)

	sum := make([]float64, ix.dims)
	for _, pos := range matched {
		for j, v := range ix.row(pos) {
			sum[j] += float64(v)
		}
	}

	profile := make([]float32, ix.dims)
	n := float64(len(matched))
	for j := range sum {
		profile[j] = float32(sum[j] / n)
	}
	return profile, true
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
