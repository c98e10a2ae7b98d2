// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package recommend

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/coursematch/internal/models"
)

// stubEncoder maps a text to a fixed vector keyed by its first word, which
// is the course description in CourseText.
type stubEncoder struct {
	dims    int
	vectors map[string][]float32

	mu    sync.Mutex
	calls int
	err   error
}

func newStubEncoder(dims int, vectors map[string][]float32) *stubEncoder {
	return &stubEncoder{dims: dims, vectors: vectors}
}

func (s *stubEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		key := strings.Fields(text)[0]
		v, ok := s.vectors[key]
		if !ok {
			return nil, errors.New("no stub vector for " + key)
		}
		out[i] = append([]float32(nil), v...)
	}
	return out, nil
}

func (s *stubEncoder) Dimensions() int { return s.dims }

func (s *stubEncoder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// course builds a record whose description equals its id so the stub
// encoder can find its vector.
func course(id string) models.Course {
	return models.Course{ID: id, Name: "Course " + id, Description: id}
}

func courses(ids ...string) []models.Course {
	out := make([]models.Course, len(ids))
	for i, id := range ids {
		out[i] = course(id)
	}
	return out
}

// abcEncoder returns the A/B/C fixture: A=[1,0], B=[0.9,0.1], C=[0,1].
func abcEncoder() *stubEncoder {
	return newStubEncoder(2, map[string][]float32{
		"A": {1, 0},
		"B": {0.9, 0.1},
		"C": {0, 1},
		"D": {1, 1},
		"E": {-1, 0},
		"Z": {0, 0},
	})
}

func fitABC(t *testing.T) *Index {
	t.Helper()
	ix, err := Fit(context.Background(), abcEncoder(), courses("A", "B", "C"))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	return ix
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type staticSource struct {
	mu      sync.Mutex
	courses []models.Course
	err     error
}

func (s *staticSource) Courses(context.Context) ([]models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.Course(nil), s.courses...), nil
}

func (s *staticSource) set(c []models.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses = c
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
