// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/coursematch/internal/catalog"
	"github.com/tomtom215/coursematch/internal/events"
	"github.com/tomtom215/coursematch/internal/models"
	"github.com/tomtom215/coursematch/internal/recommend"
)

// keywordEncoder embeds a text as counts of three keywords.
type keywordEncoder struct{}

var keywords = []string{"go", "python", "design"}

func (keywordEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(keywords))
		for _, word := range strings.Fields(strings.ToLower(text)) {
			for k, kw := range keywords {
				if word == kw {
					vec[k]++
				}
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (keywordEncoder) Dimensions() int { return len(keywords) }

// fakeCatalog is an in-memory Catalog.
type fakeCatalog struct {
	mu          sync.Mutex
	courses     []models.Course
	enrollments map[string][]string
	err         error
	pingErr     error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		courses: []models.Course{
			{ID: "c1", Name: "Concurrency", Description: "go concurrency"},
			{ID: "c2", Name: "Bindings", Description: "go python"},
			{ID: "c3", Name: "Data", Description: "python data"},
			{ID: "c4", Name: "Basics", Description: "design basics"},
		},
		enrollments: map[string][]string{
			"l1": {"c1"},
			"l2": {"gone"},
		},
	}
}

func (f *fakeCatalog) Ping(context.Context) error { return f.pingErr }

func (f *fakeCatalog) EnrolledCourseIDs(_ context.Context, learnerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]string{}, f.enrollments[learnerID]...), nil
}

func (f *fakeCatalog) CoursesByID(_ context.Context, ids []string) ([]models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Course{}
	for _, id := range ids {
		for _, c := range f.courses {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) UpsertCourses(_ context.Context, courses []models.Course) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.courses = append(f.courses, courses...)
	return len(courses), nil
}

func (f *fakeCatalog) AddEnrollments(_ context.Context, enrollments []models.Enrollment) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	for _, e := range enrollments {
		f.enrollments[e.LearnerID] = append(f.enrollments[e.LearnerID], e.CourseID)
	}
	return len(enrollments), nil
}

func (f *fakeCatalog) Stats(context.Context) (catalog.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return catalog.Stats{}, f.err
	}
	n := 0
	for _, ids := range f.enrollments {
		n += len(ids)
	}
	return catalog.Stats{Courses: len(f.courses), Enrollments: n, Learners: len(f.enrollments)}, nil
}

// refresherFunc adapts a function to Refresher.
type refresherFunc func(ctx context.Context, trigger string) error

func (f refresherFunc) Refresh(ctx context.Context, trigger string) error { return f(ctx, trigger) }

// recordingPublisher captures published changes.
type recordingPublisher struct {
	mu      sync.Mutex
	changes []events.CatalogChanged
	err     error
}

func (p *recordingPublisher) PublishCatalogChanged(_ context.Context, change events.CatalogChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return p.err
}

func (p *recordingPublisher) published() []events.CatalogChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.CatalogChanged(nil), p.changes...)
}

// testServer holds a router over a trained engine and fakes.
type testServer struct {
	handler   http.Handler
	engine    *recommend.Engine
	catalog   *fakeCatalog
	publisher *recordingPublisher
}

func newTestServer(t *testing.T, trained bool, refresher Refresher) *testServer {
	t.Helper()

	engine, err := recommend.NewEngine(recommend.DefaultConfig(), keywordEncoder{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	cat := newFakeCatalog()
	engine.SetSource(courseSource{cat})
	if trained {
		if err := engine.Fit(context.Background(), cat.courses); err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
	}
	if refresher == nil {
		refresher = refresherFunc(func(ctx context.Context, _ string) error {
			return engine.Refresh(ctx)
		})
	}

	pub := &recordingPublisher{}
	cfg := DefaultRouterConfig()
	cfg.RateLimitDisabled = true
	router := NewRouter(NewHandler(cat, engine, refresher, pub), cfg)

	return &testServer{handler: router.SetupChi(), engine: engine, catalog: cat, publisher: pub}
}

// courseSource exposes the fake catalog as a recommend.CourseSource.
type courseSource struct{ cat *fakeCatalog }

func (s courseSource) Courses(context.Context) ([]models.Course, error) {
	s.cat.mu.Lock()
	defer s.cat.mu.Unlock()
	if s.cat.err != nil {
		return nil, s.cat.err
	}
	return append([]models.Course(nil), s.cat.courses...), nil
}

// envelope mirrors models.APIResponse with raw data.
type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

func (s *testServer) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON body %q: %v", method, target, rec.Body.String(), err)
	}
	return rec, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("failed to decode data %s: %v", env.Data, err)
	}
}

func courseIDs(details []models.CourseDetails) []string {
	ids := make([]string, len(details))
	for i, d := range details {
		ids[i] = d.CourseID
	}
	return ids
}

var errCatalogDown = errors.New("catalog down")
