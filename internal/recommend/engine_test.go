// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package recommend

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/coursematch/internal/models"
	"github.com/tomtom215/coursematch/internal/recommend/storage"
)

func newTestEngine(t *testing.T, enc Encoder) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), enc, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(nil, abcEncoder(), testLogger()); err != nil {
		t.Errorf("NewEngine(nil config) error = %v", err)
	}
	if _, err := NewEngine(nil, nil, testLogger()); err == nil {
		t.Error("NewEngine(nil encoder) error = nil, want error")
	}
	bad := DefaultConfig()
	bad.DefaultTopN = 0
	if _, err := NewEngine(bad, abcEncoder(), testLogger()); err == nil {
		t.Error("NewEngine(invalid config) error = nil, want error")
	}
}

func TestEngine_UntrainedQueries(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, abcEncoder())
	if e.IsTrained() {
		t.Error("IsTrained() = true before fit")
	}
	if got := e.Recommend([]string{"A"}, 5); len(got) != 0 {
		t.Errorf("Recommend() = %v, want []", got)
	}
	if got := e.SimilarTo("A", 5); len(got) != 0 {
		t.Errorf("SimilarTo() = %v, want []", got)
	}
	if st := e.Status(); st.Trained || st.Courses != 0 {
		t.Errorf("Status() = %+v, want untrained", st)
	}
}

func TestEngine_FitAndQuery(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, abcEncoder())
	if err := e.Fit(context.Background(), courses("A", "B", "C")); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if got := e.Recommend([]string{"A"}, 2); !equalIDs(got, []string{"B", "C"}) {
		t.Errorf("Recommend([A], 2) = %v, want [B C]", got)
	}
	if got := e.SimilarTo("A", 1); !equalIDs(got, []string{"B"}) {
		t.Errorf("SimilarTo(A, 1) = %v, want [B]", got)
	}
	if got := e.Recommend(nil, 3); len(got) != 0 {
		t.Errorf("Recommend([]) = %v, want []", got)
	}

	st := e.Status()
	if !st.Trained || st.Courses != 3 || st.Dimensions != 2 {
		t.Errorf("Status() = %+v, want trained with 3 courses of width 2", st)
	}
	if st.Queries != 3 {
		t.Errorf("Queries = %d, want 3", st.Queries)
	}
}

func TestEngine_RecommendExcludesEnrolled(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, abcEncoder())
	if err := e.Fit(context.Background(), courses("A", "B", "C", "D")); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	got := e.Recommend([]string{"A", "D"}, 10)
	if !equalIDs(got, []string{"B", "C"}) {
		t.Errorf("Recommend([A D]) = %v, want [B C]", got)
	}
}

func TestEngine_RefreshReplacesIndex(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, abcEncoder())
	src := &staticSource{courses: courses("A", "B", "C")}
	e.SetSource(src)

	ctx := context.Background()
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	firstGen := e.Status().Generation
	if got := e.Recommend([]string{"A"}, 2); !equalIDs(got, []string{"B", "C"}) {
		t.Fatalf("Recommend([A]) = %v, want [B C]", got)
	}

	src.set(courses("D", "E"))
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if got := e.Recommend([]string{"A"}, 2); len(got) != 0 {
		t.Errorf("Recommend([A]) after refresh = %v, want []", got)
	}
	if got := e.SimilarTo("A", 2); len(got) != 0 {
		t.Errorf("SimilarTo(A) after refresh = %v, want []", got)
	}
	if got := e.SimilarTo("D", 2); !equalIDs(got, []string{"E"}) {
		t.Errorf("SimilarTo(D) after refresh = %v, want [E]", got)
	}

	st := e.Status()
	if st.Generation == firstGen {
		t.Error("generation unchanged after refresh")
	}
	if st.Refreshes != 2 {
		t.Errorf("Refreshes = %d, want 2", st.Refreshes)
	}
}

func TestEngine_RefreshErrors(t *testing.T) {
	t.Parallel()

	t.Run("no source", func(t *testing.T) {
		t.Parallel()
		e := newTestEngine(t, abcEncoder())
		if err := e.Refresh(context.Background()); !errors.Is(err, ErrNoSource) {
			t.Errorf("Refresh() error = %v, want ErrNoSource", err)
		}
	})

	t.Run("source failure keeps old index", func(t *testing.T) {
		t.Parallel()
		e := newTestEngine(t, abcEncoder())
		src := &staticSource{courses: courses("A", "B")}
		e.SetSource(src)
		if err := e.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		gen := e.Status().Generation

		src.err = errors.New("db down")
		if err := e.Refresh(context.Background()); err == nil {
			t.Fatal("Refresh() error = nil, want error")
		}
		st := e.Status()
		if st.Generation != gen {
			t.Errorf("Generation = %s, want unchanged %s", st.Generation, gen)
		}
		if st.LastError == "" {
			t.Error("LastError is empty after failed refresh")
		}
	})

	t.Run("encoding failure keeps old index", func(t *testing.T) {
		t.Parallel()
		enc := abcEncoder()
		e := newTestEngine(t, enc)
		if err := e.Fit(context.Background(), courses("A", "B")); err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
		enc.mu.Lock()
		enc.err = errors.New("model crashed")
		enc.mu.Unlock()

		if err := e.Fit(context.Background(), courses("C")); !errors.Is(err, ErrEncoding) {
			t.Errorf("Fit() error = %v, want ErrEncoding", err)
		}
		if got := e.SimilarTo("A", 1); !equalIDs(got, []string{"B"}) {
			t.Errorf("SimilarTo(A) = %v, want [B] from previous index", got)
		}
	})
}

// blockingEncoder holds Encode until released so tests can observe the
// engine mid-refresh.
type blockingEncoder struct {
	*stubEncoder
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.stubEncoder.Encode(ctx, texts)
}

func TestEngine_QueriesDuringRefresh(t *testing.T) {
	t.Parallel()

	stub := abcEncoder()
	e := newTestEngine(t, stub)
	if err := e.Fit(context.Background(), courses("A", "B", "C")); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	blocking := &blockingEncoder{stubEncoder: stub, started: make(chan struct{}), release: make(chan struct{})}
	e.encoder = blocking
	e.SetSource(&staticSource{courses: courses("D", "E")})

	done := make(chan error, 1)
	go func() { done <- e.Refresh(context.Background()) }()

	select {
	case <-blocking.started:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh did not start")
	}

	if !e.Status().Refreshing {
		t.Error("Refreshing = false during refresh")
	}
	if got := e.Recommend([]string{"A"}, 2); !equalIDs(got, []string{"B", "C"}) {
		t.Errorf("Recommend([A]) during refresh = %v, want [B C] from previous index", got)
	}
	if err := e.Refresh(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("concurrent Refresh() error = %v, want ErrRefreshInProgress", err)
	}

	close(blocking.release)
	if err := <-done; err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := e.SimilarTo("D", 1); !equalIDs(got, []string{"E"}) {
		t.Errorf("SimilarTo(D) after refresh = %v, want [E]", got)
	}
}

func TestEngine_ConcurrentReaders(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, abcEncoder())
	src := &staticSource{courses: courses("A", "B", "C")}
	e.SetSource(src)
	if err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				got := e.Recommend([]string{"A"}, 2)
				// Either the ABC generation or the DE generation, never a mix.
				if len(got) != 0 && !equalIDs(got, []string{"B", "C"}) {
					t.Errorf("Recommend([A]) = %v", got)
					return
				}
			}
		}()
	}

	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			src.set(courses("D", "E"))
		} else {
			src.set(courses("A", "B", "C"))
		}
		_ = e.Refresh(context.Background())
	}
	wg.Wait()
}

func TestEngine_SaveAndLoad(t *testing.T) {
	t.Parallel()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	e := newTestEngine(t, abcEncoder())
	e.SetStore(store)
	ctx := context.Background()

	if _, err := e.Save(ctx); !errors.Is(err, ErrUntrained) {
		t.Errorf("Save() untrained error = %v, want ErrUntrained", err)
	}

	if err := e.Fit(ctx, courses("A", "B", "C", "D", "E")); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	meta, err := e.Save(ctx)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if meta.ItemCount != 5 || meta.Dimensions != 2 {
		t.Errorf("Save() metadata = %+v", meta)
	}

	enc := abcEncoder()
	fresh := newTestEngine(t, enc)
	fresh.SetStore(store)
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if enc.callCount() != 0 {
		t.Errorf("encoder called %d times on load, want 0", enc.callCount())
	}

	for _, id := range []string{"A", "B", "C", "D", "E"} {
		if got, want := fresh.SimilarTo(id, 3), e.SimilarTo(id, 3); !equalIDs(got, want) {
			t.Errorf("SimilarTo(%s) after load = %v, want %v", id, got, want)
		}
	}
	for _, enrolled := range [][]string{{"A"}, {"B", "C"}, {"E", "missing"}} {
		if got, want := fresh.Recommend(enrolled, 4), e.Recommend(enrolled, 4); !equalIDs(got, want) {
			t.Errorf("Recommend(%v) after load = %v, want %v", enrolled, got, want)
		}
	}
	if fresh.Status().Generation != e.Status().Generation {
		t.Error("generation not preserved across save/load")
	}
	if got, want := fresh.Active().buildDuration, e.Active().buildDuration; got != want {
		t.Errorf("buildDuration after load = %v, want %v", got, want)
	}
}

func TestSnapshotMetadata_BuildDuration(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{Generation: "g1", BuildDuration: 1500 * time.Millisecond, Courses: courses("A", "B")}
	meta := snap.metadata()
	if meta.BuildDurationMS != 1500 {
		t.Errorf("BuildDurationMS = %d, want 1500", meta.BuildDurationMS)
	}
	if meta.ItemCount != 2 || meta.Generation != "g1" {
		t.Errorf("metadata() = %+v", meta)
	}
}

func TestEngine_LoadDimensionMismatch(t *testing.T) {
	t.Parallel()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	e := newTestEngine(t, abcEncoder())
	e.SetStore(store)
	if err := e.Fit(ctx, courses("A", "B")); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if _, err := e.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	wide := newTestEngine(t, newStubEncoder(3, nil))
	wide.SetStore(store)
	if err := wide.Load(ctx); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Load() error = %v, want ErrDimensionMismatch", err)
	}
	if wide.IsTrained() {
		t.Error("IsTrained() = true after refused load")
	}
}

func TestEngine_LoadErrors(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, abcEncoder())
	if err := e.Load(context.Background()); !errors.Is(err, ErrNoStore) {
		t.Errorf("Load() without store error = %v, want ErrNoStore", err)
	}

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	e.SetStore(store)
	err = e.Load(context.Background())
	if !errors.Is(err, ErrPersistence) || !IsNotFound(err) {
		t.Errorf("Load() empty store error = %v, want ErrPersistence wrapping not found", err)
	}
}

func TestEngine_RefreshPersistsAndPrunes(t *testing.T) {
	t.Parallel()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	cfg := DefaultConfig()
	cfg.KeepSnapshots = 2
	e, err := NewEngine(cfg, abcEncoder(), testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	e.SetStore(store)
	e.SetSource(&staticSource{courses: courses("A", "B", "C")})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := e.Refresh(ctx); err != nil {
			t.Fatalf("Refresh() #%d error = %v", i, err)
		}
	}

	versions, err := store.Versions(ctx, SnapshotName)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(versions) != 2 || versions[0].Version != 4 {
		t.Errorf("Versions() = %+v, want v4 and v3", versions)
	}
	matches, _ := filepath.Glob(filepath.Join(store.Dir(), SnapshotName+"_v*.gob.gz"))
	if len(matches) != 2 {
		t.Errorf("snapshot files = %d, want 2", len(matches))
	}
}

func TestEngine_Warm(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	// Empty store: falls back to a refresh from the source.
	enc := abcEncoder()
	e := newTestEngine(t, enc)
	e.SetStore(store)
	e.SetSource(&staticSource{courses: courses("A", "B", "C")})
	if err := e.Warm(ctx); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if enc.callCount() != 1 {
		t.Errorf("encoder calls = %d, want 1", enc.callCount())
	}

	// Snapshot present: loads without encoding.
	enc2 := abcEncoder()
	e2 := newTestEngine(t, enc2)
	e2.SetStore(store)
	e2.SetSource(&staticSource{courses: courses("D")})
	if err := e2.Warm(ctx); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if enc2.callCount() != 0 {
		t.Errorf("encoder calls = %d, want 0", enc2.callCount())
	}
	if e2.Status().Courses != 3 {
		t.Errorf("Courses = %d, want 3 from snapshot", e2.Status().Courses)
	}

	// Incompatible snapshot: refused and rebuilt.
	enc3 := newStubEncoder(3, map[string][]float32{"D": {1, 0, 0}})
	e3 := newTestEngine(t, enc3)
	e3.SetStore(store)
	e3.SetSource(&staticSource{courses: []models.Course{course("D")}})
	if err := e3.Warm(ctx); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if st := e3.Status(); st.Dimensions != 3 || st.Courses != 1 {
		t.Errorf("Status() = %+v, want rebuilt index of width 3", st)
	}
}

func TestEngine_SaveFileLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.gob.gz")
	e := newTestEngine(t, abcEncoder())

	if err := e.SaveFile(path); !errors.Is(err, ErrUntrained) {
		t.Errorf("SaveFile() untrained error = %v, want ErrUntrained", err)
	}
	if err := e.Fit(context.Background(), courses("A", "B", "C")); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if err := e.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}

	fresh := newTestEngine(t, abcEncoder())
	if err := fresh.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := fresh.Recommend([]string{"A"}, 2); !equalIDs(got, []string{"B", "C"}) {
		t.Errorf("Recommend([A]) after LoadFile = %v, want [B C]", got)
	}

	wide := newTestEngine(t, newStubEncoder(4, nil))
	if err := wide.LoadFile(path); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("LoadFile() error = %v, want ErrDimensionMismatch", err)
	}
	if err := fresh.LoadFile(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, ErrPersistence) {
		t.Errorf("LoadFile(missing) error = %v, want ErrPersistence", err)
	}
}

func TestConfig_ClampTopN(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	tests := []struct {
		in, want int
	}{
		{0, 5},
		{-3, 5},
		{1, 1},
		{50, 50},
		{1000, 100},
	}
	for _, tt := range tests {
		if got := cfg.ClampTopN(tt.in); got != tt.want {
			t.Errorf("ClampTopN(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"max below default", func(c *Config) { c.MaxTopN = 1 }},
		{"empty model", func(c *Config) { c.ModelID = "" }},
		{"no snapshots", func(c *Config) { c.KeepSnapshots = 0 }},
		{"zero timeout", func(c *Config) { c.RefreshTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestEngine_ResultCarriesServingGeneration(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, abcEncoder())
	src := &staticSource{courses: courses("A", "B", "C")}
	e.SetSource(src)

	ctx := context.Background()
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	res := e.RecommendScored([]string{"A"}, 2)
	if res.Generation == "" || res.Generation != e.Status().Generation {
		t.Fatalf("Result.Generation = %q, want %q", res.Generation, e.Status().Generation)
	}

	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := e.SimilarToScored("A", 1).Generation; got == res.Generation {
		t.Errorf("SimilarToScored().Generation = %q after refresh, want a new generation", got)
	}
	if len(res.Items) != 2 {
		t.Errorf("earlier result changed: %+v", res.Items)
	}
}

func TestEngine_UntrainedResult(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, abcEncoder())
	res := e.RecommendScored([]string{"A"}, 3)
	if res.Generation != "" || len(res.Items) != 0 {
		t.Errorf("RecommendScored() on untrained engine = %+v, want empty", res)
	}
}
