package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/dedup"
	"jobhunter/aggregator-service/internal/model"
	"jobhunter/aggregator-service/internal/store"
)

type fakePostingMaint struct {
	unembedded []string
	postings   map[string]*model.CanonicalPosting
	embeddings map[string][]float32
	targets    []store.URLCheckTarget
	urlChecks  map[string]bool
	staleCut   time.Time
}

func newFakePostingMaint() *fakePostingMaint {
	return &fakePostingMaint{
		postings:   make(map[string]*model.CanonicalPosting),
		embeddings: make(map[string][]float32),
		urlChecks:  make(map[string]bool),
	}
}

func (f *fakePostingMaint) HashesWithoutEmbedding(_ context.Context, limit int) ([]string, error) {
	var out []string
	for _, h := range f.unembedded {
		if _, done := f.embeddings[h]; !done {
			out = append(out, h)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePostingMaint) GetByHash(_ context.Context, hash string) (*model.CanonicalPosting, error) {
	return f.postings[hash], nil
}

func (f *fakePostingMaint) SetEmbedding(_ context.Context, hash string, vec []float32) error {
	f.embeddings[hash] = vec
	return nil
}

func (f *fakePostingMaint) DeactivateStale(_ context.Context, olderThan time.Time) (int64, error) {
	f.staleCut = olderThan
	return 3, nil
}

func (f *fakePostingMaint) URLCheckTargets(_ context.Context, _ int) ([]store.URLCheckTarget, error) {
	return f.targets, nil
}

func (f *fakePostingMaint) RecordURLCheck(_ context.Context, hash string, alive bool, _ time.Time) error {
	f.urlChecks[hash] = alive
	return nil
}

type fakeProfileMaint struct {
	pending    []store.ProfileCV
	embeddings map[string][]float32
}

func (f *fakeProfileMaint) MissingCVEmbedding(context.Context, int) ([]store.ProfileCV, error) {
	return f.pending, nil
}

func (f *fakeProfileMaint) SetCVEmbedding(_ context.Context, userID string, vec []float32) error {
	if f.embeddings == nil {
		f.embeddings = make(map[string][]float32)
	}
	f.embeddings[userID] = vec
	return nil
}

type fakeEncoder struct {
	calls int
}

func (f *fakeEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEncoder) Dimension() int { return 3 }

type semanticIndex struct {
	canonical map[string]string // posting hash -> existing duplicate target
	marked    map[string]string
}

func (s *semanticIndex) FindByFuzzyHash(context.Context, string, string) (string, error) {
	return "", nil
}

func (s *semanticIndex) FindSemanticDuplicate(_ context.Context, hash string, _ []float32, _ float64) (string, error) {
	return s.canonical[hash], nil
}

func (s *semanticIndex) MarkDuplicate(_ context.Context, hash, canonicalHash string) error {
	if s.marked == nil {
		s.marked = make(map[string]string)
	}
	s.marked[hash] = canonicalHash
	return nil
}

type fakeInvalidator struct {
	users []string
}

func (f *fakeInvalidator) InvalidateUser(_ context.Context, userID string) error {
	f.users = append(f.users, userID)
	return nil
}

func maintenance(pm *fakePostingMaint, idx dedup.DuplicateIndex) *Maintenance {
	return NewMaintenance(pm, &fakeProfileMaint{}, &fakeEncoder{}, dedup.New(idx, 0.95), nil,
		MaintenanceConfig{EmbedBatchSize: 2, EmbedPause: time.Millisecond}, zap.NewNop())
}

func TestEmbeddingBackfillEncodesAndLinks(t *testing.T) {
	pm := newFakePostingMaint()
	pm.unembedded = []string{"a", "b", "c"}
	for _, h := range pm.unembedded {
		pm.postings[h] = &model.CanonicalPosting{Hash: h, Title: "T", Company: "C"}
	}
	idx := &semanticIndex{canonical: map[string]string{"b": "a"}}

	if err := maintenance(pm, idx).EmbeddingBackfill(context.Background()); err != nil {
		t.Fatalf("EmbeddingBackfill: %v", err)
	}
	if len(pm.embeddings) != 3 {
		t.Fatalf("embedded %d postings, want 3", len(pm.embeddings))
	}
	if idx.marked["b"] != "a" {
		t.Fatalf("semantic duplicate not linked: %v", idx.marked)
	}
}

func TestProfileEmbeddingBackfill(t *testing.T) {
	pm := newFakePostingMaint()
	prof := &fakeProfileMaint{pending: []store.ProfileCV{{UserID: "u1", CVText: "Go engineer"}}}
	inv := &fakeInvalidator{}
	m := NewMaintenance(pm, prof, &fakeEncoder{}, dedup.New(&semanticIndex{}, 0.95), inv,
		MaintenanceConfig{}, zap.NewNop())

	if err := m.ProfileEmbeddingBackfill(context.Background()); err != nil {
		t.Fatalf("ProfileEmbeddingBackfill: %v", err)
	}
	if len(prof.embeddings["u1"]) == 0 {
		t.Fatal("cv embedding not stored")
	}
	// A fresh CV embedding must flush the user's cached assessments.
	if len(inv.users) != 1 || inv.users[0] != "u1" {
		t.Fatalf("invalidated users = %v, want [u1]", inv.users)
	}
}

func TestStaleCleanupWindow(t *testing.T) {
	pm := newFakePostingMaint()
	m := NewMaintenance(pm, &fakeProfileMaint{}, &fakeEncoder{}, dedup.New(&semanticIndex{}, 0.95), nil,
		MaintenanceConfig{StaleWindow: 14 * 24 * time.Hour}, zap.NewNop())
	now := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if err := m.StaleCleanup(context.Background()); err != nil {
		t.Fatalf("StaleCleanup: %v", err)
	}
	want := now.Add(-14 * 24 * time.Hour)
	if !pm.staleCut.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", pm.staleCut, want)
	}
}

func TestURLHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	pm := newFakePostingMaint()
	pm.targets = []store.URLCheckTarget{
		{Hash: "ok", URL: srv.URL + "/job"},
		{Hash: "gone", URL: srv.URL + "/gone"},
		{Hash: "missing", URL: srv.URL + "/missing"},
	}
	m := maintenance(pm, &semanticIndex{})

	if err := m.URLHealthCheck(context.Background()); err != nil {
		t.Fatalf("URLHealthCheck: %v", err)
	}
	if alive := pm.urlChecks["ok"]; !alive {
		t.Fatal("healthy link recorded dead")
	}
	for _, h := range []string{"gone", "missing"} {
		if alive, checked := pm.urlChecks[h]; !checked || alive {
			t.Fatalf("%s: alive=%v checked=%v, want dead", h, alive, checked)
		}
	}
}
