package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/breaker"
	"jobhunter/aggregator-service/internal/compliance"
	"jobhunter/aggregator-service/internal/dedup"
	"jobhunter/aggregator-service/internal/model"
	"jobhunter/aggregator-service/internal/normalize"
	"jobhunter/aggregator-service/internal/source"
)

// ---- fakes ----------------------------------------------------------------

type fakeAdapter struct {
	name     string
	kind     source.Kind
	mu       sync.Mutex
	calls    int
	postings []model.RawPosting
	err      error
}

func (f *fakeAdapter) Name() string      { return f.name }
func (f *fakeAdapter) Kind() source.Kind { return f.kind }

func (f *fakeAdapter) Fetch(context.Context, source.Query) ([]model.RawPosting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.postings, f.err
}

type fakePolicy struct {
	mu        sync.Mutex
	checkErr  map[string]error
	budget    int           // requests allowed before exhaustion; negative = unlimited
	delay     time.Duration // returned from every reservation
	blocks    []string
	successes []string
}

func newFakePolicy() *fakePolicy {
	return &fakePolicy{checkErr: make(map[string]error), budget: -1}
}

func (f *fakePolicy) Check(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkErr[key]
}

func (f *fakePolicy) ReserveRequest(context.Context, string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.budget < 0 {
		return f.delay, nil
	}
	if f.budget == 0 {
		return 0, compliance.ErrBudgetExhausted
	}
	f.budget--
	return f.delay, nil
}

func (f *fakePolicy) ReportBlock(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, key)
	return nil
}

func (f *fakePolicy) ReportSuccess(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, key)
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	upserts []model.CanonicalPosting
}

func (f *fakeSink) Upsert(_ context.Context, p *model.CanonicalPosting) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, prev := range f.upserts {
		if prev.Hash == p.Hash {
			f.upserts = append(f.upserts, *p)
			return false, nil
		}
	}
	f.upserts = append(f.upserts, *p)
	return true, nil
}

type noDupIndex struct{}

func (noDupIndex) FindByFuzzyHash(context.Context, string, string) (string, error) {
	return "", nil
}
func (noDupIndex) FindSemanticDuplicate(context.Context, string, []float32, float64) (string, error) {
	return "", nil
}
func (noDupIndex) MarkDuplicate(context.Context, string, string) error { return nil }

func rawPosting(title string) model.RawPosting {
	return model.RawPosting{
		SourceKey: "board",
		Title:     title,
		Company:   "Acme AG",
		Location:  "Zürich",
		URL:       "https://example.com/jobs/" + title,
	}
}

func newTestIngestor(reg *source.Registry, policy Policy, sink PostingSink, cfg Config) *Ingestor {
	if len(cfg.Queries) == 0 {
		cfg.Queries = []source.Query{{Keywords: "engineer"}}
	}
	return NewIngestor(reg, policy, normalize.New(), dedup.New(noDupIndex{}, 0.95), sink, cfg, zap.NewNop())
}

// ---- tests ----------------------------------------------------------------

func TestRunKindIngestsAndReportsSuccess(t *testing.T) {
	reg := source.NewRegistry()
	ad := &fakeAdapter{name: "board", kind: source.KindAPI, postings: []model.RawPosting{
		rawPosting("Go Engineer"),
		rawPosting("Data Engineer"),
		{SourceKey: "board", Title: "", Company: "Acme AG", URL: "https://example.com/x"}, // rejected
	}}
	reg.Register(ad)

	policy := newFakePolicy()
	sink := &fakeSink{}
	in := newTestIngestor(reg, policy, sink, Config{})

	st := in.RunKind(context.Background(), source.KindAPI)
	if st.Fetched != 3 || st.Inserted != 2 || st.Skipped != 1 {
		t.Fatalf("stats = %+v, want fetched 3 inserted 2 skipped 1", st)
	}
	if len(policy.successes) != 1 {
		t.Fatalf("successes = %v, want one", policy.successes)
	}
}

func TestRunKindSkipsBlockedSource(t *testing.T) {
	reg := source.NewRegistry()
	ad := &fakeAdapter{name: "banned", kind: source.KindAPI, postings: []model.RawPosting{rawPosting("X")}}
	reg.Register(ad)

	policy := newFakePolicy()
	policy.checkErr["banned"] = compliance.ErrPolicyBlocked
	in := newTestIngestor(reg, policy, &fakeSink{}, Config{})

	st := in.RunKind(context.Background(), source.KindAPI)
	if st.Fetched != 0 || ad.calls != 0 {
		t.Fatalf("blocked source was fetched: stats=%+v calls=%d", st, ad.calls)
	}
}

func TestRunKindStopsOnBudget(t *testing.T) {
	reg := source.NewRegistry()
	ad := &fakeAdapter{name: "board", kind: source.KindAPI, postings: []model.RawPosting{rawPosting("X")}}
	reg.Register(ad)

	policy := newFakePolicy()
	policy.budget = 2
	in := newTestIngestor(reg, policy, &fakeSink{}, Config{
		Queries: []source.Query{{Keywords: "a"}, {Keywords: "b"}, {Keywords: "c"}, {Keywords: "d"}},
	})

	in.RunKind(context.Background(), source.KindAPI)
	if ad.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2 (budget)", ad.calls)
	}
}

func TestRunKindReportsUpstreamBlock(t *testing.T) {
	reg := source.NewRegistry()
	ad := &fakeAdapter{
		name:     "board",
		kind:     source.KindAPI,
		postings: []model.RawPosting{rawPosting("Partial Result")},
		err:      fmt.Errorf("status 403: %w", source.ErrBlocked),
	}
	reg.Register(ad)

	policy := newFakePolicy()
	sink := &fakeSink{}
	in := newTestIngestor(reg, policy, sink, Config{})

	st := in.RunKind(context.Background(), source.KindAPI)
	if len(policy.blocks) != 1 || policy.blocks[0] != "board" {
		t.Fatalf("blocks = %v, want [board]", policy.blocks)
	}
	// Records fetched before the block are still persisted.
	if st.Inserted != 1 || len(sink.upserts) != 1 {
		t.Fatalf("partial results dropped: stats=%+v", st)
	}
	if len(policy.successes) != 0 {
		t.Fatal("blocked fetch reported as success")
	}
}

func TestRunKindBreakerTripsAcrossCycles(t *testing.T) {
	reg := source.NewRegistry()
	ad := &fakeAdapter{name: "flaky", kind: source.KindAPI, err: errors.New("boom")}
	reg.Register(ad)

	in := newTestIngestor(reg, newFakePolicy(), &fakeSink{}, Config{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Hour,
	})

	for i := 0; i < 4; i++ {
		in.RunKind(context.Background(), source.KindAPI)
	}
	// Two failures trip the breaker; later cycles fail fast without fetching.
	if ad.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", ad.calls)
	}
	if in.BreakerState("flaky") == breaker.StateClosed {
		t.Fatal("breaker still closed after repeated failures")
	}
}

func TestRunKindPacesRequestsPerSourceDelay(t *testing.T) {
	reg := source.NewRegistry()
	ad := &fakeAdapter{name: "board", kind: source.KindAPI, postings: []model.RawPosting{rawPosting("X")}}
	reg.Register(ad)

	policy := newFakePolicy()
	policy.delay = 2 * time.Second
	in := newTestIngestor(reg, policy, &fakeSink{}, Config{
		Queries: []source.Query{{Keywords: "a"}, {Keywords: "b"}, {Keywords: "c"}},
	})

	var slept []time.Duration
	in.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }

	in.RunKind(context.Background(), source.KindAPI)
	// Three queries mean two gaps; the last request has nothing to pace.
	if len(slept) != 2 {
		t.Fatalf("sleeps = %v, want 2 pacing pauses", slept)
	}
	for _, d := range slept {
		if d != 2*time.Second {
			t.Fatalf("sleep = %v, want 2s from the compliance record", d)
		}
	}
}

func TestCacheSuppressesRepeatUpserts(t *testing.T) {
	reg := source.NewRegistry()
	ad := &fakeAdapter{name: "board", kind: source.KindAPI, postings: []model.RawPosting{rawPosting("Same Job")}}
	reg.Register(ad)

	sink := &fakeSink{}
	in := newTestIngestor(reg, newFakePolicy(), sink, Config{
		Queries: []source.Query{{Keywords: "a"}, {Keywords: "b"}},
	})

	st := in.RunKind(context.Background(), source.KindAPI)
	if st.Inserted != 1 || st.Cached != 1 {
		t.Fatalf("stats = %+v, want inserted 1 cached 1", st)
	}
	if len(sink.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(sink.upserts))
	}
}

func TestSeenCacheExpiry(t *testing.T) {
	c := newSeenCache(10 * time.Minute)
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if c.Seen("h", t0) {
		t.Fatal("first sighting reported as seen")
	}
	if !c.Seen("h", t0.Add(5*time.Minute)) {
		t.Fatal("sighting within TTL not reported")
	}
	if c.Seen("h", t0.Add(20*time.Minute)) {
		t.Fatal("expired entry still reported as seen")
	}
}
