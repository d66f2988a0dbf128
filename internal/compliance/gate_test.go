package compliance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/compliance"
	"jobhunter/aggregator-service/internal/model"
)

type fakeStore struct {
	records  map[string]*model.SourceComplianceRecord
	disabled []string
}

func newFakeStore(recs ...model.SourceComplianceRecord) *fakeStore {
	s := &fakeStore{records: make(map[string]*model.SourceComplianceRecord)}
	for i := range recs {
		rec := recs[i]
		s.records[rec.SourceKey] = &rec
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, key string) (*model.SourceComplianceRecord, error) {
	return s.records[key], nil
}

func (s *fakeStore) List(_ context.Context) ([]model.SourceComplianceRecord, error) {
	var out []model.SourceComplianceRecord
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *fakeStore) RecordBlock(_ context.Context, key string, at time.Time) (int, error) {
	rec := s.records[key]
	rec.ConsecutiveBlocks++
	rec.LastBlockedAt = &at
	return rec.ConsecutiveBlocks, nil
}

func (s *fakeStore) ResetBlocks(_ context.Context, key string) error {
	s.records[key].ConsecutiveBlocks = 0
	return nil
}

func (s *fakeStore) Disable(_ context.Context, key string) error {
	s.records[key].Allowed = false
	s.disabled = append(s.disabled, key)
	return nil
}

type fakeBudget struct {
	counts map[string]int64
}

func (b *fakeBudget) TakeRequest(_ context.Context, key string, _ time.Time) (int64, error) {
	if b.counts == nil {
		b.counts = make(map[string]int64)
	}
	b.counts[key]++
	return b.counts[key], nil
}

func allowedRecord(key string) model.SourceComplianceRecord {
	return model.SourceComplianceRecord{
		SourceKey: key, Method: "api", Allowed: true, RobotsOK: true,
		MaxRequestsPerHour: 2, AutoDisableOnBlock: true,
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		rec     *model.SourceComplianceRecord
		blocked bool
	}{
		{"allowed", &model.SourceComplianceRecord{SourceKey: "a", Allowed: true, RobotsOK: true}, false},
		{"disabled", &model.SourceComplianceRecord{SourceKey: "a", Allowed: false, RobotsOK: true}, true},
		{"robots violation", &model.SourceComplianceRecord{SourceKey: "a", Allowed: true, RobotsOK: false}, true},
		{"no record", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			if tt.rec != nil {
				store.records["a"] = tt.rec
			}
			g := compliance.NewGate(store, &fakeBudget{}, zap.NewNop())
			err := g.Check(context.Background(), "a")
			if tt.blocked && !errors.Is(err, compliance.ErrPolicyBlocked) {
				t.Fatalf("Check = %v, want ErrPolicyBlocked", err)
			}
			if !tt.blocked && err != nil {
				t.Fatalf("Check = %v, want nil", err)
			}
		})
	}
}

func TestReserveRequestBudget(t *testing.T) {
	g := compliance.NewGate(newFakeStore(allowedRecord("adzuna")), &fakeBudget{}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := g.ReserveRequest(ctx, "adzuna"); err != nil {
			t.Fatalf("reservation %d: %v", i+1, err)
		}
	}
	if _, err := g.ReserveRequest(ctx, "adzuna"); !errors.Is(err, compliance.ErrBudgetExhausted) {
		t.Fatalf("third reservation = %v, want ErrBudgetExhausted", err)
	}
}

func TestReserveRequestNoBudgetConfigured(t *testing.T) {
	rec := allowedRecord("adzuna")
	rec.MaxRequestsPerHour = 0
	g := compliance.NewGate(newFakeStore(rec), &fakeBudget{}, zap.NewNop())

	for i := 0; i < 10; i++ {
		if _, err := g.ReserveRequest(context.Background(), "adzuna"); err != nil {
			t.Fatalf("reservation %d: %v", i+1, err)
		}
	}
}

func TestReserveRequestReturnsSourceDelay(t *testing.T) {
	rec := allowedRecord("jobs_ch")
	rec.RateLimitSeconds = 2.5
	g := compliance.NewGate(newFakeStore(rec), &fakeBudget{}, zap.NewNop())

	delay, err := g.ReserveRequest(context.Background(), "jobs_ch")
	if err != nil {
		t.Fatalf("ReserveRequest: %v", err)
	}
	if want := 2500 * time.Millisecond; delay != want {
		t.Fatalf("delay = %v, want %v", delay, want)
	}
}

func TestReportBlockAutoDisables(t *testing.T) {
	store := newFakeStore(allowedRecord("jobs_ch"))
	g := compliance.NewGate(store, &fakeBudget{}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < compliance.BlockThreshold-1; i++ {
		if err := g.ReportBlock(ctx, "jobs_ch"); err != nil {
			t.Fatalf("block %d: %v", i+1, err)
		}
	}
	if len(store.disabled) != 0 {
		t.Fatal("disabled before threshold")
	}

	if err := g.ReportBlock(ctx, "jobs_ch"); err != nil {
		t.Fatalf("threshold block: %v", err)
	}
	if len(store.disabled) != 1 || store.disabled[0] != "jobs_ch" {
		t.Fatalf("disabled = %v, want [jobs_ch]", store.disabled)
	}
	if err := g.Check(ctx, "jobs_ch"); !errors.Is(err, compliance.ErrPolicyBlocked) {
		t.Fatalf("Check after auto-disable = %v, want ErrPolicyBlocked", err)
	}
}

func TestReportBlockWithoutAutoDisable(t *testing.T) {
	rec := allowedRecord("adzuna")
	rec.AutoDisableOnBlock = false
	store := newFakeStore(rec)
	g := compliance.NewGate(store, &fakeBudget{}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < compliance.BlockThreshold+1; i++ {
		g.ReportBlock(ctx, "adzuna")
	}
	if len(store.disabled) != 0 {
		t.Fatal("source without auto-disable was disabled")
	}
}

func TestReportSuccessResetsBlocks(t *testing.T) {
	store := newFakeStore(allowedRecord("adzuna"))
	g := compliance.NewGate(store, &fakeBudget{}, zap.NewNop())
	ctx := context.Background()

	g.ReportBlock(ctx, "adzuna")
	g.ReportBlock(ctx, "adzuna")
	if err := g.ReportSuccess(ctx, "adzuna"); err != nil {
		t.Fatalf("ReportSuccess: %v", err)
	}
	if got := store.records["adzuna"].ConsecutiveBlocks; got != 0 {
		t.Fatalf("consecutive blocks = %d, want 0", got)
	}
}

func TestStatusFlagsStaleTOSReview(t *testing.T) {
	fresh := allowedRecord("adzuna")
	now := time.Now()
	fresh.TOSReviewedAt = &now

	stale := allowedRecord("jobs_ch")
	old := now.Add(-compliance.TOSReviewWindow - time.Hour)
	stale.TOSReviewedAt = &old

	never := allowedRecord("indeed")

	g := compliance.NewGate(newFakeStore(fresh, stale, never), &fakeBudget{}, zap.NewNop())
	statuses, err := g.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	byKey := make(map[string]bool)
	for _, s := range statuses {
		byKey[s.SourceKey] = s.TOSReviewStale
	}
	if byKey["adzuna"] {
		t.Error("fresh review flagged stale")
	}
	if !byKey["jobs_ch"] {
		t.Error("old review not flagged stale")
	}
	if !byKey["indeed"] {
		t.Error("never-reviewed source not flagged stale")
	}
}
