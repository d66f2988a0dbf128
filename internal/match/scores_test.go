package match_test

import (
	"math"
	"reflect"
	"testing"
	"time"

	"jobhunter/aggregator-service/internal/match"
	"jobhunter/aggregator-service/internal/model"
)

func intPtr(v int) *int { return &v }

func TestSalaryScore(t *testing.T) {
	tests := []struct {
		name             string
		userMin, userMax *int
		jobMin, jobMax   int
		want             float64
	}{
		{"no user preference", nil, nil, 100000, 120000, 0.5},
		{"no job data", intPtr(100000), intPtr(120000), 0, 0, 0.5},
		{"job pays more", intPtr(100000), intPtr(100000), 110000, 130000, 1.0},
		{"job matches exactly", intPtr(100000), intPtr(100000), 100000, 100000, 1.0},
		{"job at 90 percent", intPtr(100000), intPtr(100000), 90000, 90000, 0.75},
		{"job at 80 percent", intPtr(100000), intPtr(100000), 80000, 80000, 0.5},
		{"job at 40 percent", intPtr(100000), intPtr(100000), 40000, 40000, 0.25},
		{"only user min set", intPtr(100000), nil, 100000, 0, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := match.SalaryScore(tt.userMin, tt.userMax, tt.jobMin, tt.jobMax)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("SalaryScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocationScore(t *testing.T) {
	onsite := &model.CanonicalPosting{Location: "Zürich, Switzerland", Region: "ZH"}
	remote := &model.CanonicalPosting{Location: "Remote", Remote: true}
	unknown := &model.CanonicalPosting{}

	tests := []struct {
		name      string
		locations []string
		pref      model.RemotePreference
		post      *model.CanonicalPosting
		want      float64
	}{
		{"remote-only user, remote job", nil, model.RemoteOnly, remote, 1.0},
		{"remote-only user, onsite job", []string{"Zürich"}, model.RemoteOnly, onsite, 0.0},
		{"onsite user, remote job", []string{"Zürich"}, model.RemoteOnsite, remote, 0.0},
		{"any user, remote job", nil, model.RemoteAny, remote, 1.0},
		{"city substring match", []string{"Zürich"}, model.RemoteAny, onsite, 1.0},
		{"canton code match", []string{"ZH"}, model.RemoteAny, onsite, 1.0},
		{"no match", []string{"Geneva"}, model.RemoteAny, onsite, 0.0},
		{"no preference", nil, model.RemoteAny, onsite, 0.5},
		{"unknown job location", []string{"Zürich"}, model.RemoteAny, unknown, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := match.LocationScore(tt.locations, tt.pref, tt.post)
			if got != tt.want {
				t.Fatalf("LocationScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecencyScore(t *testing.T) {
	now := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		daysOld int
		want    float64
	}{
		{0, 1.0}, {1, 1.0}, {3, 0.8}, {7, 0.8}, {10, 0.5}, {14, 0.5}, {20, 0.3}, {30, 0.3}, {45, 0.1},
	}
	for _, tt := range tests {
		firstSeen := now.AddDate(0, 0, -tt.daysOld)
		if got := match.RecencyScore(firstSeen, now); got != tt.want {
			t.Errorf("RecencyScore(%d days) = %v, want %v", tt.daysOld, got, tt.want)
		}
	}
}

func TestSkillOverlap(t *testing.T) {
	matching, missing := match.SkillOverlap(
		[]string{"Go", "SQL", "Docker"},
		[]string{"go", "kubernetes", "sql", "KUBERNETES"},
	)
	if !reflect.DeepEqual(matching, []string{"go", "sql"}) {
		t.Errorf("matching = %v", matching)
	}
	if !reflect.DeepEqual(missing, []string{"kubernetes"}) {
		t.Errorf("missing = %v", missing)
	}

	matching, missing = match.SkillOverlap(nil, nil)
	if len(matching) != 0 || len(missing) != 0 {
		t.Errorf("empty inputs = %v / %v", matching, missing)
	}
}

func TestFinalScore(t *testing.T) {
	w := model.DefaultWeights()
	// All sub-scores perfect gives exactly 100.
	if got := match.FinalScore(w, 1, 1, 1, 1, 1); got != 100 {
		t.Fatalf("FinalScore(all 1) = %v, want 100", got)
	}
	if got := match.FinalScore(w, 0, 0, 0, 0, 0); got != 0 {
		t.Fatalf("FinalScore(all 0) = %v, want 0", got)
	}
	// .40*0.8 + .10*0.5 + .20*1 + .15*0 + .15*0.8 = 0.69
	got := match.FinalScore(w, 0.8, 0.5, 1, 0, 0.8)
	if math.Abs(got-69.0) > 1e-9 {
		t.Fatalf("FinalScore = %v, want 69.0", got)
	}
}
