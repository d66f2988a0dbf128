package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobhunter/aggregator-service/internal/model"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name string
		code int
		want error
	}{
		{"ok", 200, nil},
		{"rate limited", 429, ErrRateLimited},
		{"blocked", 403, ErrBlocked},
		{"server error", 500, ErrUnavailable},
		{"bad gateway", 502, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStatus(tt.code, nil)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("classifyStatus(%d) = %v, want nil", tt.code, err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("classifyStatus(%d) = %v, want %v", tt.code, err, tt.want)
			}
		})
	}

	if err := classifyStatus(404, []byte("nope")); err == nil {
		t.Fatal("classifyStatus(404) = nil, want generic error")
	}
}

func TestAdzunaFetchSkipsWithoutCredentials(t *testing.T) {
	a := NewAdzunaAdapter("", "", "ch")
	got, err := a.Fetch(context.Background(), Query{Keywords: "go"})
	if err != nil || got != nil {
		t.Fatalf("Fetch without credentials = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestAdzunaFetchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("app_id"); got != "id" {
			t.Errorf("app_id = %q, want id", got)
		}
		w.Write([]byte(`{"results":[{
			"id":"123","title":"Go Engineer","description":"Build services",
			"company":{"display_name":"Acme AG"},"location":{"display_name":"Zürich"},
			"salary_min":100000,"salary_max":120000,
			"redirect_url":"https://example.com/j/123","created":"2026-08-20T10:00:00Z"
		}],"count":1}`))
	}))
	defer srv.Close()

	a := NewAdzunaAdapter("id", "key", "ch")
	a.baseURL = srv.URL

	got, err := a.Fetch(context.Background(), Query{Keywords: "go", Location: "Zurich"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d postings, want 1", len(got))
	}
	want := model.RawPosting{
		SourceKey: "adzuna", ExternalID: "123", Title: "Go Engineer",
		Company: "Acme AG", Location: "Zürich",
	}
	if got[0].SourceKey != want.SourceKey || got[0].ExternalID != want.ExternalID ||
		got[0].Title != want.Title || got[0].Company != want.Company || got[0].Location != want.Location {
		t.Fatalf("posting = %+v", got[0])
	}
	if got[0].PostedAt.IsZero() {
		t.Error("PostedAt not parsed")
	}
}

func TestAdzunaFetchReturnsPartialOnRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// A full first page so pagination continues.
			w.Write(fullAdzunaPage())
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewAdzunaAdapter("id", "key", "ch")
	a.baseURL = srv.URL

	got, err := a.Fetch(context.Background(), Query{Keywords: "go"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if len(got) != adzunaPageSize {
		t.Fatalf("partial results = %d, want %d", len(got), adzunaPageSize)
	}
}

func fullAdzunaPage() []byte {
	page := `{"results":[`
	for i := 0; i < adzunaPageSize; i++ {
		if i > 0 {
			page += ","
		}
		page += `{"id":"x","title":"t","company":{"display_name":"c"},"location":{"display_name":"l"},"redirect_url":"u"}`
	}
	return []byte(page + `],"count":150}`)
}

func TestRegistryByKind(t *testing.T) {
	r := NewRegistry()
	r.Register(NewJobsChAdapter())
	r.Register(NewAdzunaAdapter("id", "key", "ch"))

	apis := r.ByKind(KindAPI)
	if len(apis) != 1 || apis[0].Name() != "adzuna" {
		t.Fatalf("ByKind(api) = %v", names(apis))
	}
	scrapes := r.ByKind(KindScrape)
	if len(scrapes) != 1 || scrapes[0].Name() != "jobs_ch" {
		t.Fatalf("ByKind(scrape) = %v", names(scrapes))
	}
	if got := r.Get("adzuna"); got == nil {
		t.Fatal("Get(adzuna) = nil")
	}
	if got := r.Get("unknown"); got != nil {
		t.Fatal("Get(unknown) != nil")
	}
}

func names(as []Adapter) []string {
	var out []string
	for _, a := range as {
		out = append(out, a.Name())
	}
	return out
}
