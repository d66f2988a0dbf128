package embed_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobhunter/aggregator-service/internal/embed"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := embed.Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientEncode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = []float32{float32(i), 1, 0}
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := embed.NewClient(srv.URL, "", 3)
	vecs, err := c.Encode(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(vecs) != 2 || vecs[1][0] != 1 {
		t.Fatalf("vecs = %v", vecs)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([][]float32{{1, 2, 3}})
	}))
	defer srv.Close()

	c := embed.NewClient(srv.URL, "sk-test", 3)
	if _, err := c.Encode(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got != "Bearer sk-test" {
		t.Fatalf("Authorization = %q, want bearer token", got)
	}
}

func TestClientEncodeDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{1, 2}})
	}))
	defer srv.Close()

	c := embed.NewClient(srv.URL, "", 3)
	if _, err := c.Encode(context.Background(), []string{"a"}); err == nil {
		t.Fatal("dimension mismatch not rejected")
	}
}

func TestClientEncodeCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{1, 2, 3}})
	}))
	defer srv.Close()

	c := embed.NewClient(srv.URL, "", 3)
	if _, err := c.Encode(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("count mismatch not rejected")
	}
}

func TestClientEncodeEmptyBatch(t *testing.T) {
	c := embed.NewClient("http://unused", "", 3)
	vecs, err := c.Encode(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("empty batch = (%v, %v), want (nil, nil)", vecs, err)
	}
}
