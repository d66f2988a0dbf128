// Package source defines the contract every job board connector satisfies
// and a registry the ingest cycle iterates over. Adapters only fetch and map
// payloads to raw postings; compliance checks, breaker wrapping, rate-limit
// budgeting, normalization and persistence all live upstream.
package source

import (
	"context"
	"errors"
	"sort"
	"sync"

	"jobhunter/aggregator-service/internal/model"
)

// Sentinel errors adapters translate transport failures into. The ingest
// layer keys breaker and back-off behavior off these, never off raw HTTP
// status codes.
var (
	// ErrRateLimited means the upstream asked us to slow down (HTTP 429).
	ErrRateLimited = errors.New("source rate limited")
	// ErrBlocked means the upstream refused us outright (HTTP 403); the
	// ingest layer reports it to the compliance gate.
	ErrBlocked = errors.New("source blocked access")
	// ErrUnavailable covers transient upstream failure (5xx, timeouts).
	ErrUnavailable = errors.New("source unavailable")
)

// Kind distinguishes official-API connectors from HTML scrapers. Scrapers
// get the slower ingest cadence and the stricter compliance posture.
type Kind string

const (
	KindAPI    Kind = "api"
	KindScrape Kind = "scrape"
)

// Query is the search the dispatcher asks an adapter to run for one cycle.
type Query struct {
	Keywords string
	Location string
	// MaxPages caps pagination per cycle; adapters stop early when a page
	// comes back short. Zero means the adapter's own default.
	MaxPages int
}

// Adapter is the per-board connector contract. Fetch returns raw postings
// exactly as the board presented them; partial results alongside an error
// are valid and are persisted before the error is handled.
type Adapter interface {
	Name() string
	Kind() Kind
	Fetch(ctx context.Context, q Query) ([]model.RawPosting, error)
}

// Registry holds the configured adapters keyed by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter, replacing any previous one with the same name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the named adapter, or nil if unknown.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// ByKind returns adapters of one kind in stable name order, so cycle logs
// are deterministic.
func (r *Registry) ByKind(k Kind) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Adapter
	for _, a := range r.adapters {
		if a.Kind() == k {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names lists all registered adapter names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
