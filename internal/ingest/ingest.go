// Package ingest owns the ingestion cycle: for every admitted source it
// fetches raw postings through the source's circuit breaker, normalizes
// them, stamps dedup hashes and upserts into the posting store. Compliance
// is consulted before any request leaves the process.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobhunter/aggregator-service/internal/breaker"
	"jobhunter/aggregator-service/internal/compliance"
	"jobhunter/aggregator-service/internal/dedup"
	"jobhunter/aggregator-service/internal/model"
	"jobhunter/aggregator-service/internal/normalize"
	"jobhunter/aggregator-service/internal/source"
)

// Policy is the compliance surface the ingestor consults. compliance.Gate
// implements it. ReserveRequest returns the minimum delay to observe before
// the next request to the same source.
type Policy interface {
	Check(ctx context.Context, sourceKey string) error
	ReserveRequest(ctx context.Context, sourceKey string) (time.Duration, error)
	ReportBlock(ctx context.Context, sourceKey string) error
	ReportSuccess(ctx context.Context, sourceKey string) error
}

// PostingSink persists canonical postings. store.PostingStore implements it.
type PostingSink interface {
	Upsert(ctx context.Context, p *model.CanonicalPosting) (bool, error)
}

// Stats summarizes one ingestion run.
type Stats struct {
	Fetched   int // raw postings returned by adapters
	Skipped   int // dropped by normalization
	Cached    int // seen earlier in the cycle, not re-upserted
	Inserted  int
	Updated   int
	FuzzyDups int // linked to an existing posting by fuzzy hash
}

func (s *Stats) add(o Stats) {
	s.Fetched += o.Fetched
	s.Skipped += o.Skipped
	s.Cached += o.Cached
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.FuzzyDups += o.FuzzyDups
}

// Config tunes one Ingestor.
type Config struct {
	Queries          []source.Query // fanned out per source, in order
	FailureThreshold int            // breaker trips after this many consecutive failures
	RecoveryTimeout  time.Duration
	CacheTTL         time.Duration // in-cycle seen-hash window
	MaxConcurrent    int           // sources fetched in parallel
}

// Ingestor runs ingestion cycles over a registry of source adapters, one
// circuit breaker per source.
type Ingestor struct {
	registry *source.Registry
	policy   Policy
	norm     *normalize.Normalizer
	dedup    *dedup.Deduplicator
	sink     PostingSink
	cache    *seenCache
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)

	mu       sync.Mutex
	breakers map[string]*breaker.Breaker
}

func NewIngestor(registry *source.Registry, policy Policy, norm *normalize.Normalizer, d *dedup.Deduplicator, sink PostingSink, cfg Config, log *zap.Logger) *Ingestor {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 20 * time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Ingestor{
		registry: registry,
		policy:   policy,
		norm:     norm,
		dedup:    d,
		sink:     sink,
		cache:    newSeenCache(cfg.CacheTTL),
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sleep:    sleepCtx,
		breakers: make(map[string]*breaker.Breaker),
	}
}

// sleepCtx waits for d or until the context is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// RunKind ingests every registered source of the given kind. Sources run
// concurrently; pagination within a source stays sequential inside the
// adapter. Per-source failures are logged, never fatal to the cycle.
func (in *Ingestor) RunKind(ctx context.Context, kind source.Kind) Stats {
	adapters := in.registry.ByKind(kind)
	if len(adapters) == 0 {
		return Stats{}
	}

	var (
		mu    sync.Mutex
		total Stats
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.MaxConcurrent)
	for _, ad := range adapters {
		ad := ad
		g.Go(func() error {
			st := in.runSource(ctx, ad)
			mu.Lock()
			total.add(st)
			mu.Unlock()
			return nil
		})
	}
	g.Wait() // goroutines never return errors

	in.log.Info("ingestion cycle done",
		zap.String("kind", string(kind)),
		zap.Int("fetched", total.Fetched),
		zap.Int("inserted", total.Inserted),
		zap.Int("updated", total.Updated),
		zap.Int("skipped", total.Skipped),
		zap.Int("fuzzy_dups", total.FuzzyDups))
	return total
}

func (in *Ingestor) runSource(ctx context.Context, ad source.Adapter) Stats {
	key := ad.Name()
	log := in.log.With(zap.String("source", key))

	if err := in.policy.Check(ctx, key); err != nil {
		if errors.Is(err, compliance.ErrPolicyBlocked) {
			log.Info("source not admitted, skipping")
		} else {
			log.Warn("compliance check failed", zap.Error(err))
		}
		return Stats{}
	}

	var st Stats
	br := in.breakerFor(key)
	for i, q := range in.cfg.Queries {
		delay, err := in.policy.ReserveRequest(ctx, key)
		if err != nil {
			if errors.Is(err, compliance.ErrBudgetExhausted) {
				log.Info("hourly request budget exhausted")
			} else {
				log.Warn("budget reservation failed", zap.Error(err))
			}
			break
		}

		var raws []model.RawPosting
		err = br.Execute(ctx, func(ctx context.Context) error {
			var ferr error
			raws, ferr = ad.Fetch(ctx, q)
			return ferr
		})

		// Partial pages fetched before a failure are still worth keeping.
		st.add(in.process(ctx, key, raws, log))

		if err != nil {
			switch {
			case errors.Is(err, breaker.ErrOpen):
				log.Debug("circuit open, source cooling off")
			case errors.Is(err, source.ErrBlocked):
				log.Warn("source blocked us", zap.Error(err))
				if rerr := in.policy.ReportBlock(ctx, key); rerr != nil {
					log.Error("report block failed", zap.Error(rerr))
				}
			case errors.Is(err, source.ErrRateLimited):
				log.Warn("rate limited, backing off until next cycle")
			default:
				log.Warn("fetch failed", zap.Error(err))
			}
			break
		}
		if err := in.policy.ReportSuccess(ctx, key); err != nil {
			log.Warn("report success failed", zap.Error(err))
		}
		// Pace requests to the same source per its compliance record.
		if i < len(in.cfg.Queries)-1 {
			in.sleep(ctx, delay)
		}
	}
	return st
}

func (in *Ingestor) process(ctx context.Context, sourceKey string, raws []model.RawPosting, log *zap.Logger) Stats {
	var st Stats
	now := in.now()
	st.Fetched = len(raws)

	for _, raw := range raws {
		post, err := in.norm.Normalize(raw, now)
		if err != nil {
			st.Skipped++
			var nerr *normalize.Error
			if errors.As(err, &nerr) {
				log.Debug("posting rejected", zap.String("field", nerr.Field), zap.String("reason", nerr.Reason))
			} else {
				log.Warn("normalize failed", zap.Error(err))
			}
			continue
		}

		in.dedup.Stamp(&post, raw.URL, raw.ExternalID)
		if in.cache.Seen(post.Hash, now) {
			st.Cached++
			continue
		}

		created, err := in.sink.Upsert(ctx, &post)
		if err != nil {
			log.Warn("upsert failed", zap.String("hash", post.Hash), zap.Error(err))
			continue
		}
		if !created {
			st.Updated++
			continue
		}
		st.Inserted++

		canonical, err := in.dedup.LinkFuzzy(ctx, &post)
		if err != nil {
			log.Warn("fuzzy link failed", zap.String("hash", post.Hash), zap.Error(err))
		} else if canonical != "" {
			st.FuzzyDups++
		}
	}
	return st
}

func (in *Ingestor) breakerFor(key string) *breaker.Breaker {
	in.mu.Lock()
	defer in.mu.Unlock()
	br, ok := in.breakers[key]
	if !ok {
		br = breaker.New(key, in.cfg.FailureThreshold, in.cfg.RecoveryTimeout)
		in.breakers[key] = br
	}
	return br
}

// BreakerState exposes a source's breaker state for the health endpoint.
func (in *Ingestor) BreakerState(key string) breaker.State {
	in.mu.Lock()
	defer in.mu.Unlock()
	if br, ok := in.breakers[key]; ok {
		return br.State()
	}
	return breaker.StateClosed
}
