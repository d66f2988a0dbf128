// aggregator-service — Swiss job posting aggregation and matching core.
//
// Pulls postings from configured boards on two cadences, normalizes and
// deduplicates them into a canonical corpus, matches the corpus against
// user CV profiles in two stages (vector similarity, then generative
// re-ranking) and delivers alerts and digests over Redis pub/sub. All
// recurring work runs through a cron dispatcher feeding a bounded worker
// pool.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/alert"
	"jobhunter/aggregator-service/internal/compliance"
	"jobhunter/aggregator-service/internal/config"
	"jobhunter/aggregator-service/internal/db"
	"jobhunter/aggregator-service/internal/dedup"
	"jobhunter/aggregator-service/internal/embed"
	"jobhunter/aggregator-service/internal/feedback"
	"jobhunter/aggregator-service/internal/ingest"
	"jobhunter/aggregator-service/internal/logger"
	"jobhunter/aggregator-service/internal/match"
	"jobhunter/aggregator-service/internal/model"
	"jobhunter/aggregator-service/internal/normalize"
	"jobhunter/aggregator-service/internal/rerank"
	"jobhunter/aggregator-service/internal/scheduler"
	"jobhunter/aggregator-service/internal/source"
	"jobhunter/aggregator-service/internal/store"
	"jobhunter/aggregator-service/internal/worker"
)

const version = "1.0.0"

// cronJob pairs a cron spec with the job its ticks enqueue.
type cronJob struct {
	spec string
	job  worker.Job
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.LogJSON, cfg.LogDebug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Storage ─────────────────────────────────────────────────────────
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.PGMaxConns)
	if err != nil {
		zlog.Fatal("postgres connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		zlog.Fatal("ensure schema", zap.Error(err))
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		zlog.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	postings := store.NewPostingStore(pool)
	profiles := store.NewProfileStore(pool)
	matches := store.NewMatchStore(pool)

	// ── Compliance + sources ────────────────────────────────────────────
	records := compliance.NewPGRecordStore(pool)
	gate := compliance.NewGate(records, compliance.NewRedisBudget(rdb), zlog)
	if err := seedCompliance(ctx, records); err != nil {
		zlog.Fatal("seed compliance records", zap.Error(err))
	}

	registry := source.NewRegistry()
	registry.Register(source.NewAdzunaAdapter(cfg.AdzunaAppID, cfg.AdzunaAppKey, cfg.AdzunaCountry))
	registry.Register(source.NewJobsChAdapter())

	deduper := dedup.New(postings, cfg.SemanticThreshold)
	ingestor := ingest.NewIngestor(registry, gate, normalize.New(), deduper, postings, ingest.Config{
		Queries:          buildQueries(cfg),
		FailureThreshold: cfg.BreakerFailureThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
	}, zlog)

	// ── Embeddings + maintenance ────────────────────────────────────────
	assessCache := rerank.NewRedisCache(rdb, cfg.RerankCacheTTL)

	var encoder embed.Encoder
	if cfg.EmbeddingURL != "" {
		encoder = embed.NewClient(cfg.EmbeddingURL, cfg.EmbeddingAPIKey, cfg.EmbeddingDim)
	}
	var maint *ingest.Maintenance
	if encoder != nil {
		maint = ingest.NewMaintenance(postings, profiles, encoder, deduper, assessCache, ingest.MaintenanceConfig{
			EmbedBatchSize: cfg.SemanticBatchSize,
			StaleWindow:    cfg.StalenessWindow,
		}, zlog)
	}

	// ── Matching + alerts ───────────────────────────────────────────────
	var assessor match.Assessor
	if cfg.GeminiAPIKey != "" {
		gen, err := rerank.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.RerankMaxRetries)
		if err != nil {
			zlog.Fatal("gemini client", zap.Error(err))
		}
		assessor = rerank.NewReranker(gen, assessCache, zlog)
	} else {
		zlog.Warn("GEMINI_API_KEY unset, stage 2 re-ranking disabled")
	}

	engine := match.NewEngine(postings, assessor, match.Config{
		Stage1MinSimilarity: cfg.Stage1MinSimilarity,
		Stage1TopN:          cfg.Stage1TopN,
		RerankTopK:          cfg.RerankTopK,
		RerankInFlight:      int64(cfg.RerankInFlight),
	}, zlog)

	alerts := alert.NewController(matches, alert.NewRedisSender(rdb), alert.NewRedisCounter(rdb),
		alert.Config{MinScore: cfg.AlertMinScore, DailyCap: cfg.AlertDailyCap}, zlog)

	cycle := ingest.NewCycle(profiles, engine, matches, alerts, ingest.CycleConfig{}, zlog)
	adjuster := feedback.NewAdjuster(matches, profiles, cfg.FeedbackAlpha, cfg.FeedbackEvery, zlog)

	// ── Dispatcher ──────────────────────────────────────────────────────
	wpool := worker.NewPool(cfg.WorkerPoolSize, cfg.WorkerQueueDepth, zlog)
	wpool.Start(ctx)

	sched := scheduler.New(wpool, zlog)
	jobs := []cronJob{
		{every(cfg.FastIngestEvery), worker.Job{Name: "ingest-api", Timeout: cfg.IngestJobTimeout, Run: func(ctx context.Context) error {
			ingestor.RunKind(ctx, source.KindAPI)
			return nil
		}}},
		{every(cfg.ScrapeIngestEvery), worker.Job{Name: "ingest-scrape", Timeout: cfg.IngestJobTimeout, Run: func(ctx context.Context) error {
			ingestor.RunKind(ctx, source.KindScrape)
			return nil
		}}},
		{every(cfg.MatchEvery), worker.Job{Name: "matching", Timeout: 30 * time.Minute, Run: cycle.RunMatching}},
		{"0 7 * * *", worker.Job{Name: "digest", Timeout: 10 * time.Minute, Run: cycle.RunDigest}},
		{"0 6 * * 0", worker.Job{Name: "feedback-adjust", Timeout: 10 * time.Minute, Run: func(ctx context.Context) error {
			return adjuster.RunAll(ctx, time.Now())
		}}},
	}
	if maint != nil {
		jobs = append(jobs,
			cronJob{"@every 1h", worker.Job{Name: "embedding-backfill", Timeout: 30 * time.Minute, Run: func(ctx context.Context) error {
				if err := maint.ProfileEmbeddingBackfill(ctx); err != nil {
					zlog.Warn("profile embedding backfill", zap.Error(err))
				}
				return maint.EmbeddingBackfill(ctx)
			}}},
			cronJob{"0 3 * * 0", worker.Job{Name: "url-health", Timeout: 30 * time.Minute, Run: maint.URLHealthCheck}},
			cronJob{"0 5 * * 0", worker.Job{Name: "stale-cleanup", Timeout: 10 * time.Minute, Run: maint.StaleCleanup}},
		)
	}
	for _, j := range jobs {
		if err := sched.Register(j.spec, j.job); err != nil {
			zlog.Fatal("schedule job", zap.String("job", j.job.Name), zap.Error(err))
		}
	}
	sched.Start()

	// ── Health endpoint ─────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(gate, ingestor, registry))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		zlog.Info("listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("http server", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http shutdown", zap.Error(err))
	}
	<-sched.Stop().Done()
	wpool.Stop()
	zlog.Info("stopped")
}

// buildQueries fans the configured keywords out over the configured
// locations. No locations means country-wide searches.
func buildQueries(cfg *config.Config) []source.Query {
	locations := cfg.IngestLocations
	if len(locations) == 0 {
		locations = []string{""}
	}
	var out []source.Query
	for _, kw := range cfg.IngestKeywords {
		for _, loc := range locations {
			out = append(out, source.Query{Keywords: kw, Location: loc})
		}
	}
	return out
}

// every formats a duration as a cron @every spec.
func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// seedCompliance registers the built-in sources with a conservative
// default posture; operator edits to existing rows are left alone.
func seedCompliance(ctx context.Context, records *compliance.PGRecordStore) error {
	now := time.Now()
	for _, rec := range []model.SourceComplianceRecord{
		{
			SourceKey:          "adzuna",
			Method:             "api",
			Allowed:            true,
			RobotsOK:           true,
			RateLimitSeconds:   1,
			MaxRequestsPerHour: 250,
			TOSReviewedAt:      &now,
			AutoDisableOnBlock: true,
		},
		{
			SourceKey:          "jobs_ch",
			Method:             "scraping",
			Allowed:            true,
			RobotsOK:           true,
			RateLimitSeconds:   5,
			MaxRequestsPerHour: 60,
			TOSReviewedAt:      &now,
			AutoDisableOnBlock: true,
		},
	} {
		if err := records.Seed(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func healthHandler(gate *compliance.Gate, ingestor *ingest.Ingestor, registry *source.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		breakers := make(map[string]string)
		for _, name := range registry.Names() {
			breakers[name] = ingestor.BreakerState(name).String()
		}

		status := "ok"
		sources, err := gate.Status(r.Context())
		if err != nil {
			status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":   status,
			"service":  "aggregator-service",
			"version":  version,
			"breakers": breakers,
			"sources":  sources,
		})
	}
}
