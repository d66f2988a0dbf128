// Package config loads and validates runtime configuration at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the aggregator service.
type Config struct {
	Port        string
	DatabaseURL string
	PGMaxConns  int32
	RedisURL    string

	LogJSON  bool
	LogDebug bool

	// Ingestion cadences.
	FastIngestEvery   time.Duration // API providers
	ScrapeIngestEvery time.Duration // page-scraping providers
	IngestJobTimeout  time.Duration

	// Source adapters and their searches.
	AdzunaAppID     string
	AdzunaAppKey    string
	AdzunaCountry   string
	IngestKeywords  []string
	IngestLocations []string

	// Circuit breaker defaults, per source.
	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration

	// Embedding provider.
	EmbeddingURL    string
	EmbeddingAPIKey string
	EmbeddingDim    int

	// Generative re-ranking provider.
	GeminiAPIKey     string
	GeminiModel      string
	RerankMaxRetries int
	RerankInFlight   int // in-flight ceiling against the provider quota
	RerankCacheTTL   time.Duration

	// Matching.
	Stage1MinSimilarity float64
	Stage1TopN          int
	RerankTopK          int
	MatchEvery          time.Duration

	// Semantic dedup.
	SemanticThreshold float64
	SemanticBatchSize int

	// Feedback adjustment.
	FeedbackAlpha float64
	FeedbackEvery time.Duration

	// Alerts.
	AlertMinScore    float64
	AlertDailyCap    int
	StalenessWindow  time.Duration
	WorkerPoolSize   int
	WorkerQueueDepth int
}

// Load reads environment variables via viper and returns a validated Config.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8084")
	v.SetDefault("PG_MAX_CONNS", 8)
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("LOG_DEBUG", false)

	v.SetDefault("FAST_INGEST_INTERVAL", "30m")
	v.SetDefault("SCRAPE_INGEST_INTERVAL", "6h")
	v.SetDefault("INGEST_JOB_TIMEOUT", "10m")

	v.SetDefault("BREAKER_FAILURE_THRESHOLD", 5)
	v.SetDefault("BREAKER_RECOVERY_TIMEOUT", "60s")

	v.SetDefault("EMBEDDING_URL", "")
	v.SetDefault("EMBEDDING_DIM", 384)

	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("RERANK_MAX_RETRIES", 2)
	v.SetDefault("RERANK_IN_FLIGHT", 4)
	v.SetDefault("RERANK_CACHE_TTL", "168h") // 7 days

	v.SetDefault("ADZUNA_COUNTRY", "ch")
	v.SetDefault("INGEST_KEYWORDS", "software engineer")
	v.SetDefault("INGEST_LOCATIONS", "")

	v.SetDefault("STAGE1_MIN_SIMILARITY", 0.4)
	v.SetDefault("STAGE1_TOP_N", 200)
	v.SetDefault("RERANK_TOP_K", 30)
	v.SetDefault("MATCH_INTERVAL", "1h")

	v.SetDefault("SEMANTIC_DEDUP_THRESHOLD", 0.95)
	v.SetDefault("SEMANTIC_DEDUP_BATCH_SIZE", 200)

	v.SetDefault("FEEDBACK_ALPHA", 0.2)
	v.SetDefault("FEEDBACK_INTERVAL", "168h") // weekly

	v.SetDefault("ALERT_MIN_SCORE", 75.0)
	v.SetDefault("ALERT_DAILY_CAP", 5)
	v.SetDefault("STALENESS_WINDOW", "336h") // 14 days

	v.SetDefault("WORKER_POOL_SIZE", 4)
	v.SetDefault("WORKER_QUEUE_DEPTH", 64)

	dbURL := v.GetString("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := v.GetString("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg := &Config{
		Port:        v.GetString("PORT"),
		DatabaseURL: dbURL,
		PGMaxConns:  v.GetInt32("PG_MAX_CONNS"),
		RedisURL:    redisURL,

		LogJSON:  v.GetBool("LOG_JSON"),
		LogDebug: v.GetBool("LOG_DEBUG"),

		FastIngestEvery:   v.GetDuration("FAST_INGEST_INTERVAL"),
		ScrapeIngestEvery: v.GetDuration("SCRAPE_INGEST_INTERVAL"),
		IngestJobTimeout:  v.GetDuration("INGEST_JOB_TIMEOUT"),

		BreakerFailureThreshold: v.GetInt("BREAKER_FAILURE_THRESHOLD"),
		BreakerRecoveryTimeout:  v.GetDuration("BREAKER_RECOVERY_TIMEOUT"),

		EmbeddingURL:    v.GetString("EMBEDDING_URL"),
		EmbeddingAPIKey: v.GetString("EMBEDDING_API_KEY"),
		EmbeddingDim:    v.GetInt("EMBEDDING_DIM"),

		GeminiAPIKey:     v.GetString("GEMINI_API_KEY"),
		GeminiModel:      v.GetString("GEMINI_MODEL"),
		RerankMaxRetries: v.GetInt("RERANK_MAX_RETRIES"),
		RerankInFlight:   v.GetInt("RERANK_IN_FLIGHT"),
		RerankCacheTTL:   v.GetDuration("RERANK_CACHE_TTL"),

		AdzunaAppID:     v.GetString("ADZUNA_APP_ID"),
		AdzunaAppKey:    v.GetString("ADZUNA_APP_KEY"),
		AdzunaCountry:   v.GetString("ADZUNA_COUNTRY"),
		IngestKeywords:  splitList(v.GetString("INGEST_KEYWORDS")),
		IngestLocations: splitList(v.GetString("INGEST_LOCATIONS")),

		Stage1MinSimilarity: v.GetFloat64("STAGE1_MIN_SIMILARITY"),
		Stage1TopN:          v.GetInt("STAGE1_TOP_N"),
		RerankTopK:          v.GetInt("RERANK_TOP_K"),
		MatchEvery:          v.GetDuration("MATCH_INTERVAL"),

		SemanticThreshold: v.GetFloat64("SEMANTIC_DEDUP_THRESHOLD"),
		SemanticBatchSize: v.GetInt("SEMANTIC_DEDUP_BATCH_SIZE"),

		FeedbackAlpha: v.GetFloat64("FEEDBACK_ALPHA"),
		FeedbackEvery: v.GetDuration("FEEDBACK_INTERVAL"),

		AlertMinScore:   v.GetFloat64("ALERT_MIN_SCORE"),
		AlertDailyCap:   v.GetInt("ALERT_DAILY_CAP"),
		StalenessWindow: v.GetDuration("STALENESS_WINDOW"),

		WorkerPoolSize:   v.GetInt("WORKER_POOL_SIZE"),
		WorkerQueueDepth: v.GetInt("WORKER_QUEUE_DEPTH"),
	}

	if cfg.Stage1MinSimilarity < 0 || cfg.Stage1MinSimilarity > 1 {
		return nil, fmt.Errorf("STAGE1_MIN_SIMILARITY must be within [0, 1], got %v", cfg.Stage1MinSimilarity)
	}
	if cfg.SemanticThreshold < 0 || cfg.SemanticThreshold > 1 {
		return nil, fmt.Errorf("SEMANTIC_DEDUP_THRESHOLD must be within [0, 1], got %v", cfg.SemanticThreshold)
	}
	if cfg.WorkerPoolSize < 1 {
		return nil, fmt.Errorf("WORKER_POOL_SIZE must be a positive integer, got %d", cfg.WorkerPoolSize)
	}

	return cfg, nil
}

// splitList parses a comma-separated env value into trimmed entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
