package ingest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/dedup"
	"jobhunter/aggregator-service/internal/embed"
	"jobhunter/aggregator-service/internal/model"
	"jobhunter/aggregator-service/internal/store"
)

// PostingMaintenance is the posting-store surface the maintenance jobs use.
type PostingMaintenance interface {
	HashesWithoutEmbedding(ctx context.Context, limit int) ([]string, error)
	GetByHash(ctx context.Context, hash string) (*model.CanonicalPosting, error)
	SetEmbedding(ctx context.Context, hash string, embedding []float32) error
	DeactivateStale(ctx context.Context, olderThan time.Time) (int64, error)
	URLCheckTargets(ctx context.Context, limit int) ([]store.URLCheckTarget, error)
	RecordURLCheck(ctx context.Context, hash string, alive bool, at time.Time) error
}

// ProfileMaintenance is the profile-store surface for CV embedding backfill.
type ProfileMaintenance interface {
	MissingCVEmbedding(ctx context.Context, limit int) ([]store.ProfileCV, error)
	SetCVEmbedding(ctx context.Context, userID string, embedding []float32) error
}

// AssessmentInvalidator drops cached generative assessments for a user.
// rerank.RedisCache implements it.
type AssessmentInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// MaintenanceConfig tunes the batch jobs.
type MaintenanceConfig struct {
	EmbedBatchSize int           // postings encoded per request
	EmbedPause     time.Duration // pause between encode batches
	StaleWindow    time.Duration // postings unseen this long go inactive
	URLCheckLimit  int           // links probed per health run
}

// Maintenance bundles the recurring batch jobs that keep the posting corpus
// embedded, deduplicated and fresh.
type Maintenance struct {
	postings    PostingMaintenance
	profiles    ProfileMaintenance
	encoder     embed.Encoder
	dedup       *dedup.Deduplicator
	invalidator AssessmentInvalidator // nil when no assessment cache runs
	httpc       *http.Client
	cfg         MaintenanceConfig
	log         *zap.Logger
	now         func() time.Time
}

func NewMaintenance(postings PostingMaintenance, profiles ProfileMaintenance, encoder embed.Encoder, d *dedup.Deduplicator, invalidator AssessmentInvalidator, cfg MaintenanceConfig, log *zap.Logger) *Maintenance {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 32
	}
	if cfg.EmbedPause <= 0 {
		cfg.EmbedPause = time.Second
	}
	if cfg.StaleWindow <= 0 {
		cfg.StaleWindow = 14 * 24 * time.Hour
	}
	if cfg.URLCheckLimit <= 0 {
		cfg.URLCheckLimit = 200
	}
	return &Maintenance{
		postings:    postings,
		profiles:    profiles,
		encoder:     encoder,
		dedup:       d,
		invalidator: invalidator,
		httpc:       &http.Client{Timeout: 10 * time.Second},
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// EmbeddingBackfill encodes postings that have no embedding yet, then runs
// each fresh posting through the semantic duplicate pass. Batches are paced
// so the encoder endpoint is not hammered.
func (m *Maintenance) EmbeddingBackfill(ctx context.Context) error {
	var encoded, linked int
	for {
		hashes, err := m.postings.HashesWithoutEmbedding(ctx, m.cfg.EmbedBatchSize)
		if err != nil {
			return fmt.Errorf("list unembedded postings: %w", err)
		}
		if len(hashes) == 0 {
			break
		}

		posts := make([]*model.CanonicalPosting, 0, len(hashes))
		texts := make([]string, 0, len(hashes))
		for _, h := range hashes {
			p, err := m.postings.GetByHash(ctx, h)
			if err != nil {
				m.log.Warn("load posting for embedding failed", zap.String("hash", h), zap.Error(err))
				continue
			}
			posts = append(posts, p)
			texts = append(texts, embed.PostingText(p.Title, p.Company, p.Description, p.Tags))
		}
		if len(posts) == 0 {
			break
		}

		vecs, err := m.encoder.Encode(ctx, texts)
		if err != nil {
			return fmt.Errorf("encode batch: %w", err)
		}

		for i, p := range posts {
			if err := m.postings.SetEmbedding(ctx, p.Hash, vecs[i]); err != nil {
				m.log.Warn("store embedding failed", zap.String("hash", p.Hash), zap.Error(err))
				continue
			}
			encoded++

			p.Embedding = vecs[i]
			canonical, err := m.dedup.LinkSemantic(ctx, p)
			if err != nil {
				m.log.Warn("semantic link failed", zap.String("hash", p.Hash), zap.Error(err))
			} else if canonical != "" {
				linked++
			}
		}

		if len(hashes) < m.cfg.EmbedBatchSize {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.EmbedPause):
		}
	}

	if encoded > 0 {
		m.log.Info("embedding backfill done",
			zap.Int("encoded", encoded),
			zap.Int("semantic_dups", linked))
	}
	return nil
}

// ProfileEmbeddingBackfill encodes CV text for profiles whose embedding is
// missing, making them visible to the matching cycle.
func (m *Maintenance) ProfileEmbeddingBackfill(ctx context.Context) error {
	pending, err := m.profiles.MissingCVEmbedding(ctx, m.cfg.EmbedBatchSize)
	if err != nil {
		return fmt.Errorf("list profiles without embedding: %w", err)
	}
	for _, p := range pending {
		vecs, err := m.encoder.Encode(ctx, []string{p.CVText})
		if err != nil {
			return fmt.Errorf("encode cv for %s: %w", p.UserID, err)
		}
		if err := m.profiles.SetCVEmbedding(ctx, p.UserID, vecs[0]); err != nil {
			m.log.Warn("store cv embedding failed", zap.String("user", p.UserID), zap.Error(err))
			continue
		}
		// A new CV makes cached assessments for this user stale.
		if m.invalidator != nil {
			if err := m.invalidator.InvalidateUser(ctx, p.UserID); err != nil {
				m.log.Warn("assessment cache invalidation failed", zap.String("user", p.UserID), zap.Error(err))
			}
		}
	}
	if len(pending) > 0 {
		m.log.Info("cv embeddings backfilled", zap.Int("profiles", len(pending)))
	}
	return nil
}

// StaleCleanup deactivates postings the sources stopped returning.
func (m *Maintenance) StaleCleanup(ctx context.Context) error {
	cutoff := m.now().Add(-m.cfg.StaleWindow)
	n, err := m.postings.DeactivateStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("deactivate stale postings: %w", err)
	}
	if n > 0 {
		m.log.Info("stale postings deactivated", zap.Int64("count", n))
	}
	return nil
}

// URLHealthCheck probes the least recently checked posting links. A 404 or
// 410 marks the posting dead; transient failures leave it untouched so the
// next run retries.
func (m *Maintenance) URLHealthCheck(ctx context.Context) error {
	targets, err := m.postings.URLCheckTargets(ctx, m.cfg.URLCheckLimit)
	if err != nil {
		return fmt.Errorf("list url check targets: %w", err)
	}

	var dead int
	for _, t := range targets {
		alive, ok := m.probeURL(ctx, t.URL)
		if !ok {
			continue
		}
		if err := m.postings.RecordURLCheck(ctx, t.Hash, alive, m.now()); err != nil {
			m.log.Warn("record url check failed", zap.String("hash", t.Hash), zap.Error(err))
			continue
		}
		if !alive {
			dead++
		}
	}
	if len(targets) > 0 {
		m.log.Info("url health check done",
			zap.Int("checked", len(targets)),
			zap.Int("dead", dead))
	}
	return nil
}

// probeURL HEADs the link. The second return is false when no definitive
// answer was obtained.
func (m *Maintenance) probeURL(ctx context.Context, url string) (alive, ok bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, false
	}
	resp, err := m.httpc.Do(req)
	if err != nil {
		return false, false
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return false, true
	default:
		return true, true
	}
}
