// Package match implements the two-stage relevance pipeline. Stage 1 is a
// cheap vector similarity filter over the full active posting set; Stage 2
// sends only the survivors to the generative reranker under a fixed
// in-flight ceiling. One candidate's Stage 2 failure never aborts a cycle:
// the candidate keeps its Stage 1 similarity as the contextual sub-score.
package match

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"jobhunter/aggregator-service/internal/model"
	"jobhunter/aggregator-service/internal/rerank"
	"jobhunter/aggregator-service/internal/store"
)

// CandidateSource is the Stage 1 retrieval surface.
type CandidateSource interface {
	CandidatesByEmbedding(ctx context.Context, userVec []float32, minSimilarity float64, topN int) ([]store.Candidate, error)
}

// Assessor is the Stage 2 scoring surface.
type Assessor interface {
	Assess(ctx context.Context, profile *model.UserProfile, post *model.CanonicalPosting) (*rerank.Assessment, error)
}

// Config bounds both stages.
type Config struct {
	Stage1MinSimilarity float64 // similarity floor, candidates below are dropped
	Stage1TopN          int     // cap on Stage 1 survivors
	RerankTopK          int     // how many of the top survivors reach Stage 2
	RerankInFlight      int64   // generative in-flight ceiling
}

// Engine runs one user's matching cycle.
type Engine struct {
	candidates CandidateSource
	assessor   Assessor
	cfg        Config
	log        *zap.Logger
	now        func() time.Time
}

func NewEngine(candidates CandidateSource, assessor Assessor, cfg Config, log *zap.Logger) *Engine {
	if cfg.RerankInFlight <= 0 {
		cfg.RerankInFlight = 4
	}
	return &Engine{candidates: candidates, assessor: assessor, cfg: cfg, log: log, now: time.Now}
}

// Run scores postings against one profile and returns results sorted by
// final score, ready for persistence. A profile without a CV embedding
// returns no results and no error.
func (e *Engine) Run(ctx context.Context, profile *model.UserProfile) ([]model.MatchResult, error) {
	if len(profile.CVEmbedding) == 0 {
		return nil, nil
	}
	weights := profile.Weights
	if weights.Sum() == 0 {
		weights = model.DefaultWeights()
	}

	candidates, err := e.candidates.CandidatesByEmbedding(ctx, profile.CVEmbedding, e.cfg.Stage1MinSimilarity, e.cfg.Stage1TopN)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	now := e.now()
	results := make([]model.MatchResult, len(candidates))
	for i, c := range candidates {
		post := c.Posting
		matching, missing := SkillOverlap(profile.Skills, post.Tags)

		r := model.MatchResult{
			UserID:         profile.UserID,
			JobHash:        post.Hash,
			ScoreEmbedding: c.Similarity,
			ScoreSalary:    SalaryScore(profile.SalaryMin, profile.SalaryMax, post.SalaryMinCHF, post.SalaryMaxCHF),
			ScoreLocation:  LocationScore(profile.Locations, profile.RemotePref, &post),
			ScoreRecency:   RecencyScore(post.FirstSeenAt, now),
			// Stage 1 similarity stands in for the contextual score until
			// (unless) Stage 2 replaces it.
			ScoreLLM:       c.Similarity,
			MatchingSkills: matching,
			MissingSkills:  missing,
			CreatedAt:      now,
		}
		r.ScoreFinal = FinalScore(weights, r.ScoreEmbedding, r.ScoreLLM, r.ScoreSalary, r.ScoreLocation, r.ScoreRecency)
		results[i] = r
	}

	sortByFinal(results)

	// Without an assessor Stage 1 similarity remains the contextual score.
	if e.assessor != nil {
		topK := e.cfg.RerankTopK
		if topK <= 0 || topK > len(results) {
			topK = len(results)
		}
		e.rerankTop(ctx, profile, candidates, results[:topK], weights)
		sortByFinal(results)
	}
	return results, nil
}

// rerankTop runs Stage 2 over the leading results in place. Calls are
// bounded by a semaphore so quota pressure queues instead of failing; a
// quota error stops launching further calls for this cycle.
func (e *Engine) rerankTop(ctx context.Context, profile *model.UserProfile, candidates []store.Candidate, top []model.MatchResult, weights model.Weights) {
	byHash := make(map[string]*model.CanonicalPosting, len(candidates))
	for i := range candidates {
		byHash[candidates[i].Posting.Hash] = &candidates[i].Posting
	}

	sem := semaphore.NewWeighted(e.cfg.RerankInFlight)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		quotaHit bool
		failures int
	)

	for i := range top {
		mu.Lock()
		stop := quotaHit
		mu.Unlock()
		if stop {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(r *model.MatchResult) {
			defer wg.Done()
			defer sem.Release(1)

			post := byHash[r.JobHash]
			assessment, err := e.assessor.Assess(ctx, profile, post)
			if err != nil {
				mu.Lock()
				failures++
				if errors.Is(err, rerank.ErrQuotaExceeded) {
					quotaHit = true
				}
				mu.Unlock()
				e.log.Warn("stage 2 assessment failed, keeping stage 1 score",
					zap.String("user", profile.UserID),
					zap.String("job", r.JobHash),
					zap.Error(err))
				return
			}

			mu.Lock()
			r.ScoreLLM = assessment.Score
			r.Explanation = assessment.Explanation
			if len(assessment.MatchingSkills) > 0 {
				r.MatchingSkills = assessment.MatchingSkills
			}
			if len(assessment.MissingSkills) > 0 {
				r.MissingSkills = assessment.MissingSkills
			}
			r.ScoreFinal = FinalScore(weights, r.ScoreEmbedding, r.ScoreLLM, r.ScoreSalary, r.ScoreLocation, r.ScoreRecency)
			mu.Unlock()
		}(&top[i])
	}
	wg.Wait()

	if failures > 0 {
		e.log.Warn("matching cycle finished with degraded candidates",
			zap.String("user", profile.UserID),
			zap.Int("failed", failures),
			zap.Int("reranked", len(top)-failures))
	}
}

// sortByFinal orders by final score descending; stable so equal scores keep
// their similarity order.
func sortByFinal(rs []model.MatchResult) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].ScoreFinal > rs[j].ScoreFinal })
}
