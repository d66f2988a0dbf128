package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/model"
)

// Assessment is the generative verdict on one (CV, posting) pair.
type Assessment struct {
	Score          float64  `json:"score"` // [0, 1]
	Explanation    string   `json:"explanation"`
	MatchingSkills []string `json:"matchingSkills"`
	MissingSkills  []string `json:"missingSkills"`
}

// ContentGenerator is the model call surface; satisfied by *Generator and by
// test stubs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Cache stores assessments between cycles.
type Cache interface {
	Get(ctx context.Context, key string) (*Assessment, error)
	Set(ctx context.Context, key string, a *Assessment) error
	InvalidateUser(ctx context.Context, userID string) error
	Key(ctx context.Context, userID, jobHash, cvText string, skills []string) string
}

// Reranker runs the generative stage with a cache in front; the model is
// only consulted on a miss.
type Reranker struct {
	generator ContentGenerator
	cache     Cache
	log       *zap.Logger
}

func NewReranker(generator ContentGenerator, cache Cache, log *zap.Logger) *Reranker {
	return &Reranker{generator: generator, cache: cache, log: log}
}

// Assess evaluates one shortlisted posting against a profile. Cache hits
// skip the model entirely; quota errors pass through for the engine's
// degrade path.
func (r *Reranker) Assess(ctx context.Context, profile *model.UserProfile, post *model.CanonicalPosting) (*Assessment, error) {
	key := r.cache.Key(ctx, profile.UserID, post.Hash, profile.CVText, profile.Skills)
	if cached, err := r.cache.Get(ctx, key); err != nil {
		r.log.Warn("rerank cache read failed", zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	raw, err := r.generator.GenerateContent(ctx, buildPrompt(profile, post))
	if err != nil {
		return nil, err
	}

	assessment, err := parseAssessment(raw)
	if err != nil {
		return nil, fmt.Errorf("posting %s: %w", post.Hash, err)
	}

	if err := r.cache.Set(ctx, key, assessment); err != nil {
		r.log.Warn("rerank cache write failed", zap.Error(err))
	}
	return assessment, nil
}

const promptTemplate = `You are evaluating how well a job posting fits a candidate.

CANDIDATE PROFILE:
{{PROFILE_JSON}}

JOB POSTING:
{{JOB_JSON}}

Respond with a single JSON object and nothing else:
{
  "score": <integer 0-100, overall fit>,
  "explanation": "<one or two sentences on why>",
  "matching_skills": ["<skills the candidate has that the job needs>"],
  "missing_skills": ["<skills the job needs that the candidate lacks>"]
}`

func buildPrompt(profile *model.UserProfile, post *model.CanonicalPosting) string {
	profilePayload := map[string]any{
		"title":  profile.Title,
		"skills": profile.Skills,
		"cv":     profile.CVText,
	}
	jobPayload := map[string]any{
		"title":       post.Title,
		"company":     post.Company,
		"location":    post.Location,
		"seniority":   post.Seniority,
		"contract":    post.ContractType,
		"tags":        post.Tags,
		"description": post.Description,
	}
	profileJSON, _ := json.MarshalIndent(profilePayload, "", "  ")
	jobJSON, _ := json.MarshalIndent(jobPayload, "", "  ")

	prompt := strings.ReplaceAll(promptTemplate, "{{PROFILE_JSON}}", string(profileJSON))
	return strings.ReplaceAll(prompt, "{{JOB_JSON}}", string(jobJSON))
}

func parseAssessment(raw string) (*Assessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		score = 0
	}
	// Accept either a 0-100 or an already-normalized 0-1 score.
	if score > 1 {
		score /= 100
	}
	score = math.Max(0, math.Min(1, score))

	return &Assessment{
		Score:          score,
		Explanation:    coerceString(data["explanation"]),
		MatchingSkills: coerceStrings(data["matching_skills"]),
		MissingSkills:  coerceStrings(data["missing_skills"]),
	}, nil
}

// extractJSON strips markdown code fences models like to wrap JSON in.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(strings.Trim(raw, "`"))
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	default:
		if v == nil {
			return ""
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func coerceStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
