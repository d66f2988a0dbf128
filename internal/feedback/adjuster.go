// Package feedback drifts a user's scoring weights toward demonstrated
// preference. Signals such as applied or dismissed accumulate into a
// per-factor reinforcement, which nudges the weights multiplicatively and
// renormalizes so they always sum to 1.0.
package feedback

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/model"
	"jobhunter/aggregator-service/internal/store"
)

// SignalStore is the persistence surface the adjuster reads and writes.
type SignalStore interface {
	UserIDsWithSignalsSince(ctx context.Context, since time.Time) ([]string, error)
	SignalsSince(ctx context.Context, userID string, since time.Time) ([]store.SignalWithScores, error)
}

// WeightStore persists adjusted weights.
type WeightStore interface {
	Get(ctx context.Context, userID string) (*model.UserProfile, error)
	UpdateWeights(ctx context.Context, userID string, w model.Weights) error
}

// Adjuster runs the periodic weight adjustment pass.
type Adjuster struct {
	signals SignalStore
	weights WeightStore
	alpha   float64 // drift rate per pass
	window  time.Duration
	log     *zap.Logger
}

func NewAdjuster(signals SignalStore, weights WeightStore, alpha float64, window time.Duration, log *zap.Logger) *Adjuster {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.2
	}
	return &Adjuster{signals: signals, weights: weights, alpha: alpha, window: window, log: log}
}

// RunAll adjusts every user who produced signals inside the window. One
// user's failure is logged and skipped, never fatal to the pass.
func (a *Adjuster) RunAll(ctx context.Context, now time.Time) error {
	since := now.Add(-a.window)
	userIDs, err := a.signals.UserIDsWithSignalsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("list users with signals: %w", err)
	}

	for _, userID := range userIDs {
		if err := a.RunUser(ctx, userID, since); err != nil {
			a.log.Error("weight adjustment failed",
				zap.String("user", userID), zap.Error(err))
		}
	}
	return nil
}

// RunUser recomputes one user's weights from their windowed signals.
func (a *Adjuster) RunUser(ctx context.Context, userID string, since time.Time) error {
	signals, err := a.signals.SignalsSince(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("load signals: %w", err)
	}
	if len(signals) == 0 {
		return nil
	}

	profile, err := a.weights.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	adjusted := Adjust(profile.Weights, signals, a.alpha)
	if adjusted == profile.Weights {
		return nil
	}

	if err := a.weights.UpdateWeights(ctx, userID, adjusted); err != nil {
		return fmt.Errorf("persist weights: %w", err)
	}
	a.log.Info("scoring weights adjusted",
		zap.String("user", userID),
		zap.Int("signals", len(signals)),
		zap.Float64("embedding", adjusted.Embedding),
		zap.Float64("llm", adjusted.LLM),
		zap.Float64("salary", adjusted.Salary),
		zap.Float64("location", adjusted.Location),
		zap.Float64("recency", adjusted.Recency))
	return nil
}

// Adjust derives new weights from the current ones and a batch of signals.
// Each signal's delta is multiplied by the sub-scores of the match it
// refers to, crediting the factors that drove the recommendation. The
// per-factor reinforcement is clamped to [-1, 1], applied multiplicatively
// scaled by alpha, and the result renormalized to sum 1.0.
func Adjust(w model.Weights, signals []store.SignalWithScores, alpha float64) model.Weights {
	if w.Sum() == 0 {
		w = model.DefaultWeights()
	}

	var rEmbedding, rLLM, rSalary, rLocation, rRecency float64
	for _, s := range signals {
		delta, ok := model.SignalDelta[s.Signal.Action]
		if !ok {
			continue
		}
		rEmbedding += delta * s.Scores.ScoreEmbedding
		rLLM += delta * s.Scores.ScoreLLM
		rSalary += delta * s.Scores.ScoreSalary
		rLocation += delta * s.Scores.ScoreLocation
		rRecency += delta * s.Scores.ScoreRecency
	}

	if rEmbedding == 0 && rLLM == 0 && rSalary == 0 && rLocation == 0 && rRecency == 0 {
		return w
	}

	adjusted := model.Weights{
		Embedding: w.Embedding * (1 + alpha*clamp(rEmbedding)),
		LLM:       w.LLM * (1 + alpha*clamp(rLLM)),
		Salary:    w.Salary * (1 + alpha*clamp(rSalary)),
		Location:  w.Location * (1 + alpha*clamp(rLocation)),
		Recency:   w.Recency * (1 + alpha*clamp(rRecency)),
	}
	return adjusted.Normalized()
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
