package model

import (
	"fmt"
	"math"
	"time"
)

// WeightSumTolerance is the accepted deviation from 1.0 for scoring weights.
const WeightSumTolerance = 0.001

// Weights holds the five per-factor scoring weights. They must sum to 1.0
// within WeightSumTolerance; callers submitting anything else get a
// *WeightsError, never a silent renormalization.
type Weights struct {
	Embedding float64 `json:"embedding"`
	LLM       float64 `json:"llm"`
	Salary    float64 `json:"salary"`
	Location  float64 `json:"location"`
	Recency   float64 `json:"recency"`
}

// DefaultWeights returns the out-of-the-box factor weights.
func DefaultWeights() Weights {
	return Weights{
		Embedding: 0.40,
		LLM:       0.10,
		Salary:    0.20,
		Location:  0.15,
		Recency:   0.15,
	}
}

// WeightsError reports invalid caller-supplied scoring weights.
type WeightsError struct{ Msg string }

func (e *WeightsError) Error() string { return e.Msg }

// Validate checks that every weight is within [0, 1] and that the five
// weights sum to 1.0 within tolerance.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"embedding": w.Embedding,
		"llm":       w.LLM,
		"salary":    w.Salary,
		"location":  w.Location,
		"recency":   w.Recency,
	} {
		if v < 0 || v > 1 {
			return &WeightsError{Msg: fmt.Sprintf("weight %q must be within [0, 1], got %v", name, v)}
		}
	}
	sum := w.Sum()
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return &WeightsError{Msg: fmt.Sprintf("weights must sum to 1.0 (±%v), got %v", WeightSumTolerance, sum)}
	}
	return nil
}

// Sum returns the total of the five weights.
func (w Weights) Sum() float64 {
	return w.Embedding + w.LLM + w.Salary + w.Location + w.Recency
}

// Normalized returns a copy scaled so the weights sum to exactly 1.0.
// Used by the Feedback Adjuster after drift; zero-sum input returns defaults.
func (w Weights) Normalized() Weights {
	sum := w.Sum()
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Embedding: w.Embedding / sum,
		LLM:       w.LLM / sum,
		Salary:    w.Salary / sum,
		Location:  w.Location / sum,
		Recency:   w.Recency / sum,
	}
}

// RemotePreference is the user's stance on remote work.
type RemotePreference string

const (
	RemoteAny    RemotePreference = "any"
	RemoteOnly   RemotePreference = "remote_only"
	RemoteHybrid RemotePreference = "hybrid"
	RemoteOnsite RemotePreference = "onsite"
)

// UserProfile is the per-user matching context. Weights drift via the
// Feedback Adjuster; the profile is otherwise mutated only by explicit
// settings updates.
type UserProfile struct {
	UserID       string           `json:"userId"`
	Title        string           `json:"title,omitempty"`
	Skills       []string         `json:"skills"`
	Locations    []string         `json:"locations"`
	SalaryMin    *int             `json:"salaryMin,omitempty"`
	SalaryMax    *int             `json:"salaryMax,omitempty"`
	RemotePref   RemotePreference `json:"remotePref"`
	CVText       string           `json:"-"`
	CVEmbedding  []float32        `json:"-"`
	Weights      Weights          `json:"weights"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// MatchResult is the persisted output of one (user, posting) scoring pass.
// Later cycles write new rows instead of overwriting so history is retained.
type MatchResult struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	JobHash        string    `json:"jobHash"`
	JobTitle       string    `json:"jobTitle,omitempty"` // joined from the posting, not persisted
	Company        string    `json:"company,omitempty"`  // joined from the posting, not persisted
	ScoreEmbedding float64   `json:"scoreEmbedding"`
	ScoreSalary    float64   `json:"scoreSalary"`
	ScoreLocation  float64   `json:"scoreLocation"`
	ScoreRecency   float64   `json:"scoreRecency"`
	ScoreLLM       float64   `json:"scoreLlm"`
	ScoreFinal     float64   `json:"scoreFinal"` // weighted sum, [0, 100]
	Explanation    string    `json:"explanation,omitempty"`
	MatchingSkills []string  `json:"matchingSkills"`
	MissingSkills  []string  `json:"missingSkills"`
	Feedback       string    `json:"feedback,omitempty"` // thumbs_up | thumbs_down, empty until given
	Notified       bool      `json:"notified"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FeedbackAction is a single explicit or implicit user signal on a match.
type FeedbackAction string

const (
	ActionOpened     FeedbackAction = "opened"
	ActionReadTime   FeedbackAction = "read_time"
	ActionSaved      FeedbackAction = "saved"
	ActionApplied    FeedbackAction = "applied"
	ActionSkipped    FeedbackAction = "skipped"
	ActionDismissed  FeedbackAction = "dismissed"
	ActionThumbsUp   FeedbackAction = "thumbs_up"
	ActionThumbsDown FeedbackAction = "thumbs_down"
)

// SignalDelta maps each action to its fixed signed weight delta.
var SignalDelta = map[FeedbackAction]float64{
	ActionOpened:     0.1,
	ActionReadTime:   0.2,
	ActionSaved:      0.5,
	ActionApplied:    1.0,
	ActionSkipped:    -0.1,
	ActionDismissed:  -0.3,
	ActionThumbsUp:   0.5,
	ActionThumbsDown: -0.5,
}

// FeedbackSignal is one recorded action on a (user, job) pair.
type FeedbackSignal struct {
	UserID     string         `json:"userId"`
	JobHash    string         `json:"jobHash"`
	Action     FeedbackAction `json:"action"`
	DurationMS int            `json:"durationMs,omitempty"`
	RecordedAt time.Time      `json:"recordedAt"`
}
