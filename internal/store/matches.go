package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobhunter/aggregator-service/internal/model"
)

const matchColumns = `id, user_id, job_hash, score_embedding, score_salary, score_location,
	score_recency, score_llm, score_final, explanation, matching_skills, missing_skills,
	feedback, notified, created_at`

// MatchStore persists scoring results and feedback signals. Each cycle
// inserts fresh rows; history is never overwritten.
type MatchStore struct {
	pool *pgxpool.Pool
}

func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{pool: pool}
}

// InsertBatch writes one cycle's results for a user. IDs are assigned here.
func (s *MatchStore) InsertBatch(ctx context.Context, results []model.MatchResult) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range results {
		r := &results[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		batch.Queue(`
			INSERT INTO matches (`+matchColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			r.ID, r.UserID, r.JobHash, r.ScoreEmbedding, r.ScoreSalary, r.ScoreLocation,
			r.ScoreRecency, r.ScoreLLM, r.ScoreFinal, r.Explanation, r.MatchingSkills, r.MissingSkills,
			r.Feedback, r.Notified, r.CreatedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert match batch: %w", err)
		}
	}
	return nil
}

// LatestForUser returns the newest match per posting for one user, highest
// score first.
func (s *MatchStore) LatestForUser(ctx context.Context, userID string, limit int) ([]model.MatchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (job_hash) `+matchColumns+`
		FROM matches
		WHERE user_id = $1
		ORDER BY job_hash, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out, err := scanMatches(rows)
	if err != nil {
		return nil, err
	}
	// DISTINCT ON forces job_hash ordering; re-rank by score here.
	sortByScoreDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UnnotifiedAbove returns matches from the current cycle that clear the
// alert score floor and have not been pushed yet.
func (s *MatchStore) UnnotifiedAbove(ctx context.Context, userID string, minScore float64, since time.Time) ([]model.MatchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE user_id = $1 AND score_final >= $2 AND NOT notified AND created_at >= $3
		ORDER BY score_final DESC`, userID, minScore, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMatches(rows)
}

// MarkNotified flags delivered matches so repeated cycles stay silent.
func (s *MatchStore) MarkNotified(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE matches SET notified = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// DigestSince returns a user's matches scored within the window, highest
// first, for the daily digest. Title and company are joined in so the
// digest can be grouped without a second lookup.
func (s *MatchStore) DigestSince(ctx context.Context, userID string, since time.Time, limit int) ([]model.MatchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.user_id, m.job_hash, j.title, j.company,
		       m.score_embedding, m.score_salary, m.score_location,
		       m.score_recency, m.score_llm, m.score_final, m.explanation,
		       m.matching_skills, m.missing_skills, m.feedback, m.notified, m.created_at
		FROM matches m
		JOIN jobs j ON j.hash = m.job_hash
		WHERE m.user_id = $1 AND m.created_at >= $2
		ORDER BY m.score_final DESC
		LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MatchResult
	for rows.Next() {
		var (
			r        model.MatchResult
			feedback *string
		)
		err := rows.Scan(&r.ID, &r.UserID, &r.JobHash, &r.JobTitle, &r.Company,
			&r.ScoreEmbedding, &r.ScoreSalary, &r.ScoreLocation,
			&r.ScoreRecency, &r.ScoreLLM, &r.ScoreFinal, &r.Explanation,
			&r.MatchingSkills, &r.MissingSkills, &feedback, &r.Notified, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		if feedback != nil {
			r.Feedback = *feedback
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordFeedback stores an explicit thumbs verdict on one match.
func (s *MatchStore) RecordFeedback(ctx context.Context, matchID, feedback string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE matches SET feedback = $2 WHERE id = $1`, matchID, feedback)
	if err != nil {
		return fmt.Errorf("record feedback on %s: %w", matchID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	return nil
}

// InsertSignal appends one behavioral signal for the weekly adjustment run.
func (s *MatchStore) InsertSignal(ctx context.Context, sig model.FeedbackSignal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback_signals (user_id, job_hash, action, duration_ms, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sig.UserID, sig.JobHash, string(sig.Action), sig.DurationMS, sig.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert feedback signal: %w", err)
	}
	return nil
}

// SignalsSince loads a user's signals in the window together with the
// sub-scores of the match they refer to, the adjuster's working set.
type SignalWithScores struct {
	Signal model.FeedbackSignal
	Scores model.MatchResult
}

func (s *MatchStore) SignalsSince(ctx context.Context, userID string, since time.Time) ([]SignalWithScores, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.user_id, f.job_hash, f.action, f.duration_ms, f.recorded_at,
		       m.score_embedding, m.score_salary, m.score_location, m.score_recency, m.score_llm
		FROM feedback_signals f
		JOIN LATERAL (
			SELECT score_embedding, score_salary, score_location, score_recency, score_llm
			FROM matches
			WHERE user_id = f.user_id AND job_hash = f.job_hash
			ORDER BY created_at DESC
			LIMIT 1
		) m ON TRUE
		WHERE f.user_id = $1 AND f.recorded_at >= $2
		ORDER BY f.recorded_at`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalWithScores
	for rows.Next() {
		var (
			sw     SignalWithScores
			action string
		)
		err := rows.Scan(&sw.Signal.UserID, &sw.Signal.JobHash, &action, &sw.Signal.DurationMS, &sw.Signal.RecordedAt,
			&sw.Scores.ScoreEmbedding, &sw.Scores.ScoreSalary, &sw.Scores.ScoreLocation, &sw.Scores.ScoreRecency, &sw.Scores.ScoreLLM)
		if err != nil {
			return nil, err
		}
		sw.Signal.Action = model.FeedbackAction(action)
		out = append(out, sw)
	}
	return out, rows.Err()
}

// UserIDsWithSignalsSince lists users who produced any signal in the window,
// the population the weekly adjustment visits.
func (s *MatchStore) UserIDsWithSignalsSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM feedback_signals WHERE recorded_at >= $1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanMatches(rows pgx.Rows) ([]model.MatchResult, error) {
	var out []model.MatchResult
	for rows.Next() {
		var (
			r        model.MatchResult
			feedback *string
		)
		err := rows.Scan(&r.ID, &r.UserID, &r.JobHash, &r.ScoreEmbedding, &r.ScoreSalary, &r.ScoreLocation,
			&r.ScoreRecency, &r.ScoreLLM, &r.ScoreFinal, &r.Explanation, &r.MatchingSkills, &r.MissingSkills,
			&feedback, &r.Notified, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		if feedback != nil {
			r.Feedback = *feedback
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func sortByScoreDesc(rs []model.MatchResult) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ScoreFinal > rs[j].ScoreFinal })
}
