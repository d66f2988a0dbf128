package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobhunter/aggregator-service/internal/model"
)

const profileColumns = `user_id, title, skills, locations, salary_min, salary_max,
	remote_pref, cv_text, weights, updated_at`

// ProfileStore persists user matching profiles. The CV embedding lives in
// its own vector column and is loaded separately from the JSON-ish rest.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// Get loads one profile including its CV embedding.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`, cv_embedding::text
		FROM user_profiles WHERE user_id = $1`, userID)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	return p, err
}

// List loads every profile that has a CV embedding, the population the
// matching cycle iterates over.
func (s *ProfileStore) List(ctx context.Context) ([]model.UserProfile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+profileColumns+`, cv_embedding::text
		FROM user_profiles
		WHERE cv_embedding IS NOT NULL
		ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ProfileCV pairs a user with the CV text awaiting an embedding.
type ProfileCV struct {
	UserID string
	CVText string
}

// MissingCVEmbedding lists profiles with CV text but no embedding yet, the
// input to the profile embedding backfill.
func (s *ProfileStore) MissingCVEmbedding(ctx context.Context, limit int) ([]ProfileCV, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, cv_text
		FROM user_profiles
		WHERE cv_embedding IS NULL AND cv_text <> ''
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProfileCV
	for rows.Next() {
		var p ProfileCV
		if err := rows.Scan(&p.UserID, &p.CVText); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert writes the profile fields a settings update may change. The
// weights are validated before touching the row.
func (s *ProfileStore) Upsert(ctx context.Context, p *model.UserProfile) error {
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	weightsJSON, err := json.Marshal(p.Weights)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE
		SET title = EXCLUDED.title, skills = EXCLUDED.skills,
		    locations = EXCLUDED.locations, salary_min = EXCLUDED.salary_min,
		    salary_max = EXCLUDED.salary_max, remote_pref = EXCLUDED.remote_pref,
		    cv_text = EXCLUDED.cv_text, weights = EXCLUDED.weights,
		    updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Title, p.Skills, p.Locations, p.SalaryMin, p.SalaryMax,
		string(p.RemotePref), p.CVText, weightsJSON, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.UserID, err)
	}
	return nil
}

// UpdateWeights persists adjusted scoring weights after validation.
func (s *ProfileStore) UpdateWeights(ctx context.Context, userID string, w model.Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	weightsJSON, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_profiles SET weights = $2, updated_at = now() WHERE user_id = $1`,
		userID, weightsJSON)
	if err != nil {
		return fmt.Errorf("update weights for %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	return nil
}

// SetCVEmbedding stores the user vector recomputed after a CV change.
func (s *ProfileStore) SetCVEmbedding(ctx context.Context, userID string, embedding []float32) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE user_profiles SET cv_embedding = $2::vector, updated_at = now() WHERE user_id = $1`,
		userID, vectorParam(embedding))
	if err != nil {
		return fmt.Errorf("set cv embedding for %s: %w", userID, err)
	}
	return nil
}

func scanProfile(row pgx.Row) (*model.UserProfile, error) {
	var (
		p           model.UserProfile
		remotePref  string
		weightsJSON []byte
		embText     *string
	)
	err := row.Scan(&p.UserID, &p.Title, &p.Skills, &p.Locations, &p.SalaryMin, &p.SalaryMax,
		&remotePref, &p.CVText, &weightsJSON, &p.UpdatedAt, &embText)
	if err != nil {
		return nil, err
	}
	p.RemotePref = model.RemotePreference(remotePref)
	if len(weightsJSON) > 0 {
		if err := json.Unmarshal(weightsJSON, &p.Weights); err != nil {
			return nil, fmt.Errorf("decode weights for %s: %w", p.UserID, err)
		}
	} else {
		p.Weights = model.DefaultWeights()
	}
	if embText != nil {
		// pgvector text form is JSON-compatible.
		if err := json.Unmarshal([]byte(*embText), &p.CVEmbedding); err != nil {
			return nil, fmt.Errorf("decode cv embedding for %s: %w", p.UserID, err)
		}
	}
	return &p, nil
}
