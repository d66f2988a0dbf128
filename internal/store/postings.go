// Package store is the persistence layer over Postgres. Postings carry a
// pgvector embedding column; similarity queries run server-side with the
// cosine distance operator.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobhunter/aggregator-service/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const postingColumns = `hash, source, title, company, location, region, city, description, url,
	salary_min_chf, salary_max_chf, salary_original, salary_currency, salary_period,
	language, seniority, contract_type, remote, tags,
	first_seen_at, last_seen_at, is_active, url_last_check, fuzzy_hash, duplicate_of`

// PostingStore persists canonical postings in the jobs table.
type PostingStore struct {
	pool *pgxpool.Pool
}

func NewPostingStore(pool *pgxpool.Pool) *PostingStore {
	return &PostingStore{pool: pool}
}

// Upsert inserts a posting or, when the hash already exists, refreshes
// last_seen_at and reactivates it. Immutable fields are never overwritten
// on conflict. Returns true when a new row was created.
func (s *PostingStore) Upsert(ctx context.Context, p *model.CanonicalPosting) (bool, error) {
	var created bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (`+postingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, NULLIF($25, ''))
		ON CONFLICT (hash) DO UPDATE
		SET last_seen_at = EXCLUDED.last_seen_at,
		    is_active    = TRUE
		RETURNING (xmax = 0)`,
		p.Hash, p.Source, p.Title, p.Company, p.Location, p.Region, p.City, p.Description, p.URL,
		zeroToNull(p.SalaryMinCHF), zeroToNull(p.SalaryMaxCHF), p.SalaryOriginal, p.SalaryCurrency, p.SalaryPeriod,
		p.Language, string(p.Seniority), string(p.ContractType), p.Remote, p.Tags,
		p.FirstSeenAt, p.LastSeenAt, p.Active, p.URLLastCheck, p.FuzzyHash, p.DuplicateOf,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert posting %s: %w", p.Hash, err)
	}
	return created, nil
}

// GetByHash loads one posting, ErrNotFound when absent.
func (s *PostingStore) GetByHash(ctx context.Context, hash string) (*model.CanonicalPosting, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postingColumns+` FROM jobs WHERE hash = $1`, hash)
	p, err := scanPosting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("posting %s: %w", hash, ErrNotFound)
	}
	return p, err
}

// SetEmbedding stores the encoded vector for one posting.
func (s *PostingStore) SetEmbedding(ctx context.Context, hash string, embedding []float32) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET embedding = $2::vector WHERE hash = $1`,
		hash, vectorParam(embedding))
	if err != nil {
		return fmt.Errorf("set embedding for %s: %w", hash, err)
	}
	return nil
}

// HashesWithoutEmbedding lists active non-duplicate postings still waiting
// for a vector, oldest first, for the backfill job.
func (s *PostingStore) HashesWithoutEmbedding(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT hash FROM jobs
		WHERE embedding IS NULL AND is_active AND duplicate_of IS NULL
		ORDER BY first_seen_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// DeactivateStale flips postings not seen within the window to inactive and
// returns how many rows changed.
func (s *PostingStore) DeactivateStale(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET is_active = FALSE WHERE is_active AND last_seen_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale postings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Candidate pairs a posting with its cosine similarity to a user vector.
type Candidate struct {
	Posting    model.CanonicalPosting
	Similarity float64
}

// CandidatesByEmbedding runs the coarse retrieval stage: active,
// non-duplicate, embedded postings ranked by cosine similarity to the user
// vector, floored at minSimilarity and capped at topN.
func (s *PostingStore) CandidatesByEmbedding(ctx context.Context, userVec []float32, minSimilarity float64, topN int) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postingColumns+`, 1 - (embedding <=> $1::vector) AS similarity
		FROM jobs
		WHERE is_active AND duplicate_of IS NULL AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1::vector) >= $2
		ORDER BY embedding <=> $1::vector ASC
		LIMIT $3`,
		vectorParam(userVec), minSimilarity, topN)
	if err != nil {
		return nil, fmt.Errorf("embedding candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindByFuzzyHash returns the hash of an active posting sharing the fuzzy
// hash from a different source, or "".
func (s *PostingStore) FindByFuzzyHash(ctx context.Context, fuzzyHash, excludeSource string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `
		SELECT hash FROM jobs
		WHERE fuzzy_hash = $1 AND source <> $2 AND is_active
		LIMIT 1`, fuzzyHash, excludeSource).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// FindSemanticDuplicate returns the oldest active, non-duplicate posting
// whose embedding similarity exceeds the threshold, or "".
func (s *PostingStore) FindSemanticDuplicate(ctx context.Context, hash string, embedding []float32, threshold float64) (string, error) {
	var dup string
	err := s.pool.QueryRow(ctx, `
		SELECT hash FROM jobs
		WHERE hash <> $1 AND is_active AND duplicate_of IS NULL AND embedding IS NOT NULL
		  AND embedding <=> $2::vector < $3
		ORDER BY first_seen_at ASC
		LIMIT 1`,
		hash, vectorParam(embedding), 1.0-threshold).Scan(&dup)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return dup, err
}

// MarkDuplicate links a posting to its canonical original.
func (s *PostingStore) MarkDuplicate(ctx context.Context, hash, canonicalHash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET duplicate_of = $2 WHERE hash = $1`, hash, canonicalHash)
	if err != nil {
		return fmt.Errorf("mark %s duplicate of %s: %w", hash, canonicalHash, err)
	}
	return nil
}

// RecordURLCheck stores the result of a link health probe; dead links
// deactivate the posting.
func (s *PostingStore) RecordURLCheck(ctx context.Context, hash string, alive bool, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET url_last_check = $2, is_active = (is_active AND $3)
		WHERE hash = $1`, hash, at, alive)
	if err != nil {
		return fmt.Errorf("record url check for %s: %w", hash, err)
	}
	return nil
}

// URLCheckTarget is one posting due for a link health probe.
type URLCheckTarget struct {
	Hash string
	URL  string
}

// URLCheckTargets lists active postings least recently checked first, for
// the link health job. Postings keyed by source id carry no URL and are
// never probed.
func (s *PostingStore) URLCheckTargets(ctx context.Context, limit int) ([]URLCheckTarget, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT hash, url FROM jobs
		WHERE is_active AND duplicate_of IS NULL AND url <> ''
		ORDER BY url_last_check ASC NULLS FIRST
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []URLCheckTarget
	for rows.Next() {
		var t URLCheckTarget
		if err := rows.Scan(&t.Hash, &t.URL); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// vectorParam encodes a float32 slice in pgvector input syntax, which is
// also valid JSON, so it travels as a text parameter and casts server-side.
func vectorParam(v []float32) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func zeroToNull(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanPosting(row pgx.Row) (*model.CanonicalPosting, error) {
	var (
		p                  model.CanonicalPosting
		salaryMin, salaryMax *int
		seniority, contract  string
		duplicateOf          *string
	)
	err := row.Scan(&p.Hash, &p.Source, &p.Title, &p.Company, &p.Location, &p.Region, &p.City, &p.Description, &p.URL,
		&salaryMin, &salaryMax, &p.SalaryOriginal, &p.SalaryCurrency, &p.SalaryPeriod,
		&p.Language, &seniority, &contract, &p.Remote, &p.Tags,
		&p.FirstSeenAt, &p.LastSeenAt, &p.Active, &p.URLLastCheck, &p.FuzzyHash, &duplicateOf)
	if err != nil {
		return nil, err
	}
	if salaryMin != nil {
		p.SalaryMinCHF = *salaryMin
	}
	if salaryMax != nil {
		p.SalaryMaxCHF = *salaryMax
	}
	p.Seniority = model.Seniority(seniority)
	p.ContractType = model.Contract(contract)
	if duplicateOf != nil {
		p.DuplicateOf = *duplicateOf
	}
	return &p, nil
}

func scanCandidate(rows pgx.Rows) (Candidate, error) {
	var (
		c                    Candidate
		salaryMin, salaryMax *int
		seniority, contract  string
		duplicateOf          *string
	)
	p := &c.Posting
	err := rows.Scan(&p.Hash, &p.Source, &p.Title, &p.Company, &p.Location, &p.Region, &p.City, &p.Description, &p.URL,
		&salaryMin, &salaryMax, &p.SalaryOriginal, &p.SalaryCurrency, &p.SalaryPeriod,
		&p.Language, &seniority, &contract, &p.Remote, &p.Tags,
		&p.FirstSeenAt, &p.LastSeenAt, &p.Active, &p.URLLastCheck, &p.FuzzyHash, &duplicateOf,
		&c.Similarity)
	if err != nil {
		return c, err
	}
	if salaryMin != nil {
		p.SalaryMinCHF = *salaryMin
	}
	if salaryMax != nil {
		p.SalaryMaxCHF = *salaryMax
	}
	p.Seniority = model.Seniority(seniority)
	p.ContractType = model.Contract(contract)
	if duplicateOf != nil {
		p.DuplicateOf = *duplicateOf
	}
	return c, nil
}

