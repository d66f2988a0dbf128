package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobhunter/aggregator-service/internal/model"
)

// PGRecordStore persists compliance records in the source_compliance table.
type PGRecordStore struct {
	pool *pgxpool.Pool
}

func NewPGRecordStore(pool *pgxpool.Pool) *PGRecordStore {
	return &PGRecordStore{pool: pool}
}

const complianceColumns = `source_key, method, allowed, robots_ok, rate_limit_seconds,
	max_requests_per_hour, tos_reviewed_at, consecutive_blocks, last_blocked_at, auto_disable_on_block`

func (s *PGRecordStore) Get(ctx context.Context, sourceKey string) (*model.SourceComplianceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+complianceColumns+` FROM source_compliance WHERE source_key = $1`, sourceKey)

	rec, err := scanComplianceRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PGRecordStore) List(ctx context.Context) ([]model.SourceComplianceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+complianceColumns+` FROM source_compliance ORDER BY source_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SourceComplianceRecord
	for rows.Next() {
		rec, err := scanComplianceRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// RecordBlock bumps the consecutive block counter atomically and returns
// the new value, so concurrent workers cannot lose an increment.
func (s *PGRecordStore) RecordBlock(ctx context.Context, sourceKey string, at time.Time) (int, error) {
	var blocks int
	err := s.pool.QueryRow(ctx,
		`UPDATE source_compliance
		 SET consecutive_blocks = consecutive_blocks + 1, last_blocked_at = $2
		 WHERE source_key = $1
		 RETURNING consecutive_blocks`, sourceKey, at).Scan(&blocks)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("no compliance record for %s", sourceKey)
	}
	return blocks, err
}

func (s *PGRecordStore) ResetBlocks(ctx context.Context, sourceKey string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE source_compliance SET consecutive_blocks = 0 WHERE source_key = $1`, sourceKey)
	return err
}

func (s *PGRecordStore) Disable(ctx context.Context, sourceKey string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE source_compliance SET allowed = false WHERE source_key = $1`, sourceKey)
	return err
}

// Seed inserts a record if the source is not yet known, leaving existing
// rows untouched so operator edits survive restarts.
func (s *PGRecordStore) Seed(ctx context.Context, rec model.SourceComplianceRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_compliance (`+complianceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (source_key) DO NOTHING`,
		rec.SourceKey, rec.Method, rec.Allowed, rec.RobotsOK, rec.RateLimitSeconds,
		rec.MaxRequestsPerHour, rec.TOSReviewedAt, rec.ConsecutiveBlocks,
		rec.LastBlockedAt, rec.AutoDisableOnBlock)
	return err
}

func scanComplianceRecord(row pgx.Row) (*model.SourceComplianceRecord, error) {
	var rec model.SourceComplianceRecord
	err := row.Scan(&rec.SourceKey, &rec.Method, &rec.Allowed, &rec.RobotsOK,
		&rec.RateLimitSeconds, &rec.MaxRequestsPerHour, &rec.TOSReviewedAt,
		&rec.ConsecutiveBlocks, &rec.LastBlockedAt, &rec.AutoDisableOnBlock)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
