package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it,
// so the Postgres store is testable without a database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS aggregation_runs (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL,
	envelopes    JSONB NOT NULL,
	record       JSONB NOT NULL,
	source_count INTEGER NOT NULL,
	best_source  TEXT NOT NULL,
	score        DOUBLE PRECISION NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS field_provenance (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES aggregation_runs(id),
	field_key  TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	value      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_document ON aggregation_runs(document_id);
CREATE INDEX IF NOT EXISTS idx_runs_best_source ON aggregation_runs(best_source);
CREATE INDEX IF NOT EXISTS idx_provenance_run_id ON field_provenance(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.AggregationRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	envelopesJSON, err := json.Marshal(run.Envelopes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal envelopes")
	}
	recordJSON, err := json.Marshal(run.Record)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO aggregation_runs (id, document_id, envelopes, record, source_count, best_source, score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.DocumentID, envelopesJSON, recordJSON,
		run.SourceCount, run.BestSource, run.Score, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert run")
	}

	for _, row := range provenanceRows(run) {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO field_provenance (run_id, field_key, source_id, value, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			row.RunID, row.FieldKey, row.SourceID, row.Value, run.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert provenance %s", row.FieldKey)
		}
	}

	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.AggregationRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, document_id, envelopes, record, source_count, best_source, score, created_at
		 FROM aggregation_runs WHERE id = $1`, runID)

	run, err := scanPgRun(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("postgres: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.AggregationRun, error) {
	query := `SELECT id, document_id, envelopes, record, source_count, best_source, score, created_at
	          FROM aggregation_runs WHERE 1=1`
	var args []any

	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		query += ` AND document_id = $1`
	}
	if filter.BestSource != "" {
		args = append(args, filter.BestSource)
		query += ` AND best_source = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.AggregationRun
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) ListProvenance(ctx context.Context, runID string) ([]model.FieldProvenance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, field_key, source_id, value, created_at
		 FROM field_provenance WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list provenance %s", runID)
	}
	defer rows.Close()

	var result []model.FieldProvenance
	for rows.Next() {
		var fp model.FieldProvenance
		if err := rows.Scan(&fp.ID, &fp.RunID, &fp.FieldKey, &fp.SourceID, &fp.Value, &fp.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provenance")
		}
		result = append(result, fp)
	}
	return result, eris.Wrap(rows.Err(), "postgres: iterate provenance")
}

func scanPgRun(sc scanner) (*model.AggregationRun, error) {
	var run model.AggregationRun
	var envelopesJSON, recordJSON []byte

	if err := sc.Scan(&run.ID, &run.DocumentID, &envelopesJSON, &recordJSON,
		&run.SourceCount, &run.BestSource, &run.Score, &run.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(envelopesJSON, &run.Envelopes); err != nil {
		return nil, eris.Wrap(err, "unmarshal envelopes")
	}
	if err := json.Unmarshal(recordJSON, &run.Record); err != nil {
		return nil, eris.Wrap(err, "unmarshal record")
	}
	return &run, nil
}
