package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS aggregation_runs (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL,
	envelopes    TEXT NOT NULL,
	record       TEXT NOT NULL,
	source_count INTEGER NOT NULL,
	best_source  TEXT NOT NULL,
	score        REAL NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS field_provenance (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES aggregation_runs(id),
	field_key  TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	value      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_document ON aggregation_runs(document_id);
CREATE INDEX IF NOT EXISTS idx_runs_best_source ON aggregation_runs(best_source);
CREATE INDEX IF NOT EXISTS idx_provenance_run_id ON field_provenance(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.AggregationRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	envelopesJSON, err := json.Marshal(run.Envelopes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal envelopes")
	}
	recordJSON, err := json.Marshal(run.Record)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO aggregation_runs (id, document_id, envelopes, record, source_count, best_source, score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DocumentID, string(envelopesJSON), string(recordJSON),
		run.SourceCount, run.BestSource, run.Score, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert run")
	}

	for _, row := range provenanceRows(run) {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO field_provenance (run_id, field_key, source_id, value, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			row.RunID, row.FieldKey, row.SourceID, row.Value, run.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert provenance %s", row.FieldKey)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.AggregationRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, envelopes, record, source_count, best_source, score, created_at
		 FROM aggregation_runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.AggregationRun, error) {
	query := `SELECT id, document_id, envelopes, record, source_count, best_source, score, created_at
	          FROM aggregation_runs WHERE 1=1`
	var args []any

	if filter.DocumentID != "" {
		query += ` AND document_id = ?`
		args = append(args, filter.DocumentID)
	}
	if filter.BestSource != "" {
		query += ` AND best_source = ?`
		args = append(args, filter.BestSource)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + strconv.Itoa(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.AggregationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) ListProvenance(ctx context.Context, runID string) ([]model.FieldProvenance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, field_key, source_id, value, created_at
		 FROM field_provenance WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list provenance %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var result []model.FieldProvenance
	for rows.Next() {
		var fp model.FieldProvenance
		if err := rows.Scan(&fp.ID, &fp.RunID, &fp.FieldKey, &fp.SourceID, &fp.Value, &fp.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provenance")
		}
		result = append(result, fp)
	}
	return result, eris.Wrap(rows.Err(), "sqlite: iterate provenance")
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*model.AggregationRun, error) {
	var run model.AggregationRun
	var envelopesJSON, recordJSON string

	if err := sc.Scan(&run.ID, &run.DocumentID, &envelopesJSON, &recordJSON,
		&run.SourceCount, &run.BestSource, &run.Score, &run.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(envelopesJSON), &run.Envelopes); err != nil {
		return nil, eris.Wrap(err, "unmarshal envelopes")
	}
	if err := json.Unmarshal([]byte(recordJSON), &run.Record); err != nil {
		return nil, eris.Wrap(err, "unmarshal record")
	}
	return &run, nil
}

// stringify renders a resolved field value for the provenance table.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
