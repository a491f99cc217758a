package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sanchez-kim/obj-viewer/internal/address"
)

// Store manages the PostgreSQL connection holding verification results.
type Store struct {
	conn *pgx.Conn
}

// Run is one verification walk.
type Run struct {
	ID               int64
	Transport        string
	StartedAt        time.Time
	FinishedAt       *time.Time
	Processed        int
	Passed           int
	Failed           int
	Errors           int
	SkippedSentences int
}

// Totals are the counters written when a run finishes.
type Totals struct {
	Processed        int
	Passed           int
	Failed           int
	Errors           int
	SkippedSentences int
}

// FrameRecord is the stored verdict of one frame. Error is empty for frames
// that were verified.
type FrameRecord struct {
	Frame        address.Frame
	Passed       bool
	Reason       string
	TotalCount   int
	OutsideTier1 []string
	OutsideTier2 []string
	Error        string
	CheckedAt    time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the result tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS verification_runs (
			id BIGSERIAL PRIMARY KEY,
			transport TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ,
			processed INT NOT NULL DEFAULT 0,
			passed INT NOT NULL DEFAULT 0,
			failed INT NOT NULL DEFAULT 0,
			errors INT NOT NULL DEFAULT 0,
			skipped_sentences INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS frame_results (
			id BIGSERIAL PRIMARY KEY,
			run_id BIGINT NOT NULL REFERENCES verification_runs(id) ON DELETE CASCADE,
			frame_name TEXT NOT NULL,
			model_num INT NOT NULL,
			sentence_num INT NOT NULL,
			frame_num INT NOT NULL,
			passed BOOLEAN NOT NULL,
			reason TEXT NOT NULL,
			total_count INT NOT NULL DEFAULT 0,
			outside_tier1 TEXT[] NOT NULL DEFAULT '{}',
			outside_tier2 TEXT[] NOT NULL DEFAULT '{}',
			error TEXT,
			checked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS frame_results_run_id_idx ON frame_results (run_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// CreateRun registers a new run and returns its ID.
func (s *Store) CreateRun(ctx context.Context, transport string) (int64, error) {
	var id int64
	err := s.conn.QueryRow(ctx,
		"INSERT INTO verification_runs (transport) VALUES ($1) RETURNING id", transport).Scan(&id)
	return id, err
}

// RecordFrame saves the verdict of one frame.
func (s *Store) RecordFrame(ctx context.Context, runID int64, r FrameRecord) error {
	var errText *string
	if r.Error != "" {
		errText = &r.Error
	}
	checked := r.CheckedAt
	if checked.IsZero() {
		checked = time.Now()
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO frame_results (run_id, frame_name, model_num, sentence_num, frame_num,
			passed, reason, total_count, outside_tier1, outside_tier2, error, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, runID, r.Frame.Name(), r.Frame.Model, r.Frame.Sentence, r.Frame.Frame,
		r.Passed, r.Reason, r.TotalCount, nonNil(r.OutsideTier1), nonNil(r.OutsideTier2), errText, checked)
	return err
}

// FinishRun stamps the end time and the totals of a run.
func (s *Store) FinishRun(ctx context.Context, runID int64, t Totals) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE verification_runs
		SET finished_at = NOW(), processed = $2, passed = $3, failed = $4, errors = $5, skipped_sentences = $6
		WHERE id = $1
	`, runID, t.Processed, t.Passed, t.Failed, t.Errors, t.SkippedSentences)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %d not found", runID)
	}
	return nil
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, transport, started_at, finished_at, processed, passed, failed, errors, skipped_sentences
		FROM verification_runs ORDER BY id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Transport, &r.StartedAt, &r.FinishedAt,
			&r.Processed, &r.Passed, &r.Failed, &r.Errors, &r.SkippedSentences); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FailedFrames returns the frames of a run that failed or errored, in walk order.
func (s *Store) FailedFrames(ctx context.Context, runID int64) ([]FrameRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT model_num, sentence_num, frame_num, passed, reason, total_count,
			outside_tier1, outside_tier2, COALESCE(error, ''), checked_at
		FROM frame_results WHERE run_id = $1 AND NOT passed ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var r FrameRecord
		if err := rows.Scan(&r.Frame.Model, &r.Frame.Sentence, &r.Frame.Frame, &r.Passed, &r.Reason,
			&r.TotalCount, &r.OutsideTier1, &r.OutsideTier2, &r.Error, &r.CheckedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastFrame returns the last frame recorded for a run, to resume after it.
// ok is false when the run recorded nothing.
func (s *Store) LastFrame(ctx context.Context, runID int64) (f address.Frame, ok bool, err error) {
	err = s.conn.QueryRow(ctx, `
		SELECT model_num, sentence_num, frame_num FROM frame_results
		WHERE run_id = $1 ORDER BY id DESC LIMIT 1
	`, runID).Scan(&f.Model, &f.Sentence, &f.Frame)
	if errors.Is(err, pgx.ErrNoRows) {
		return address.Frame{}, false, nil
	}
	if err != nil {
		return address.Frame{}, false, err
	}
	return f, true, nil
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS frame_results CASCADE;
		DROP TABLE IF EXISTS verification_runs CASCADE;
	`)
	return err
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}
