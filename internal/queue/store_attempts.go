package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aurax/internal/generation"
)

// AppendAttempt stores one attempt of a run's trail. Re-appending an attempt
// number replaces the earlier record.
func (s *Store) AppendAttempt(ctx context.Context, runID string, record generation.AttemptRecord) error {
	if record.Attempt < 1 {
		return fmt.Errorf("append attempt: attempt number must be positive, got %d", record.Attempt)
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	var score any
	if record.Assessment != nil {
		score = record.Assessment.Score
	}
	if err := s.execNoResult(
		ctx,
		`INSERT OR REPLACE INTO attempts (run_id, attempt, outcome, cost, quality_score, record_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID,
		record.Attempt,
		record.Outcome,
		record.Cost(),
		score,
		string(recordJSON),
		timestamp(time.Now()),
	); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

// Attempts returns a run's stored trail ordered by attempt number.
func (s *Store) Attempts(ctx context.Context, runID string) ([]generation.AttemptRecord, error) {
	rows, err := s.db.QueryContext(
		orBackground(ctx),
		`SELECT record_json FROM attempts WHERE run_id = ? ORDER BY attempt`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var records []generation.AttemptRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var record generation.AttemptRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
