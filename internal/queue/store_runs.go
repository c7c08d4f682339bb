package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aurax/internal/generation"
	"aurax/internal/services"
)

// NewRun inserts a pending run for req.
func (s *Store) NewRun(ctx context.Context, req generation.Request, maxAttempts int) (*Run, error) {
	if maxAttempts < 1 {
		return nil, fmt.Errorf("new run: max attempts must be at least 1, got %d", maxAttempts)
	}
	requestJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	id := uuid.NewString()
	now := timestamp(time.Now())
	if err := s.execNoResult(
		ctx,
		`INSERT INTO runs (
            id, status, prompt, request_json, max_attempts, attempt,
            threshold, total_cost, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, ?, 0, ?, ?)`,
		id,
		generation.StatusPending,
		req.Prompt,
		string(requestJSON),
		maxAttempts,
		req.QualityThreshold,
		now,
		now,
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a run by identifier. A missing run yields (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(orBackground(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// Lookup fetches a run and reports a missing one as services.ErrNotFound.
func (s *Store) Lookup(ctx context.Context, id string) (*Run, error) {
	run, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "lookup run", fmt.Sprintf("run %s not found", id), nil)
	}
	return run, nil
}

// List returns runs ordered by creation, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...generation.RunStatus) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := statusArgs(statuses)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(orBackground(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// NextPending claims the oldest pending run for a worker, moving it to
// generating. It returns (nil, nil) when nothing is pending.
func (s *Store) NextPending(ctx context.Context) (*Run, error) {
	ctx = orBackground(ctx)
	now := timestamp(time.Now())
	var run *Run
	err := withBusyRetry(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE runs
            SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
            WHERE id = (
                SELECT id FROM runs WHERE status = ? AND cancel_requested = 0
                ORDER BY created_at, rowid LIMIT 1
            )
            RETURNING `+runColumns,
			generation.StatusGenerating,
			now,
			now,
			now,
			generation.StatusPending,
		)
		claimed, scanErr := scanRun(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			run = nil
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		run = claimed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim pending run: %w", err)
	}
	return run, nil
}

// Claim moves a specific pending run to generating. It returns (nil, nil)
// when the run is no longer pending.
func (s *Store) Claim(ctx context.Context, id string) (*Run, error) {
	now := timestamp(time.Now())
	res, err := s.exec(
		ctx,
		`UPDATE runs
        SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
        WHERE id = ? AND status = ? AND cancel_requested = 0`,
		generation.StatusGenerating,
		now,
		now,
		now,
		id,
		generation.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("claim run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, id)
}

// UpdateProgress persists the live progress of an in-flight run and
// refreshes its heartbeat.
func (s *Store) UpdateProgress(ctx context.Context, id string, p Progress) error {
	now := timestamp(time.Now())
	if err := s.execNoResult(
		ctx,
		`UPDATE runs
        SET attempt = ?, stage = ?, threshold = ?, total_cost = ?, quality_score = ?,
            last_heartbeat = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		p.Attempt,
		nullableString(p.Stage),
		p.Threshold,
		p.TotalCost,
		nullableFloat(p.QualityScore),
		now,
		now,
		id,
		generation.StatusGenerating,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the heartbeat of an in-flight run.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := timestamp(time.Now())
	if err := s.execNoResult(
		ctx,
		`UPDATE runs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		generation.StatusGenerating,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// SetLogPath records where the run's own log file lives.
func (s *Store) SetLogPath(ctx context.Context, id, path string) error {
	if err := s.execNoResult(
		ctx,
		`UPDATE runs SET log_path = ?, updated_at = ? WHERE id = ?`,
		nullableString(path),
		timestamp(time.Now()),
		id,
	); err != nil {
		return fmt.Errorf("set log path: %w", err)
	}
	return nil
}

// Finish records the terminal result of a run.
func (s *Store) Finish(ctx context.Context, id string, result generation.Result) error {
	if !result.Status.Terminal() {
		return fmt.Errorf("finish run: status %q is not terminal", result.Status)
	}
	stored := result
	stored.Payload.Data = nil
	stored.Stems = append([]generation.Stem(nil), result.Stems...)
	for i := range stored.Stems {
		stored.Stems[i].Payload.Data = nil
	}
	resultJSON, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	var score any
	if result.AttemptsUsed > 0 && result.Status != generation.StatusFailed && result.Status != generation.StatusCancelled {
		score = result.QualityScore
	}
	now := timestamp(time.Now())
	if err := s.execNoResult(
		ctx,
		`UPDATE runs
        SET status = ?, attempt = ?, stage = NULL, threshold = ?, total_cost = ?, quality_score = ?,
            payload_ref = ?, result_json = ?, error_kind = ?, error_message = ?,
            finished_at = ?, last_heartbeat = NULL, updated_at = ?
        WHERE id = ?`,
		result.Status,
		result.AttemptsUsed,
		result.Threshold,
		result.TotalCost,
		score,
		nullableString(result.PayloadRef),
		string(resultJSON),
		nullableString(result.ErrorKind),
		nullableString(result.ErrorMessage),
		now,
		now,
		id,
	); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RequestCancel cancels a pending run immediately and flags an in-flight run
// so its worker stops at the next opportunity. Terminal runs are returned
// unchanged.
func (s *Store) RequestCancel(ctx context.Context, id string) (*Run, error) {
	now := timestamp(time.Now())
	res, err := s.exec(
		ctx,
		`UPDATE runs
        SET status = ?, cancel_requested = 1, error_kind = ?, error_message = ?,
            finished_at = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		generation.StatusCancelled,
		services.KindCancelled,
		CancelReason,
		now,
		now,
		id,
		generation.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel pending run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("cancel pending run: %w", err)
	}
	if affected == 0 {
		// Not pending any more, possibly claimed by another worker since
		// the caller last looked.
		if err := s.execNoResult(
			ctx,
			`UPDATE runs SET cancel_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
			now,
			id,
			generation.StatusGenerating,
		); err != nil {
			return nil, fmt.Errorf("flag run for cancellation: %w", err)
		}
	}
	return s.Lookup(ctx, id)
}

// Requeue returns an in-flight run to pending and discards its partial
// trail so a later claim starts from the first attempt.
func (s *Store) Requeue(ctx context.Context, id string) error {
	return s.resetInFlight(ctx, "id = ?", id)
}

func (s *Store) resetInFlight(ctx context.Context, where string, args ...any) error {
	ctx = orBackground(ctx)
	return withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		filter := `status = ? AND ` + where
		filterArgs := append([]any{string(generation.StatusGenerating)}, args...)
		if _, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE run_id IN (SELECT id FROM runs WHERE `+filter+`)`, filterArgs...); err != nil {
			return err
		}
		now := timestamp(time.Now())
		cancelArgs := append([]any{string(generation.StatusCancelled), services.KindCancelled, CancelReason, now, now}, filterArgs...)
		if _, err := tx.ExecContext(ctx, `UPDATE runs
            SET status = ?, stage = NULL, error_kind = ?, error_message = ?, finished_at = ?,
                last_heartbeat = NULL, updated_at = ?
            WHERE cancel_requested = 1 AND `+filter, cancelArgs...); err != nil {
			return err
		}
		resetArgs := append([]any{string(generation.StatusPending), now}, filterArgs...)
		if _, err := tx.ExecContext(ctx, `UPDATE runs
            SET status = ?, attempt = 0, stage = NULL, total_cost = 0, quality_score = NULL,
                threshold = json_extract(request_json, '$.quality_threshold'), started_at = NULL, last_heartbeat = NULL, updated_at = ?
            WHERE `+filter, resetArgs...); err != nil {
			return err
		}
		return tx.Commit()
	})
}
