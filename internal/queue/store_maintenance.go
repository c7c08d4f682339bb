package queue

import (
	"context"
	"fmt"
	"time"

	"aurax/internal/generation"
)

// Stats returns a count of runs grouped by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(orBackground(ctx), `SELECT status, COUNT(1) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(Stats)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[generation.RunStatus(status)] = count
	}
	return stats, rows.Err()
}

// ReclaimStale returns in-flight runs whose heartbeat is older than cutoff to
// pending. Runs flagged for cancellation are cancelled instead.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	before, err := s.countInFlight(ctx, "last_heartbeat IS NOT NULL AND last_heartbeat < ?", timestamp(cutoff))
	if err != nil {
		return 0, err
	}
	if before == 0 {
		return 0, nil
	}
	if err := s.resetInFlight(ctx, "last_heartbeat IS NOT NULL AND last_heartbeat < ?", timestamp(cutoff)); err != nil {
		return 0, fmt.Errorf("reclaim stale runs: %w", err)
	}
	return before, nil
}

// ResetInFlight returns every in-flight run to pending. It is used at
// startup, when no worker can still own a run.
func (s *Store) ResetInFlight(ctx context.Context) (int64, error) {
	before, err := s.countInFlight(ctx, "1 = 1")
	if err != nil {
		return 0, err
	}
	if before == 0 {
		return 0, nil
	}
	if err := s.resetInFlight(ctx, "1 = 1"); err != nil {
		return 0, fmt.Errorf("reset in-flight runs: %w", err)
	}
	return before, nil
}

func (s *Store) countInFlight(ctx context.Context, where string, args ...any) (int64, error) {
	var count int64
	queryArgs := append([]any{string(generation.StatusGenerating)}, args...)
	if err := s.db.QueryRowContext(
		orBackground(ctx),
		`SELECT COUNT(1) FROM runs WHERE status = ? AND `+where,
		queryArgs...,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count in-flight runs: %w", err)
	}
	return count, nil
}

// ClearFinished deletes terminal runs and their attempts.
func (s *Store) ClearFinished(ctx context.Context) (int64, error) {
	res, err := s.exec(
		ctx,
		`DELETE FROM runs WHERE status IN (`+makePlaceholders(len(terminalStatuses))+`)`,
		statusArgs(terminalStatuses)...,
	)
	if err != nil {
		return 0, fmt.Errorf("clear finished runs: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes a single run regardless of status.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
