package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"aurax/internal/generation"
)

const runColumns = "id, status, request_json, max_attempts, attempt, stage, threshold, total_cost, quality_score, payload_ref, result_json, error_kind, error_message, log_path, cancel_requested, created_at, updated_at, started_at, finished_at, last_heartbeat"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id              string
		statusStr       string
		requestJSON     string
		maxAttempts     int
		attempt         int
		stage           sql.NullString
		threshold       float64
		totalCost       float64
		qualityScore    sql.NullFloat64
		payloadRef      sql.NullString
		resultJSON      sql.NullString
		errorKind       sql.NullString
		errorMessage    sql.NullString
		logPath         sql.NullString
		cancelRequested int64
		createdRaw      string
		updatedRaw      string
		startedRaw      sql.NullString
		finishedRaw     sql.NullString
		heartbeatRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&requestJSON,
		&maxAttempts,
		&attempt,
		&stage,
		&threshold,
		&totalCost,
		&qualityScore,
		&payloadRef,
		&resultJSON,
		&errorKind,
		&errorMessage,
		&logPath,
		&cancelRequested,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:              id,
		Status:          generation.RunStatus(statusStr),
		MaxAttempts:     maxAttempts,
		Attempt:         attempt,
		Stage:           stage.String,
		Threshold:       threshold,
		TotalCost:       totalCost,
		PayloadRef:      payloadRef.String,
		ErrorKind:       errorKind.String,
		ErrorMessage:    errorMessage.String,
		LogPath:         logPath.String,
		CancelRequested: cancelRequested != 0,
	}
	if err := json.Unmarshal([]byte(requestJSON), &run.Request); err != nil {
		return nil, err
	}
	if qualityScore.Valid {
		score := qualityScore.Float64
		run.QualityScore = &score
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result generation.Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, err
		}
		run.Result = &result
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		run.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		run.UpdatedAt = updated
	}
	run.StartedAt = parseNullableTime(startedRaw)
	run.FinishedAt = parseNullableTime(finishedRaw)
	run.LastHeartbeat = parseNullableTime(heartbeatRaw)
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []generation.RunStatus) []any {
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, string(status))
	}
	return args
}
