package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"eventrouter/internal/constants"
	"eventrouter/pkg/metrics"
	"eventrouter/pkg/models"
)

type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return constants.SinkPostgres }

func observe(operation string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery("postgres", operation, status)
	metrics.ObserveDatabaseQueryDuration("postgres", operation, time.Since(start))
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (s *PostgresSink) Record(ctx context.Context, attempt models.DeliveryAttempt) (err error) {
	defer observe("insert_dead_letter", time.Now(), &err)

	envelope, err := json.Marshal(attempt.Envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	query := `
		INSERT INTO dead_letters (id, rule_id, target_id, envelope, attempt_count, last_error, reason, first_attempt_at, next_retry_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.RuleID,
		attempt.TargetID,
		envelope,
		attempt.AttemptCount,
		attempt.LastError,
		attempt.Reason,
		attempt.FirstAttemptAt,
		nullTime(attempt.NextRetryAt),
		attempt.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}
	return nil
}

func (s *PostgresSink) List(ctx context.Context, limit, offset int) (records []models.DeliveryAttempt, err error) {
	defer observe("list_dead_letters", time.Now(), &err)

	query := `
		SELECT id, rule_id, target_id, envelope, attempt_count, last_error, reason, first_attempt_at, next_retry_at, recorded_at
		FROM dead_letters
		ORDER BY recorded_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec         models.DeliveryAttempt
			envelope    []byte
			nextRetryAt sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.RuleID,
			&rec.TargetID,
			&envelope,
			&rec.AttemptCount,
			&rec.LastError,
			&rec.Reason,
			&rec.FirstAttemptAt,
			&nextRetryAt,
			&rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		if err := json.Unmarshal(envelope, &rec.Envelope); err != nil {
			return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
		}
		if nextRetryAt.Valid {
			rec.NextRetryAt = nextRetryAt.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dead letters: %w", err)
	}
	return records, nil
}
