package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "eventrouter/pkg/errors"
	"eventrouter/pkg/metrics"
)

// Record is the stored form of a rule: the pattern stays a JSON document.
type Record struct {
	ID          string
	Name        string
	Description string
	Pattern     json.RawMessage
	Condition   string
	Targets     []string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Repository interface {
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
}

const uniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func observe(operation string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery("postgres", operation, status)
	metrics.ObserveDatabaseQueryDuration("postgres", operation, time.Since(start))
}

func (r *PostgresRepository) List(ctx context.Context) (records []Record, err error) {
	defer observe("rules_list", time.Now(), &err)

	query := `
		SELECT id, name, description, pattern, condition, targets, enabled, created_at, updated_at
		FROM rules
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var pattern []byte
	if err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Description,
		&pattern,
		&rec.Condition,
		pq.Array(&rec.Targets),
		&rec.Enabled,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Pattern = json.RawMessage(pattern)
	return &rec, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (rec *Record, err error) {
	defer observe("rules_get", time.Now(), &err)

	query := `
		SELECT id, name, description, pattern, condition, targets, enabled, created_at, updated_at
		FROM rules
		WHERE id = $1
	`

	rec, err = scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound.WithDetail("rule_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Create(ctx context.Context, rec *Record) (err error) {
	defer observe("rules_create", time.Now(), &err)

	query := `
		INSERT INTO rules (id, name, description, pattern, condition, targets, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.Description,
		[]byte(rec.Pattern),
		rec.Condition,
		pq.Array(rec.Targets),
		rec.Enabled,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperrors.ErrConflict.WithMessage(fmt.Sprintf("rule %s already exists", rec.ID))
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, rec *Record) (err error) {
	defer observe("rules_update", time.Now(), &err)

	query := `
		UPDATE rules
		SET name = $2, description = $3, pattern = $4, condition = $5, targets = $6, enabled = $7, updated_at = $8
		WHERE id = $1
	`

	rec.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.Description,
		[]byte(rec.Pattern),
		rec.Condition,
		pq.Array(rec.Targets),
		rec.Enabled,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrNotFound.WithDetail("rule_id", rec.ID)
	}

	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	defer observe("rules_delete", time.Now(), &err)

	result, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrNotFound.WithDetail("rule_id", id)
	}

	return nil
}
