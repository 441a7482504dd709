/**
 * PostgreSQL Client for FormExtract Worker
 *
 * Handles database operations for job status and extraction run persistence.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/adverant/nexus/formextract-worker/internal/model"
)

// ResultStore persists extraction runs and job status
type ResultStore interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	UpdateJobStatus(ctx context.Context, update *JobUpdate) error
}

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	FormTypeID       string
	RunID            string
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// RunRecord is one persisted Parse result
type RunRecord struct {
	ID               string              `json:"id"`
	JobID            string              `json:"job_id"`
	FormTypeID       string              `json:"form_type_id"`
	Contents         []model.Content     `json:"contents"`
	Groups           map[string][]string `json:"groups"`
	EmptyFields      int                 `json:"empty_fields"`
	ProcessingTimeMs int64               `json:"processing_time_ms"`
	CreatedAt        time.Time           `json:"created_at"`
}

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS formextract;

	CREATE TABLE IF NOT EXISTS formextract.extraction_jobs (
		id                 TEXT PRIMARY KEY,
		status             TEXT NOT NULL,
		form_type_id       TEXT,
		run_id             UUID,
		processing_time_ms BIGINT,
		error_code         TEXT,
		error_message      TEXT,
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS formextract.extraction_runs (
		id                 UUID PRIMARY KEY,
		job_id             TEXT NOT NULL,
		form_type_id       TEXT NOT NULL,
		contents           JSONB NOT NULL,
		groups             JSONB NOT NULL,
		group_names        TEXT[] NOT NULL,
		empty_fields       INTEGER NOT NULL,
		processing_time_ms BIGINT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS extraction_runs_job_id_idx ON formextract.extraction_runs (job_id);
`

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the formextract schema and tables when missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpdateJobStatus upserts the job status row
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metadataJSON = sanitizeJSONForPostgres(metadataJSON)

	// UPSERT so the worker can create the row when the producer did not
	query := `
		INSERT INTO formextract.extraction_jobs (
			id, status, form_type_id, run_id, processing_time_ms,
			error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1, $2, NULLIF($3, ''),
			NULLIF($4, '')::uuid,
			NULLIF($5, 0), NULLIF($6, ''), NULLIF($7, ''),
			COALESCE($8::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			form_type_id = COALESCE(EXCLUDED.form_type_id, formextract.extraction_jobs.form_type_id),
			run_id = COALESCE(EXCLUDED.run_id, formextract.extraction_jobs.run_id),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, formextract.extraction_jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = formextract.extraction_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.Status,           // $2
		update.FormTypeID,       // $3
		update.RunID,            // $4
		update.ProcessingTimeMs, // $5
		update.ErrorCode,        // $6
		update.ErrorMessage,     // $7
		metadataJSON,            // $8
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w", update.JobID, update.Status, err)
	}

	return nil
}

// SaveRun inserts an extraction run, assigning an ID when the record has none
func (p *PostgresClient) SaveRun(ctx context.Context, run *RunRecord) error {
	if run.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	contentsJSON, groupsJSON, err := encodeRun(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO formextract.extraction_runs (
			id, job_id, form_type_id, contents, groups, group_names,
			empty_fields, processing_time_ms, created_at
		) VALUES ($1::uuid, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, NOW())
		RETURNING created_at
	`

	err = p.db.QueryRowContext(
		ctx,
		query,
		run.ID,
		run.JobID,
		run.FormTypeID,
		contentsJSON,
		groupsJSON,
		pq.Array(groupNames(run.Groups)),
		run.EmptyFields,
		run.ProcessingTimeMs,
	).Scan(&run.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save extraction run (job=%s): %w", run.JobID, err)
	}

	return nil
}

// GetRun retrieves a run by ID
func (p *PostgresClient) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	query := `
		SELECT id, job_id, form_type_id, contents, groups,
			empty_fields, processing_time_ms, created_at
		FROM formextract.extraction_runs
		WHERE id = $1::uuid
	`

	var (
		run                      RunRecord
		contentsJSON, groupsJSON []byte
	)
	err := p.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID, &run.JobID, &run.FormTypeID, &contentsJSON, &groupsJSON,
		&run.EmptyFields, &run.ProcessingTimeMs, &run.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("extraction run not found: %s", runID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get extraction run: %w", err)
	}

	if err := json.Unmarshal(contentsJSON, &run.Contents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contents: %w", err)
	}
	if err := json.Unmarshal(groupsJSON, &run.Groups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal groups: %w", err)
	}

	return &run, nil
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// encodeRun renders contents and groups as sanitized JSONB payloads
func encodeRun(run *RunRecord) ([]byte, []byte, error) {
	contents := sanitizeContents(run.Contents)
	contentsJSON, err := json.Marshal(contents)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal contents: %w", err)
	}

	groups := run.Groups
	if groups == nil {
		groups = map[string][]string{}
	}
	groupsJSON, err := json.Marshal(groups)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal groups: %w", err)
	}

	return sanitizeJSONForPostgres(contentsJSON), sanitizeJSONForPostgres(groupsJSON), nil
}

// groupNames returns the sorted keys of groups
func groupNames(groups map[string][]string) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
