package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrJobNotFound is returned when a job id has no ledger row.
var ErrJobNotFound = errors.New("import job not found")

// JobStore persists import jobs in the voter_imports ledger. Jobs are
// never deleted; terminal rows stay for audit and rollback.
type JobStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewJobStore creates a job store over the shared database handle. The
// schema is created by voterdb.Open.
func NewJobStore(db *sql.DB, logger zerolog.Logger) *JobStore {
	return &JobStore{
		db:     db,
		logger: logger.With().Str("component", "job-store").Logger(),
	}
}

const jobColumns = `id, filename, county_name, status, total_rows, processed_rows,
	error_message, started_at, completed_at, created_at,
	backup_table, detected_county_number, cancel_requested`

// Create inserts a new pending job for one source file.
func (s *JobStore) Create(ctx context.Context, filename, countyName string) (*Job, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO voter_imports (filename, county_name, status, created_at)
		VALUES (?, ?, ?, ?)`,
		filename, countyName, StatusPending, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new job id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get returns one job by id, or ErrJobNotFound.
func (s *JobStore) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM voter_imports WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// List returns all jobs, most recent first.
func (s *JobStore) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM voter_imports ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// Stale returns jobs stuck in pending or running state. After a clean
// shutdown there are none; at startup they are crash evidence.
func (s *JobStore) Stale(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM voter_imports WHERE status IN (?, ?)`,
		StatusPending, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// HoldingSnapshots returns terminal jobs that still reference a
// snapshot table. Used by the retention audit.
func (s *JobStore) HoldingSnapshots(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM voter_imports
		 WHERE backup_table != '' AND status NOT IN (?, ?)`,
		StatusPending, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot holders: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// MarkRunning transitions a job to running and stamps started_at.
func (s *JobStore) MarkRunning(ctx context.Context, id int64) error {
	return s.exec(ctx,
		`UPDATE voter_imports SET status = ?, started_at = ? WHERE id = ?`,
		StatusRunning, time.Now().UTC(), id)
}

// SetTotalRows records the row count estimate for progress reporting.
func (s *JobStore) SetTotalRows(ctx context.Context, id, total int64) error {
	return s.exec(ctx,
		`UPDATE voter_imports SET total_rows = ? WHERE id = ?`, total, id)
}

// SetBackup records the snapshot reference and the detected county
// number. Must happen before the county is mutated.
func (s *JobStore) SetBackup(ctx context.Context, id int64, table, countyNumber string) error {
	return s.exec(ctx,
		`UPDATE voter_imports SET backup_table = ?, detected_county_number = ? WHERE id = ?`,
		table, countyNumber, id)
}

// ClearBackup clears the snapshot reference after explicit cleanup.
func (s *JobStore) ClearBackup(ctx context.Context, id int64) error {
	return s.exec(ctx,
		`UPDATE voter_imports SET backup_table = '' WHERE id = ?`, id)
}

// Finish moves a job to a terminal state and records a bounded error
// message. completed_at is stamped for completed and failed outcomes;
// in-worker cancellation leaves it null, since the job never produced
// a result to date.
func (s *JobStore) Finish(ctx context.Context, id int64, status Status, errMsg string) error {
	if status == StatusCancelled {
		return s.SetStatus(ctx, id, status, errMsg)
	}
	return s.exec(ctx,
		`UPDATE voter_imports SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		status, truncateError(errMsg), time.Now().UTC(), id)
}

// SetStatus updates status and message without touching completed_at.
// Used by rollback, which re-labels an already-finished job.
func (s *JobStore) SetStatus(ctx context.Context, id int64, status Status, msg string) error {
	return s.exec(ctx,
		`UPDATE voter_imports SET status = ?, error_message = ? WHERE id = ?`,
		status, truncateError(msg), id)
}

// SetCancelRequested persists the cancellation flag.
func (s *JobStore) SetCancelRequested(ctx context.Context, id int64, requested bool) error {
	return s.exec(ctx,
		`UPDATE voter_imports SET cancel_requested = ? WHERE id = ?`, requested, id)
}

func (s *JobStore) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update import job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var errMsg, backupTable, detected sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&j.ID, &j.Filename, &j.CountyName, &j.Status,
		&j.TotalRows, &j.ProcessedRows, &errMsg,
		&startedAt, &completedAt, &j.CreatedAt,
		&backupTable, &detected, &j.CancelRequested)
	if err != nil {
		return nil, err
	}

	j.ErrorMessage = errMsg.String
	j.BackupTable = backupTable.String
	j.DetectedCountyNumber = detected.String
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
