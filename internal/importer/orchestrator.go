package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/petitionqc/voterd/internal/county"
	"github.com/petitionqc/voterd/internal/voterdb"
)

var (
	// ErrUnknownCounty means the job's county name is not in the fixed
	// lookup table. This fails a job before anything destructive runs.
	ErrUnknownCounty = errors.New("unknown county")

	// ErrRollbackIneligible means the job is not completed or its
	// rollback window has passed.
	ErrRollbackIneligible = errors.New("import cannot be rolled back")
)

// Messages recorded on jobs terminated outside the normal worker path.
const (
	msgOrphaned    = "Cancelled: import was orphaned after an unexpected shutdown"
	msgInterrupted = "Failed: application was shut down while import was in progress"
	msgRolledBack  = "Rolled back by user"
)

// workerHandle is the in-memory half of a job's cancellation flag. It
// lives exactly as long as the worker; a process restart drops pending
// requests, which RecoverStaleJobs compensates for.
type workerHandle struct {
	cancel atomic.Bool
}

// Orchestrator owns the import workers, the cancellation registry, and
// the public import operations. One worker goroutine runs per job, with
// a weighted semaphore bounding how many load concurrently and a
// per-county mutex guaranteeing that no two jobs mutate the same county
// at once.
type Orchestrator struct {
	jobs      *JobStore
	voters    *voterdb.Store
	snapshots *SnapshotManager

	uploadDir      string
	batchSize      int
	rollbackWindow time.Duration

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu      sync.Mutex
	running map[int64]*workerHandle

	countyMu    sync.Mutex
	countyLocks map[string]*sync.Mutex

	logger zerolog.Logger
}

// OrchestratorConfig holds configuration for creating an orchestrator.
type OrchestratorConfig struct {
	Jobs      *JobStore
	Voters    *voterdb.Store
	Snapshots *SnapshotManager

	UploadDir      string
	BatchSize      int           // default 1000
	MaxConcurrent  int           // default 4
	RollbackWindow time.Duration // default 24h

	Logger zerolog.Logger
}

// NewOrchestrator creates an import orchestrator.
func NewOrchestrator(cfg *OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Jobs == nil || cfg.Voters == nil || cfg.Snapshots == nil {
		return nil, fmt.Errorf("job store, voter store, and snapshot manager are required")
	}
	if cfg.UploadDir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	window := cfg.RollbackWindow
	if window <= 0 {
		window = 24 * time.Hour
	}

	return &Orchestrator{
		jobs:           cfg.Jobs,
		voters:         cfg.Voters,
		snapshots:      cfg.Snapshots,
		uploadDir:      cfg.UploadDir,
		batchSize:      batchSize,
		rollbackWindow: window,
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
		running:        make(map[int64]*workerHandle),
		countyLocks:    make(map[string]*sync.Mutex),
		logger:         cfg.Logger.With().Str("component", "import-orchestrator").Logger(),
	}, nil
}

// RollbackWindow returns the configured rollback eligibility window.
func (o *Orchestrator) RollbackWindow() time.Duration {
	return o.rollbackWindow
}

// Start launches the worker for a job. Callers must start each job
// exactly once; upload intake guarantees this. The job is registered
// for cancellation immediately, before the worker acquires a slot, so
// queued jobs can still be cancelled.
func (o *Orchestrator) Start(jobID int64) {
	h := &workerHandle{}
	o.mu.Lock()
	o.running[jobID] = h
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.unregister(jobID)

		ctx := context.Background()
		if err := o.sem.Acquire(ctx, 1); err != nil {
			o.logger.Error().Err(err).Int64("job_id", jobID).Msg("Failed to acquire worker slot")
			return
		}
		defer o.sem.Release(1)

		o.runJob(ctx, jobID, h)
	}()
}

// RequestCancel signals cancellation to a live worker. Returns false
// when no worker for the job is registered in this process (e.g. after
// a crash/restart), in which case the caller falls back to ForceCancel.
func (o *Orchestrator) RequestCancel(ctx context.Context, jobID int64) bool {
	o.mu.Lock()
	h, ok := o.running[jobID]
	o.mu.Unlock()
	if !ok {
		return false
	}

	h.cancel.Store(true)
	if err := o.jobs.SetCancelRequested(ctx, jobID, true); err != nil {
		o.logger.Warn().Err(err).Int64("job_id", jobID).Msg("Failed to persist cancel flag")
	}
	o.logger.Info().Int64("job_id", jobID).Msg("Cancellation requested")
	return true
}

// ForceCancel terminates an orphaned job that has no live worker: the
// job is marked failed with an explanatory message and its snapshot is
// restored best-effort. Used when the owning process died mid-import.
func (o *Orchestrator) ForceCancel(ctx context.Context, jobID int64) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if err := o.jobs.Finish(ctx, jobID, StatusFailed, msgOrphaned); err != nil {
		return err
	}
	o.logger.Warn().Int64("job_id", jobID).Msg("Orphaned import force-cancelled")

	o.restoreBestEffort(ctx, job)
	return nil
}

// RecoverStaleJobs runs once at process startup, before new work is
// accepted. Jobs still pending or running are crash evidence: each is
// marked failed, then any that already took a snapshot is restored
// best-effort. This is the only protection against a crash leaving a
// county half-deleted.
func (o *Orchestrator) RecoverStaleJobs(ctx context.Context) (int, error) {
	stale, err := o.jobs.Stale(ctx)
	if err != nil {
		return 0, err
	}

	for _, job := range stale {
		if err := o.jobs.Finish(ctx, job.ID, StatusFailed, msgInterrupted); err != nil {
			return 0, fmt.Errorf("failed to mark stale job %d: %w", job.ID, err)
		}
		o.logger.Warn().
			Int64("job_id", job.ID).
			Str("filename", job.Filename).
			Str("previous_status", string(job.Status)).
			Msg("Stale import job failed at startup")
	}

	for _, job := range stale {
		if job.BackupTable != "" {
			o.restoreBestEffort(ctx, job)
		}
	}

	return len(stale), nil
}

// Rollback undoes a completed import by restoring its snapshot. Only
// completed jobs within the rollback window are eligible; the job then
// transitions to cancelled, modeling "this import's effect was undone".
func (o *Orchestrator) Rollback(ctx context.Context, jobID int64) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.CanRollback(o.rollbackWindow, time.Now()) {
		return fmt.Errorf("%w: job %d must be completed within the last %s",
			ErrRollbackIneligible, jobID, o.rollbackWindow)
	}

	unlock := o.lockCounty(job.DetectedCountyNumber)
	defer unlock()

	if err := o.snapshots.Restore(ctx, job.BackupTable, job.DetectedCountyNumber); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	if err := o.jobs.SetStatus(ctx, jobID, StatusCancelled, msgRolledBack); err != nil {
		return err
	}

	o.logger.Info().
		Int64("job_id", jobID).
		Str("county_number", job.DetectedCountyNumber).
		Msg("Import rolled back")
	return nil
}

// CleanupSnapshot drops a job's snapshot table and clears the
// reference. Always an explicit operator action, never automatic.
func (o *Orchestrator) CleanupSnapshot(ctx context.Context, jobID int64) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.BackupTable == "" {
		return nil
	}

	if err := o.snapshots.Drop(ctx, job.BackupTable); err != nil {
		return err
	}
	return o.jobs.ClearBackup(ctx, jobID)
}

// DeleteCounty removes all voters for a named county, outside the job
// and snapshot machinery. Irreversible.
func (o *Orchestrator) DeleteCounty(ctx context.Context, countyName string) (int64, error) {
	number, ok := county.Number(countyName)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCounty, countyName)
	}

	unlock := o.lockCounty(number)
	defer unlock()

	n, err := o.voters.DeleteCounty(ctx, number)
	if err != nil {
		return 0, err
	}
	o.logger.Info().Str("county", countyName).Int64("deleted", n).Msg("County voters deleted")
	return n, nil
}

// DeleteAll removes every voter record. Irreversible.
func (o *Orchestrator) DeleteAll(ctx context.Context) (int64, error) {
	n, err := o.voters.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	o.logger.Info().Int64("deleted", n).Msg("All voters deleted")
	return n, nil
}

// Wait blocks until all workers have finished or the context expires.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) unregister(jobID int64) {
	o.mu.Lock()
	delete(o.running, jobID)
	o.mu.Unlock()
}

// lockCounty acquires the mutex for one county, creating it on first
// use, and returns the unlock func. Held for the full
// snapshot→delete→load→(restore) span of a job.
func (o *Orchestrator) lockCounty(number string) func() {
	o.countyMu.Lock()
	mu, ok := o.countyLocks[number]
	if !ok {
		mu = &sync.Mutex{}
		o.countyLocks[number] = mu
	}
	o.countyMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// runJob executes one import job to a terminal state. The uploaded
// source file is removed on exit in all outcomes.
func (o *Orchestrator) runJob(ctx context.Context, jobID int64, h *workerHandle) {
	log := o.logger.With().Int64("job_id", jobID).Logger()
	start := time.Now()

	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		log.Error().Err(err).Msg("Worker could not load job")
		return
	}

	path := filepath.Join(o.uploadDir, job.Filename)
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove source file")
		}
	}()

	if err := o.jobs.MarkRunning(ctx, jobID); err != nil {
		log.Error().Err(err).Msg("Failed to mark job running")
		return
	}

	status, importErr := o.importFile(ctx, job, path, h, log)

	errMsg := ""
	if importErr != nil {
		errMsg = importErr.Error()
	}
	if err := o.jobs.Finish(ctx, jobID, status, errMsg); err != nil {
		log.Error().Err(err).Msg("Failed to record terminal job state")
		return
	}

	evt := log.Info()
	if status == StatusFailed {
		evt = log.Error().Err(importErr)
	}
	evt.Str("status", string(status)).
		Str("county", job.CountyName).
		Dur("duration", time.Since(start)).
		Msg("Import finished")
}

// importFile runs the import phases and returns the terminal status.
// Input errors (unreadable file, unknown county) fail the job before
// any snapshot or delete. Once the snapshot exists, every failure and
// cancellation path restores from it best-effort before returning; a
// restore failure is logged but never masks the original error. The
// county lock is held from just before the snapshot until the restore
// (if any) is done.
func (o *Orchestrator) importFile(ctx context.Context, job *Job, path string, h *workerHandle, log zerolog.Logger) (Status, error) {
	total, err := countDataRows(path)
	if err != nil {
		return StatusFailed, fmt.Errorf("failed to read source file: %w", err)
	}
	if err := o.jobs.SetTotalRows(ctx, job.ID, total); err != nil {
		return StatusFailed, err
	}

	countyNumber, ok := county.Number(job.CountyName)
	if !ok {
		return StatusFailed, fmt.Errorf("%w: %s", ErrUnknownCounty, job.CountyName)
	}

	unlock := o.lockCounty(countyNumber)
	defer unlock()

	// Persist the snapshot reference before anything destructive so
	// recovery always knows where to restore from.
	table := o.snapshots.TableName(job.ID)
	if err := o.jobs.SetBackup(ctx, job.ID, table, countyNumber); err != nil {
		return StatusFailed, err
	}
	job.BackupTable = table
	job.DetectedCountyNumber = countyNumber

	if _, err := o.snapshots.Create(ctx, job.ID, countyNumber); err != nil {
		return StatusFailed, err
	}

	if _, err := o.voters.DeleteCounty(ctx, countyNumber); err != nil {
		o.restoreBestEffort(ctx, job)
		return StatusFailed, err
	}

	cancelled, err := o.streamFile(ctx, job, path, h)
	if err != nil {
		o.restoreBestEffort(ctx, job)
		return StatusFailed, err
	}
	if cancelled {
		log.Info().Msg("Cancellation honored, restoring county")
		o.restoreBestEffort(ctx, job)
		return StatusCancelled, nil
	}

	return StatusCompleted, nil
}

// streamFile streams the source rows through the mapper and batch
// writer, checking the cancellation flag once per batch boundary.
// Cancellation latency is therefore bounded by one batch, and at least
// one full batch commits before the first check can fire.
func (o *Orchestrator) streamFile(ctx context.Context, job *Job, path string, h *workerHandle) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read header row: %w", err)
	}
	header = append([]string(nil), header...)

	w := NewBatchWriter(o.voters, job.ID, o.batchSize)
	for {
		if w.AtBatchBoundary() && h.cancel.Load() {
			// Commit what we have and stop; the caller restores.
			if err := w.Flush(ctx); err != nil {
				return false, err
			}
			return true, nil
		}

		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, fmt.Errorf("failed to read row %d: %w", w.Processed()+1, err)
		}

		if err := w.Write(ctx, MapRow(header, record)); err != nil {
			return false, err
		}
	}

	if err := w.Flush(ctx); err != nil {
		return false, err
	}
	return h.cancel.Load(), nil
}

// restoreBestEffort restores a job's county from its snapshot, logging
// failures instead of returning them: the job is already terminal and
// the original failure reason must not be masked.
func (o *Orchestrator) restoreBestEffort(ctx context.Context, job *Job) {
	if job.BackupTable == "" || job.DetectedCountyNumber == "" {
		return
	}
	if err := o.snapshots.Restore(ctx, job.BackupTable, job.DetectedCountyNumber); err != nil {
		o.logger.Error().Err(err).
			Int64("job_id", job.ID).
			Str("table", job.BackupTable).
			Str("county_number", job.DetectedCountyNumber).
			Msg("Best-effort snapshot restore failed; county may need manual reconciliation")
	}
}

// countDataRows counts the data rows in a delimited file: total lines
// minus the header.
func countDataRows(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var lines int64
	trailing := false
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				lines++
			}
		}
		if n > 0 {
			trailing = buf[n-1] != '\n'
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if trailing {
		lines++
	}
	if lines == 0 {
		return 0, nil
	}
	return lines - 1, nil
}
