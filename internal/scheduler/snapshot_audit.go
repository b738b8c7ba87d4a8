package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/petitionqc/voterd/internal/importer"
)

// SnapshotAuditor periodically reports snapshot tables that finished
// jobs still hold past the rollback window. It only observes: snapshot
// cleanup is always an explicit operator action, so the audit logs what
// could be reclaimed and never drops anything itself.
type SnapshotAuditor struct {
	jobs           *importer.JobStore
	snapshots      *importer.SnapshotManager
	rollbackWindow time.Duration
	schedule       string
	cron           *cron.Cron
	running        bool
	mu             sync.Mutex
	logger         zerolog.Logger
}

// SnapshotAuditorConfig holds configuration for the snapshot auditor.
type SnapshotAuditorConfig struct {
	Jobs           *importer.JobStore
	Snapshots      *importer.SnapshotManager
	RollbackWindow time.Duration
	Schedule       string // Cron schedule string (e.g., "0 3 * * *")
	Logger         zerolog.Logger
}

// NewSnapshotAuditor creates a new snapshot auditor.
func NewSnapshotAuditor(cfg *SnapshotAuditorConfig) (*SnapshotAuditor, error) {
	// Default schedule: daily at 3am
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "0 3 * * *"
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, err
	}

	window := cfg.RollbackWindow
	if window <= 0 {
		window = 24 * time.Hour
	}

	s := &SnapshotAuditor{
		jobs:           cfg.Jobs,
		snapshots:      cfg.Snapshots,
		rollbackWindow: window,
		schedule:       schedule,
		logger:         cfg.Logger.With().Str("component", "snapshot-auditor").Logger(),
	}

	s.logger.Info().
		Str("schedule", schedule).
		Dur("rollback_window", window).
		Msg("Snapshot auditor initialized")

	return s, nil
}

// Start starts the snapshot auditor.
func (s *SnapshotAuditor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn().Msg("Snapshot auditor already running")
		return nil
	}

	s.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runAudit()
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.schedule).
		Time("next_run", s.getNextRun()).
		Msg("Snapshot auditor started")

	return nil
}

// Stop stops the snapshot auditor.
func (s *SnapshotAuditor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done() // Wait for a running audit to complete
	}

	s.running = false
	s.logger.Info().Msg("Snapshot auditor stopped")
}

// runAudit runs one audit cycle.
func (s *SnapshotAuditor) runAudit() {
	startTime := time.Now()
	s.logger.Debug().Msg("Running snapshot audit")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.AuditNow(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Snapshot audit failed")
		return
	}

	s.logger.Debug().
		Dur("duration", time.Since(startTime)).
		Msg("Snapshot audit completed")
}

// AuditNow runs one audit cycle immediately and returns the number of
// snapshots found past the rollback window.
func (s *SnapshotAuditor) AuditNow(ctx context.Context) (int, error) {
	holders, err := s.jobs.HoldingSnapshots(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	expired := 0
	for _, job := range holders {
		if job.CompletedAt == nil {
			continue
		}
		age := now.Sub(*job.CompletedAt)
		if age < s.rollbackWindow {
			continue
		}

		exists, err := s.snapshots.Exists(ctx, job.BackupTable)
		if err != nil {
			s.logger.Warn().Err(err).
				Int64("job_id", job.ID).
				Str("table", job.BackupTable).
				Msg("Failed to check snapshot table")
			continue
		}
		if !exists {
			// Stale reference: the table is gone but the ledger still
			// points at it. Worth flagging, nothing to reclaim.
			s.logger.Warn().
				Int64("job_id", job.ID).
				Str("table", job.BackupTable).
				Msg("Job references a missing snapshot table")
			continue
		}

		expired++
		s.logger.Info().
			Int64("job_id", job.ID).
			Str("table", job.BackupTable).
			Str("county", job.CountyName).
			Dur("age", age).
			Msg("Snapshot past rollback window, eligible for cleanup")
	}

	if expired > 0 {
		s.logger.Info().
			Int("eligible", expired).
			Int("total_held", len(holders)).
			Msg("Snapshot audit found reclaimable tables")
	}
	return expired, nil
}

// getNextRun returns the next scheduled run time.
func (s *SnapshotAuditor) getNextRun() time.Time {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(s.schedule)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(time.Now())
}

// IsRunning returns whether the auditor is running.
func (s *SnapshotAuditor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
