package importer

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/petitionqc/voterd/internal/voterdb"
)

// snapshotTablePattern is the only shape of table name this manager
// will ever touch. Names are derived from job ids and validated again
// before any SQL interpolation.
var snapshotTablePattern = regexp.MustCompile(`^voters_backup_[0-9]+$`)

// SnapshotManager creates and restores per-county point-in-time copies
// of the voter table. A snapshot is owned by exactly one job and lives
// until explicit cleanup; the rollback window only gates restores, not
// retention.
type SnapshotManager struct {
	store  *voterdb.Store
	logger zerolog.Logger
}

// NewSnapshotManager creates a snapshot manager over the voter store.
func NewSnapshotManager(store *voterdb.Store, logger zerolog.Logger) *SnapshotManager {
	return &SnapshotManager{
		store:  store,
		logger: logger.With().Str("component", "snapshot-manager").Logger(),
	}
}

// TableName returns the deterministic snapshot table name for a job.
func (m *SnapshotManager) TableName(jobID int64) string {
	return fmt.Sprintf("voters_backup_%d", jobID)
}

// Create copies all current voters for the county into the job's
// snapshot table and returns the table name.
func (m *SnapshotManager) Create(ctx context.Context, jobID int64, countyNumber string) (string, error) {
	table := m.TableName(jobID)
	if err := m.store.SnapshotCounty(ctx, table, countyNumber); err != nil {
		return "", err
	}
	m.logger.Info().
		Int64("job_id", jobID).
		Str("county_number", countyNumber).
		Str("table", table).
		Msg("County snapshot created")
	return table, nil
}

// Restore replaces the county's current voters with the snapshot
// content. Restore itself is transactional, but the caller sequence
// around it (mark job, restore, continue) is not guarded against a
// crash between steps; that risk is documented, not hidden.
func (m *SnapshotManager) Restore(ctx context.Context, table, countyNumber string) error {
	if !snapshotTablePattern.MatchString(table) {
		return fmt.Errorf("invalid snapshot table name: %q", table)
	}
	if countyNumber == "" {
		return fmt.Errorf("county number required for restore")
	}

	exists, err := m.store.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("snapshot table %s does not exist", table)
	}

	if err := m.store.RestoreCounty(ctx, table, countyNumber); err != nil {
		return err
	}

	m.logger.Info().
		Str("table", table).
		Str("county_number", countyNumber).
		Msg("County restored from snapshot")
	return nil
}

// Exists reports whether the snapshot table is still present.
func (m *SnapshotManager) Exists(ctx context.Context, table string) (bool, error) {
	if !snapshotTablePattern.MatchString(table) {
		return false, fmt.Errorf("invalid snapshot table name: %q", table)
	}
	return m.store.TableExists(ctx, table)
}

// Drop removes the snapshot table.
func (m *SnapshotManager) Drop(ctx context.Context, table string) error {
	if !snapshotTablePattern.MatchString(table) {
		return fmt.Errorf("invalid snapshot table name: %q", table)
	}
	if err := m.store.DropTable(ctx, table); err != nil {
		return err
	}
	m.logger.Info().Str("table", table).Msg("Snapshot dropped")
	return nil
}
