package voterdb

import (
	"context"
	"fmt"
	"strings"
)

// The table-name arguments below are interpolated into SQL and must come
// from importer.SnapshotManager, which generates and validates them
// against a fixed pattern before calling in.

// SnapshotCounty copies all current voters for a county into a side
// table. The copy includes the id column, but restores regenerate ids.
func (s *Store) SnapshotCounty(ctx context.Context, table, countyNumber string) error {
	query := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q AS SELECT * FROM voters WHERE county_number = ?`, table)
	if _, err := s.db.ExecContext(ctx, query, countyNumber); err != nil {
		return fmt.Errorf("failed to create snapshot table %s: %w", table, err)
	}
	return nil
}

// RestoreCounty deletes the county's current voters and re-inserts the
// snapshot content, both in one transaction. Identifiers are
// regenerated; the goal is content restoration, not identity
// preservation. A crash mid-transaction rolls the whole restore back,
// but a crash between a caller's restore attempts leaves the partition
// as the snapshot wrote it.
func (s *Store) RestoreCounty(ctx context.Context, table, countyNumber string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin restore transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM voters WHERE county_number = ?`, countyNumber); err != nil {
		return fmt.Errorf("failed to clear county before restore: %w", err)
	}

	cols := strings.Join(voterColumns, ", ")
	query := fmt.Sprintf(`INSERT INTO voters (%s) SELECT %s FROM %q`, cols, cols, table)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to restore from snapshot table %s: %w", table, err)
	}

	return tx.Commit()
}

// TableExists reports whether a table with the given name exists.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return n > 0, nil
}

// DropTable drops a snapshot side table if it exists.
func (s *Store) DropTable(ctx context.Context, table string) error {
	query := fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to drop snapshot table %s: %w", table, err)
	}
	return nil
}
