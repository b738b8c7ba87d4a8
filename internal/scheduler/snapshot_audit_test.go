package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petitionqc/voterd/internal/importer"
	"github.com/petitionqc/voterd/internal/voterdb"
)

func setupTestAuditor(t *testing.T, window time.Duration) (*SnapshotAuditor, *voterdb.Store, *importer.JobStore) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "voterd.db")
	store, err := voterdb.Open(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	jobs := importer.NewJobStore(store.DB(), zerolog.Nop())
	snapshots := importer.NewSnapshotManager(store, zerolog.Nop())

	auditor, err := NewSnapshotAuditor(&SnapshotAuditorConfig{
		Jobs:           jobs,
		Snapshots:      snapshots,
		RollbackWindow: window,
		Logger:         zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("failed to create auditor: %v", err)
	}
	return auditor, store, jobs
}

func TestNewSnapshotAuditorValidation(t *testing.T) {
	_, err := NewSnapshotAuditor(&SnapshotAuditorConfig{
		Schedule: "not a schedule",
		Logger:   zerolog.Nop(),
	})
	if err == nil {
		t.Error("expected error for invalid cron schedule")
	}

	a, err := NewSnapshotAuditor(&SnapshotAuditorConfig{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("default schedule should be valid: %v", err)
	}
	if a.schedule != "0 3 * * *" {
		t.Errorf("schedule = %q, want default", a.schedule)
	}
	if a.rollbackWindow != 24*time.Hour {
		t.Errorf("window = %v, want 24h default", a.rollbackWindow)
	}
}

func TestAuditNow(t *testing.T) {
	auditor, store, jobs := setupTestAuditor(t, time.Millisecond)
	ctx := context.Background()

	// Expired holder with a live snapshot table: reported.
	expired, _ := jobs.Create(ctx, "expired.csv", "Franklin")
	if err := store.SnapshotCounty(ctx, "voters_backup_1", "25"); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	jobs.SetBackup(ctx, expired.ID, "voters_backup_1", "25")
	jobs.Finish(ctx, expired.ID, importer.StatusCompleted, "")

	// Holder whose table was dropped out-of-band: flagged, not counted.
	dangling, _ := jobs.Create(ctx, "dangling.csv", "Franklin")
	jobs.SetBackup(ctx, dangling.ID, "voters_backup_2", "25")
	jobs.Finish(ctx, dangling.ID, importer.StatusCompleted, "")

	// Job with no snapshot: ignored.
	clean, _ := jobs.Create(ctx, "clean.csv", "Franklin")
	jobs.Finish(ctx, clean.ID, importer.StatusCompleted, "")

	time.Sleep(5 * time.Millisecond) // pass the tiny window

	n, err := auditor.AuditNow(ctx)
	if err != nil {
		t.Fatalf("AuditNow failed: %v", err)
	}
	if n != 1 {
		t.Errorf("eligible = %d, want 1", n)
	}

	// The audit only observes; nothing is dropped or cleared.
	exists, _ := store.TableExists(ctx, "voters_backup_1")
	if !exists {
		t.Error("audit must never drop snapshot tables")
	}
	got, _ := jobs.Get(ctx, expired.ID)
	if got.BackupTable != "voters_backup_1" {
		t.Error("audit must never clear the backup reference")
	}
}

func TestAuditNowWithinWindow(t *testing.T) {
	auditor, store, jobs := setupTestAuditor(t, time.Hour)
	ctx := context.Background()

	job, _ := jobs.Create(ctx, "fresh.csv", "Franklin")
	if err := store.SnapshotCounty(ctx, "voters_backup_1", "25"); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	jobs.SetBackup(ctx, job.ID, "voters_backup_1", "25")
	jobs.Finish(ctx, job.ID, importer.StatusCompleted, "")

	n, err := auditor.AuditNow(ctx)
	if err != nil {
		t.Fatalf("AuditNow failed: %v", err)
	}
	if n != 0 {
		t.Errorf("eligible = %d, want 0 inside the window", n)
	}
}

func TestAuditorStartStop(t *testing.T) {
	auditor, _, _ := setupTestAuditor(t, time.Hour)

	if auditor.IsRunning() {
		t.Error("auditor should not be running before Start")
	}
	if err := auditor.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !auditor.IsRunning() {
		t.Error("auditor should be running after Start")
	}

	// Second Start is a no-op
	if err := auditor.Start(); err != nil {
		t.Errorf("second Start failed: %v", err)
	}

	auditor.Stop()
	if auditor.IsRunning() {
		t.Error("auditor should not be running after Stop")
	}

	// Second Stop is a no-op
	auditor.Stop()
}
