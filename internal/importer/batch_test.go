package importer

import (
	"context"
	"testing"

	"github.com/petitionqc/voterd/pkg/models"
)

func TestBatchWriterFlushAtBatchSize(t *testing.T) {
	store, jobs := setupTestStore(t)
	ctx := context.Background()

	job, _ := jobs.Create(ctx, "voters.csv", "Franklin")
	w := NewBatchWriter(store, job.ID, 3)

	for i := 0; i < 3; i++ {
		v := &models.Voter{SOSVoterID: "OH00" + string(rune('1'+i)), CountyNumber: "25"}
		if err := w.Write(ctx, v); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	// Batch size reached: rows and progress already committed
	count, err := store.CountByCounty(ctx, "25")
	if err != nil {
		t.Fatalf("CountByCounty failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3 after auto-flush", count)
	}
	got, _ := jobs.Get(ctx, job.ID)
	if got.ProcessedRows != 3 {
		t.Errorf("processed_rows = %d, want 3", got.ProcessedRows)
	}
	if !w.AtBatchBoundary() {
		t.Error("writer should sit at a batch boundary")
	}
}

func TestBatchWriterPartialFlush(t *testing.T) {
	store, jobs := setupTestStore(t)
	ctx := context.Background()

	job, _ := jobs.Create(ctx, "voters.csv", "Franklin")
	w := NewBatchWriter(store, job.ID, 10)

	for i := 0; i < 4; i++ {
		if err := w.Write(ctx, &models.Voter{SOSVoterID: "OH1", CountyNumber: "25"}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	// Below batch size: nothing committed yet
	count, _ := store.CountByCounty(ctx, "25")
	if count != 0 {
		t.Errorf("count = %d, want 0 before flush", count)
	}
	if w.AtBatchBoundary() {
		t.Error("writer should not be at a batch boundary")
	}

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	count, _ = store.CountByCounty(ctx, "25")
	if count != 4 {
		t.Errorf("count = %d, want 4 after flush", count)
	}
	if w.Inserted() != 4 {
		t.Errorf("Inserted() = %d, want 4", w.Inserted())
	}
}

func TestBatchWriterRejectedRows(t *testing.T) {
	store, jobs := setupTestStore(t)
	ctx := context.Background()

	job, _ := jobs.Create(ctx, "voters.csv", "Franklin")
	w := NewBatchWriter(store, job.ID, 2)

	// Rejected rows advance the processed counter but insert nothing,
	// and still trigger the boundary flush.
	if err := w.Write(ctx, nil); err != nil {
		t.Fatalf("Write(nil) failed: %v", err)
	}
	if err := w.Write(ctx, &models.Voter{SOSVoterID: "OH1", CountyNumber: "25"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if w.Processed() != 2 {
		t.Errorf("Processed() = %d, want 2", w.Processed())
	}
	got, _ := jobs.Get(ctx, job.ID)
	if got.ProcessedRows != 2 {
		t.Errorf("processed_rows = %d, want 2", got.ProcessedRows)
	}
	count, _ := store.CountByCounty(ctx, "25")
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if w.Inserted() != 1 {
		t.Errorf("Inserted() = %d, want 1", w.Inserted())
	}
}

func TestBatchWriterAllRejected(t *testing.T) {
	store, jobs := setupTestStore(t)
	ctx := context.Background()

	job, _ := jobs.Create(ctx, "voters.csv", "Franklin")
	w := NewBatchWriter(store, job.ID, 3)

	// A batch of nothing but rejected rows still commits its progress.
	for i := 0; i < 3; i++ {
		if err := w.Write(ctx, nil); err != nil {
			t.Fatalf("Write(nil) failed: %v", err)
		}
	}

	got, _ := jobs.Get(ctx, job.ID)
	if got.ProcessedRows != 3 {
		t.Errorf("processed_rows = %d, want 3", got.ProcessedRows)
	}
	count, _ := store.CountByCounty(ctx, "25")
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if !w.AtBatchBoundary() {
		t.Error("writer should sit at a batch boundary")
	}
}

func TestBatchWriterEmptyFlush(t *testing.T) {
	store, jobs := setupTestStore(t)
	ctx := context.Background()

	job, _ := jobs.Create(ctx, "voters.csv", "Franklin")
	w := NewBatchWriter(store, job.ID, 10)

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("empty Flush failed: %v", err)
	}
	count, _ := store.CountByCounty(ctx, "25")
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}
