package importer

import (
	"context"

	"github.com/petitionqc/voterd/internal/voterdb"
	"github.com/petitionqc/voterd/pkg/models"
)

// BatchWriter accumulates mapped voters and bulk-inserts them at a
// fixed batch size. Each flush commits the rows and the owning job's
// processed-row counter together, so progress is visible only at batch
// boundaries and a crash loses at most one batch.
type BatchWriter struct {
	store     *voterdb.Store
	jobID     int64
	batchSize int

	buf       []*models.Voter
	processed int64
	inserted  int64
}

// NewBatchWriter creates a writer for one job.
func NewBatchWriter(store *voterdb.Store, jobID int64, batchSize int) *BatchWriter {
	return &BatchWriter{
		store:     store,
		jobID:     jobID,
		batchSize: batchSize,
		buf:       make([]*models.Voter, 0, batchSize),
	}
}

// Write counts one source row and buffers its mapped record. voter may
// be nil for rows the mapper rejected; they advance the processed
// counter but insert nothing. Every batchSize-th row flushes, accepted
// or not, so commits land on the same boundaries the cancellation
// check uses.
func (w *BatchWriter) Write(ctx context.Context, voter *models.Voter) error {
	w.processed++
	if voter != nil {
		w.buf = append(w.buf, voter)
	}
	if w.processed%int64(w.batchSize) == 0 {
		return w.Flush(ctx)
	}
	return nil
}

// Flush commits the buffered records and the current processed count in
// one transaction. Safe to call with an empty buffer; the trailing
// partial batch still needs its progress committed.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if err := w.store.CommitBatch(ctx, w.jobID, w.buf, w.processed); err != nil {
		return err
	}
	w.inserted += int64(len(w.buf))
	w.buf = w.buf[:0]
	return nil
}

// Processed returns the number of source rows seen so far, including
// rejected ones.
func (w *BatchWriter) Processed() int64 {
	return w.processed
}

// Inserted returns the number of records committed so far.
func (w *BatchWriter) Inserted() int64 {
	return w.inserted
}

// AtBatchBoundary reports whether the writer sits exactly at a batch
// boundary: the cancellation-check granularity.
func (w *BatchWriter) AtBatchBoundary() bool {
	return w.processed > 0 && w.processed%int64(w.batchSize) == 0
}
