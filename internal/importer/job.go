// Package importer implements the voter file import pipeline: column
// mapping, batched bulk loading, per-county snapshot/restore, the
// persistent import job ledger, and the orchestrator that runs jobs on
// background workers with cooperative cancellation and startup crash
// recovery.
package importer

import (
	"math"
	"time"
)

// Status is the lifecycle state of an import job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// maxErrorLen bounds the error text persisted on a job.
const maxErrorLen = 1000

// Job is the persistent record of one voter file's import attempt. One
// job is bound to exactly one source file and one county name; the
// county number actually used is recorded once detected, since the name
// is only a lookup hint and the number is needed for restore.
type Job struct {
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	CountyName string `json:"county_name"`
	Status     Status `json:"status"`

	TotalRows     int64  `json:"total_rows"`
	ProcessedRows int64  `json:"processed_rows"`
	ErrorMessage  string `json:"error_message,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	// BackupTable references the snapshot taken before the county was
	// mutated. Set before any destructive action, cleared only by
	// explicit cleanup.
	BackupTable          string `json:"backup_table,omitempty"`
	DetectedCountyNumber string `json:"detected_county_number,omitempty"`

	// CancelRequested is the persisted half of the dual-state
	// cancellation flag. It does not survive as a pending request
	// across restart; recovery handles interrupted jobs instead.
	CancelRequested bool `json:"cancel_requested"`
}

// IsActive reports whether the job has not reached a terminal state.
func (j *Job) IsActive() bool {
	return j.Status == StatusPending || j.Status == StatusRunning
}

// PercentComplete returns progress rounded to one decimal place, 0 when
// the total is unknown or zero.
func (j *Job) PercentComplete() float64 {
	if j.TotalRows == 0 {
		return 0
	}
	pct := float64(j.ProcessedRows) / float64(j.TotalRows) * 100
	return math.Round(pct*10) / 10
}

// CanRollback reports rollback eligibility at the given instant: only
// completed jobs, and only strictly within the window after completion.
// Past the window other imports may have touched the county, so the
// snapshot is no longer trusted as a restore target.
func (j *Job) CanRollback(window time.Duration, now time.Time) bool {
	if j.Status != StatusCompleted || j.CompletedAt == nil {
		return false
	}
	return now.Sub(*j.CompletedAt) < window
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}
