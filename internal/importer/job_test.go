package importer

import (
	"strings"
	"testing"
	"time"
)

func TestPercentComplete(t *testing.T) {
	tests := []struct {
		name      string
		processed int64
		total     int64
		want      float64
	}{
		{"zero total", 0, 0, 0},
		{"zero total with progress", 500, 0, 0},
		{"half", 500, 1000, 50},
		{"done", 1000, 1000, 100},
		{"rounds to one decimal", 1, 3, 33.3},
		{"rounds up", 2, 3, 66.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &Job{ProcessedRows: tt.processed, TotalRows: tt.total}
			if got := j.PercentComplete(); got != tt.want {
				t.Errorf("PercentComplete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanRollback(t *testing.T) {
	window := 24 * time.Hour
	now := time.Now()
	completed := now.Add(-time.Hour)

	t.Run("completed within window", func(t *testing.T) {
		j := &Job{Status: StatusCompleted, CompletedAt: &completed}
		if !j.CanRollback(window, now) {
			t.Error("expected rollback to be allowed")
		}
	})

	t.Run("non-completed statuses", func(t *testing.T) {
		for _, st := range []Status{StatusPending, StatusRunning, StatusFailed, StatusCancelled} {
			j := &Job{Status: st, CompletedAt: &completed}
			if j.CanRollback(window, now) {
				t.Errorf("status %s should not be rollback-eligible", st)
			}
		}
	})

	t.Run("missing completion time", func(t *testing.T) {
		j := &Job{Status: StatusCompleted}
		if j.CanRollback(window, now) {
			t.Error("job without completed_at should not be rollback-eligible")
		}
	})

	t.Run("exactly at window boundary", func(t *testing.T) {
		at := now.Add(-window)
		j := &Job{Status: StatusCompleted, CompletedAt: &at}
		if j.CanRollback(window, now) {
			t.Error("rollback at exactly the window boundary should be refused")
		}
	})

	t.Run("just inside window", func(t *testing.T) {
		at := now.Add(-window + time.Second)
		j := &Job{Status: StatusCompleted, CompletedAt: &at}
		if !j.CanRollback(window, now) {
			t.Error("rollback just inside the window should be allowed")
		}
	})
}

func TestTruncateError(t *testing.T) {
	if got := truncateError("short"); got != "short" {
		t.Errorf("truncateError = %q", got)
	}
	long := strings.Repeat("x", maxErrorLen+500)
	got := truncateError(long)
	if len(got) != maxErrorLen {
		t.Errorf("len = %d, want %d", len(got), maxErrorLen)
	}
}

func TestIsActive(t *testing.T) {
	active := []Status{StatusPending, StatusRunning}
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}

	for _, st := range active {
		if !(&Job{Status: st}).IsActive() {
			t.Errorf("status %s should be active", st)
		}
	}
	for _, st := range terminal {
		if (&Job{Status: st}).IsActive() {
			t.Errorf("status %s should be terminal", st)
		}
	}
}
