// Package upload validates candidate PDFs and coordinates the quota
// gate and the object PUT.
package upload

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an upload job. Transitions are
// strictly forward; only Validating may repeat (file re-selection).
type Status string

const (
	StatusValidating   Status = "validating"
	StatusQuotaPending Status = "quota-pending"
	StatusUploading    Status = "uploading"
	StatusUploaded     Status = "uploaded"
	StatusPolling      Status = "polling"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusTimedOut     Status = "timed-out"
)

var statusOrder = map[Status]int{
	StatusValidating:   0,
	StatusQuotaPending: 1,
	StatusUploading:    2,
	StatusUploaded:     3,
	StatusPolling:      4,
	StatusCompleted:    5,
	StatusFailed:       5,
	StatusTimedOut:     5,
}

// Terminal reports whether s ends the job's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimedOut
}

// Job tracks one upload through its lifecycle. It is discarded when the
// caller resets for a new upload.
type Job struct {
	ID               string
	StorageKey       string
	OriginalFileName string
	Format           string
	Status           Status
	Mock             bool
	CreatedAt        time.Time
}

// NewJob creates a job in Validating state.
func NewJob(fileName, format string) *Job {
	return &Job{
		ID:               uuid.NewString(),
		OriginalFileName: fileName,
		Format:           format,
		Status:           StatusValidating,
		CreatedAt:        time.Now(),
	}
}

// Advance moves the job to next, rejecting backward transitions.
func (j *Job) Advance(next Status) error {
	cur, ok := statusOrder[j.Status]
	if !ok {
		return fmt.Errorf("upload: job %s in unknown status %q", j.ID, j.Status)
	}
	nxt, ok := statusOrder[next]
	if !ok {
		return fmt.Errorf("upload: unknown status %q", next)
	}
	if next == StatusValidating && j.Status == StatusValidating {
		return nil
	}
	if nxt <= cur {
		return fmt.Errorf("upload: job %s cannot move %s -> %s", j.ID, j.Status, next)
	}
	j.Status = next
	return nil
}
