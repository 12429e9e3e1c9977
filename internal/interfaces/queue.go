package interfaces

import (
	"context"

	"github.com/penmanapp/penman/internal/models"
)

// QueueStats summarizes the queue for the dashboard's queue_status topic
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// JobQueue owns the job lifecycle. It is the sole writer of job status,
// progress, result and error fields.
type JobQueue interface {
	// Enqueue validates the payload, consults the dedup guard and writes a
	// new pending job, returning its ID.
	Enqueue(ctx context.Context, payload models.Submission) (string, error)

	// ClaimNextPending atomically claims one pending job for execution.
	// Returns (nil, nil) when no pending job exists.
	ClaimNextPending(ctx context.Context) (*models.Job, error)

	// Claim claims one specific pending job for execution, used by the
	// manual-mode run trigger.
	Claim(ctx context.Context, jobID string) (*models.Job, error)

	// UpdateProgress overwrites the progress stage; no-op unless the job is
	// currently processing.
	UpdateProgress(ctx context.Context, jobID, stage string) error

	// Complete transitions processing -> completed with a result
	Complete(ctx context.Context, jobID string, result *models.PostResult) error

	// Fail transitions processing -> failed with an error message
	Fail(ctx context.Context, jobID, errorMsg string) error

	// Retry resets a failed job to pending for a fresh attempt
	Retry(ctx context.Context, jobID string) error

	// Cancel terminates a pending or processing job, subject to the
	// execution mode's cancellation policy.
	Cancel(ctx context.Context, jobID string) error

	// Get returns a single job
	Get(ctx context.Context, jobID string) (*models.Job, error)

	// List returns filtered jobs plus the total count for pagination
	List(ctx context.Context, opts *JobListOptions) ([]*models.Job, int, error)

	// Stats returns queue-wide counts by status
	Stats(ctx context.Context) (*QueueStats, error)
}

// ExecutionPolicy exposes the current execution mode to lifecycle decisions
// (cancellation of processing jobs is refused in automatic mode).
type ExecutionPolicy interface {
	AutomaticEnabled() bool
}

// PipelineRunner drives one claimed job through the generation pipeline
type PipelineRunner interface {
	Run(ctx context.Context, job *models.Job) error

	// FirstStage names the stage a fresh attempt starts from
	FirstStage() string
}
