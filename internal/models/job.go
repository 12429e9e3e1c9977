// -----------------------------------------------------------------------
// Job - persistent record for one post-generation request
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal returns true for states a job cannot leave (except failed via retry)
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// allowedTransitions defines the permitted status graph:
// pending -> processing -> {completed, failed}
// failed -> pending (retry)
// {pending, processing} -> cancelled (subject to mode policy)
var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusFailed:     {JobStatusPending},
}

// CanTransition reports whether the status graph permits from -> to
func CanTransition(from, to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PostResult is populated when a job completes. Cost is the rounded total
// across all generation stages, in USD with 3-decimal precision.
type PostResult struct {
	ArtifactID string            `json:"artifact_id"`
	ImageID    string            `json:"image_id,omitempty"`
	Metadata   *PostMetadata     `json:"metadata,omitempty"`
	Cost       float64           `json:"cost"`
	Provider   string            `json:"provider"`
	Model      string            `json:"model"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// PostMetadata holds SEO-style metadata generated alongside the post
type PostMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// Job represents one queued generation request and its lifecycle state.
// All status, progress, result and error writes go through the queue
// manager; nothing else mutates these fields.
type Job struct {
	ID            string      `json:"id" badgerhold:"key"`
	Status        JobStatus   `json:"status"`
	Payload       Submission  `json:"payload"`
	ProgressStage string      `json:"progress_stage,omitempty"` // Meaningful only while Status == processing
	Result        *PostResult `json:"result,omitempty"`         // Set iff Status == completed
	Error         string      `json:"error,omitempty"`          // Set iff Status == failed
	Attempts      int         `json:"attempts"`
	CreatedBy     string      `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// NewJob creates a pending job for a validated submission
func NewJob(payload Submission) *Job {
	return &Job{
		ID:        "job_" + uuid.New().String(),
		Status:    JobStatusPending,
		Payload:   payload,
		CreatedBy: payload.CreatedBy,
		CreatedAt: time.Now(),
	}
}

// MarkProcessing transitions the job into a new processing attempt
func (j *Job) MarkProcessing(firstStage string) {
	j.Status = JobStatusProcessing
	j.ProgressStage = firstStage
	j.Attempts++
	now := time.Now()
	j.StartedAt = &now
}

// MarkCompleted records the result and clears progress state
func (j *Job) MarkCompleted(result *PostResult) {
	j.Status = JobStatusCompleted
	j.Result = result
	j.ProgressStage = ""
	now := time.Now()
	j.CompletedAt = &now
}

// MarkFailed records the failure message and clears progress state
func (j *Job) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.Error = errorMsg
	j.ProgressStage = ""
	now := time.Now()
	j.CompletedAt = &now
}

// MarkCancelled terminates the job without result or error
func (j *Job) MarkCancelled() {
	j.Status = JobStatusCancelled
	j.ProgressStage = ""
	now := time.Now()
	j.CompletedAt = &now
}

// ResetForRetry returns a failed job to pending for a fresh attempt.
// The error is cleared and progress points at the pipeline's first stage.
func (j *Job) ResetForRetry(firstStage string) {
	j.Status = JobStatusPending
	j.Error = ""
	j.Result = nil
	j.ProgressStage = firstStage
	j.StartedAt = nil
	j.CompletedAt = nil
}
