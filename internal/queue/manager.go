// -----------------------------------------------------------------------
// Job Queue Manager - owns the job lifecycle
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/common"
	"github.com/penmanapp/penman/internal/dedup"
	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

// Manager is the sole writer of job status, progress, result and error
// fields. The pipeline executor and HTTP handlers request every state change
// through it; nothing writes the job store directly.
type Manager struct {
	storage    interfaces.JobStorage
	guard      *dedup.Guard
	events     interfaces.EventService
	logger     arbor.ILogger
	firstStage string
	policy     interfaces.ExecutionPolicy
}

// NewManager creates a job queue manager. firstStage names the pipeline
// stage a fresh attempt starts from.
func NewManager(storage interfaces.JobStorage, guard *dedup.Guard, events interfaces.EventService, firstStage string, logger arbor.ILogger) *Manager {
	return &Manager{
		storage:    storage,
		guard:      guard,
		events:     events,
		logger:     logger,
		firstStage: firstStage,
	}
}

// SetExecutionPolicy wires the execution mode controller after construction
// (the controller itself depends on the manager).
func (m *Manager) SetExecutionPolicy(policy interfaces.ExecutionPolicy) {
	m.policy = policy
}

// Enqueue validates the payload, consults the dedup guard and writes a new
// pending job.
func (m *Manager) Enqueue(ctx context.Context, payload models.Submission) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	fingerprint := common.SubmissionFingerprint(
		payload.CreatedBy,
		payload.Content,
		payload.Options.Model,
		payload.Options.TargetLength,
		payload.Options.GenerateImage,
		payload.Options.GenerateMetadata,
	)

	proceed, err := m.guard.Acquire(ctx, fingerprint, payload.CreatedBy)
	if err != nil {
		return "", fmt.Errorf("dedup guard failed: %w", err)
	}
	if !proceed {
		// Unreachable with the current guard semantics; kept so a stricter
		// guard slots in without touching enqueue.
		return "", fmt.Errorf("%w: duplicate submission", ErrValidation)
	}

	job := models.NewJob(payload)
	if err := m.storage.SaveJob(ctx, job); err != nil {
		m.guard.Release(ctx, fingerprint)
		return "", fmt.Errorf("failed to persist job: %w", err)
	}
	m.guard.Release(ctx, fingerprint)

	m.logger.Info().
		Str("job_id", job.ID).
		Str("created_by", job.CreatedBy).
		Bool("generate_image", payload.Options.GenerateImage).
		Bool("generate_metadata", payload.Options.GenerateMetadata).
		Msg("Job enqueued")

	m.publish(ctx, interfaces.EventJobCreated, job)
	return job.ID, nil
}

// ClaimNextPending atomically claims one pending job for execution.
// Returns (nil, nil) when the queue has no pending work.
func (m *Manager) ClaimNextPending(ctx context.Context) (*models.Job, error) {
	job, err := m.storage.ClaimNextPending(ctx, m.firstStage)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	m.logger.Info().
		Str("job_id", job.ID).
		Int("attempt", job.Attempts).
		Msg("Job claimed for processing")

	m.publish(ctx, interfaces.EventJobClaimed, job)
	return job, nil
}

// Claim claims one specific pending job for execution. A job that exists
// but is no longer pending yields an invalid transition error.
func (m *Manager) Claim(ctx context.Context, jobID string) (*models.Job, error) {
	if _, err := m.getJob(ctx, jobID); err != nil {
		return nil, err
	}

	job, err := m.storage.ClaimJob(ctx, jobID, m.firstStage)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s is not pending", ErrInvalidTransition, jobID)
	}

	m.logger.Info().
		Str("job_id", job.ID).
		Int("attempt", job.Attempts).
		Msg("Job claimed for processing")

	m.publish(ctx, interfaces.EventJobClaimed, job)
	return job, nil
}

// UpdateProgress overwrites the progress stage. It is a no-op unless the
// job is currently processing.
func (m *Manager) UpdateProgress(ctx context.Context, jobID, stage string) error {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusProcessing {
		m.logger.Debug().
			Str("job_id", jobID).
			Str("status", string(job.Status)).
			Str("stage", stage).
			Msg("Ignoring progress update for non-processing job")
		return nil
	}

	job.ProgressStage = stage
	if err := m.storage.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}

	m.logger.Debug().Str("job_id", jobID).Str("stage", stage).Msg("Job progress updated")
	m.publish(ctx, interfaces.EventJobProgress, job)
	return nil
}

// Complete transitions processing -> completed and records the result
func (m *Manager) Complete(ctx context.Context, jobID string, result *models.PostResult) error {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusProcessing {
		return fmt.Errorf("%w: cannot complete job in status %s", ErrInvalidTransition, job.Status)
	}

	job.MarkCompleted(result)
	if err := m.storage.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save completed job: %w", err)
	}

	m.logger.Info().
		Str("job_id", jobID).
		Str("artifact_id", result.ArtifactID).
		Float64("cost", result.Cost).
		Msg("Job completed")

	m.publish(ctx, interfaces.EventJobCompleted, job)
	return nil
}

// Fail transitions processing -> failed with an error message
func (m *Manager) Fail(ctx context.Context, jobID, errorMsg string) error {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusProcessing {
		return fmt.Errorf("%w: cannot fail job in status %s", ErrInvalidTransition, job.Status)
	}

	job.MarkFailed(errorMsg)
	if err := m.storage.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save failed job: %w", err)
	}

	m.logger.Warn().Str("job_id", jobID).Str("error", errorMsg).Msg("Job failed")
	m.publish(ctx, interfaces.EventJobFailed, job)
	return nil
}

// Retry resets a failed job to pending for a fresh attempt. The error is
// cleared and progress points at the pipeline's first stage.
func (m *Manager) Retry(ctx context.Context, jobID string) error {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusFailed {
		return fmt.Errorf("%w: retry only permitted from failed, job is %s", ErrInvalidTransition, job.Status)
	}

	job.ResetForRetry(m.firstStage)
	if err := m.storage.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save retried job: %w", err)
	}

	m.logger.Info().Str("job_id", jobID).Msg("Job reset for retry")
	m.publish(ctx, interfaces.EventJobRetried, job)
	return nil
}

// Cancel terminates a pending or processing job. Cancellation of a
// processing job is refused in automatic mode: the timer-driven runner has
// no safe interrupt point once an attempt has started.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case models.JobStatusPending:
		// Always cancellable
	case models.JobStatusProcessing:
		if m.policy != nil && m.policy.AutomaticEnabled() {
			return ErrCancelRefused
		}
	default:
		return fmt.Errorf("%w: cannot cancel job in status %s", ErrInvalidTransition, job.Status)
	}

	job.MarkCancelled()
	if err := m.storage.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save cancelled job: %w", err)
	}

	m.logger.Info().Str("job_id", jobID).Msg("Job cancelled")
	m.publish(ctx, interfaces.EventJobCancelled, job)
	return nil
}

// Get returns a single job
func (m *Manager) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return m.getJob(ctx, jobID)
}

// List returns filtered jobs plus the total count for pagination
func (m *Manager) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, int, error) {
	jobs, err := m.storage.ListJobs(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.storage.CountJobs(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// Stats returns queue-wide counts by status
func (m *Manager) Stats(ctx context.Context) (*interfaces.QueueStats, error) {
	counts, err := m.storage.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &interfaces.QueueStats{
		Pending:    counts[models.JobStatusPending],
		Processing: counts[models.JobStatusProcessing],
		Completed:  counts[models.JobStatusCompleted],
		Failed:     counts[models.JobStatusFailed],
		Cancelled:  counts[models.JobStatusCancelled],
	}
	stats.Total = stats.Pending + stats.Processing + stats.Completed + stats.Failed + stats.Cancelled
	return stats, nil
}

// RecoverOrphans returns processing jobs to pending after an unclean
// shutdown. Called once at startup.
func (m *Manager) RecoverOrphans(ctx context.Context) (int, error) {
	count, err := m.storage.MarkProcessingJobsPending(ctx, "startup recovery")
	if err != nil {
		return 0, err
	}
	if count > 0 {
		m.logger.Info().Int("count", count).Msg("Recovered orphaned processing jobs")
		m.publish(ctx, interfaces.EventQueueChanged, nil)
	}
	return count, nil
}

func (m *Manager) getJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

func (m *Manager) publish(ctx context.Context, eventType interfaces.EventType, job *models.Job) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: job}); err != nil {
		m.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish job event")
	}
	if err := m.events.Publish(ctx, interfaces.Event{Type: interfaces.EventQueueChanged, Payload: nil}); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to publish queue change event")
	}
}
