package badger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

// JobStorage implements the JobStorage interface on Badger.
//
// Badger has no server-side compare-and-set, so claims are serialized behind
// claimMu and the pending precondition is re-checked inside the critical
// section before the write. The queue is single-owner per process, which is
// all the lifecycle model assumes.
type JobStorage struct {
	db      *BadgerDB
	logger  arbor.ILogger
	claimMu sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.Job{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return err
	}
	return nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := buildJobQuery(opts)

	if opts != nil {
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) CountJobs(ctx context.Context, opts *interfaces.JobListOptions) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, buildJobQuery(opts))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

func (s *JobStorage) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	counts := make(map[models.JobStatus]int)
	for _, status := range []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusProcessing,
		models.JobStatusCompleted,
		models.JobStatusFailed,
		models.JobStatusCancelled,
	} {
		count, err := s.db.Store().Count(&models.Job{}, badgerhold.Where("Status").Eq(status))
		if err != nil {
			return nil, fmt.Errorf("failed to count jobs by status: %w", err)
		}
		counts[status] = int(count)
	}
	return counts, nil
}

func (s *JobStorage) ClaimNextPending(ctx context.Context, firstStage string) (*models.Job, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var candidates []models.Job
	query := badgerhold.Where("Status").Eq(models.JobStatusPending).SortBy("CreatedAt").Limit(1)
	if err := s.db.Store().Find(&candidates, query); err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Re-read inside the critical section: the row must still be pending at
	// write time for the claim to succeed.
	var job models.Job
	if err := s.db.Store().Get(candidates[0].ID, &job); err != nil {
		return nil, fmt.Errorf("failed to re-read candidate job: %w", err)
	}
	if job.Status != models.JobStatusPending {
		return nil, nil
	}

	job.MarkProcessing(firstStage)
	if err := s.db.Store().Upsert(job.ID, &job); err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return &job, nil
}

func (s *JobStorage) ClaimJob(ctx context.Context, jobID, firstStage string) (*models.Job, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job.Status != models.JobStatusPending {
		return nil, nil
	}

	job.MarkProcessing(firstStage)
	if err := s.db.Store().Upsert(job.ID, &job); err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return &job, nil
}

func (s *JobStorage) MarkProcessingJobsPending(ctx context.Context, reason string) (int, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusProcessing)); err != nil {
		return 0, err
	}

	count := 0
	for i := range jobs {
		job := jobs[i]
		job.Status = models.JobStatusPending
		job.ProgressStage = ""
		job.StartedAt = nil
		if err := s.db.Store().Upsert(job.ID, &job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to recover orphaned job")
			continue
		}
		s.logger.Info().Str("job_id", job.ID).Str("reason", reason).Msg("Returned orphaned processing job to pending")
		count++
	}
	return count, nil
}

func buildJobQuery(opts *interfaces.JobListOptions) *badgerhold.Query {
	query := badgerhold.Where("ID").Ne("")
	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(models.JobStatus(opts.Status))
		}
		if opts.CreatedBy != "" {
			query = query.And("CreatedBy").Eq(opts.CreatedBy)
		}
	}
	return query
}
