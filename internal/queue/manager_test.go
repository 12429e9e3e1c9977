package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/dedup"
	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

// memJobStorage is an in-memory JobStorage preserving insertion order
type memJobStorage struct {
	mu    sync.Mutex
	order []string
	jobs  map[string]*models.Job
}

func newMemJobStorage() *memJobStorage {
	return &memJobStorage{jobs: make(map[string]*models.Job)}
}

func (s *memJobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		s.order = append(s.order, job.ID)
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *memJobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	copied := *job
	return &copied, nil
}

func (s *memJobStorage) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

func (s *memJobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, id := range s.order {
		job := s.jobs[id]
		if opts != nil && opts.Status != "" && string(job.Status) != opts.Status {
			continue
		}
		copied := *job
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memJobStorage) CountJobs(ctx context.Context, opts *interfaces.JobListOptions) (int, error) {
	jobs, err := s.ListJobs(ctx, opts)
	return len(jobs), err
}

func (s *memJobStorage) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.JobStatus]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (s *memJobStorage) ClaimNextPending(ctx context.Context, firstStage string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status == models.JobStatusPending {
			job.MarkProcessing(firstStage)
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memJobStorage) ClaimJob(ctx context.Context, jobID, firstStage string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if job.Status != models.JobStatusPending {
		return nil, nil
	}
	job.MarkProcessing(firstStage)
	copied := *job
	return &copied, nil
}

func (s *memJobStorage) MarkProcessingJobsPending(ctx context.Context, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.jobs {
		if job.Status == models.JobStatusProcessing {
			job.Status = models.JobStatusPending
			job.ProgressStage = ""
			count++
		}
	}
	return count, nil
}

// memLockStorage backs the dedup guard in tests
type memLockStorage struct {
	mu    sync.Mutex
	locks map[string]*models.DedupLock
}

func newMemLockStorage() *memLockStorage {
	return &memLockStorage{locks: make(map[string]*models.DedupLock)}
}

func (s *memLockStorage) GetLock(ctx context.Context, fingerprint string) (*models.DedupLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks[fingerprint], nil
}

func (s *memLockStorage) PutLock(ctx context.Context, lock *models.DedupLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[lock.Fingerprint] = lock
	return nil
}

func (s *memLockStorage) DeleteLock(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, fingerprint)
	return nil
}

func (s *memLockStorage) PurgeExpiredLocks(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for fp, lock := range s.locks {
		if time.Now().After(lock.ExpiresAt) {
			delete(s.locks, fp)
			count++
		}
	}
	return count, nil
}

type fixedPolicy struct{ automatic bool }

func (p fixedPolicy) AutomaticEnabled() bool { return p.automatic }

func newTestManager(t *testing.T) (*Manager, *memJobStorage) {
	t.Helper()
	storage := newMemJobStorage()
	logger := arbor.NewLogger()
	guard := dedup.NewGuard(newMemLockStorage(), 10*time.Second, logger)
	return NewManager(storage, guard, nil, "initialising", logger), storage
}

func validPayload() models.Submission {
	return models.Submission{Content: "Write about Go generics", CreatedBy: "alex@example.com"}
}

func TestEnqueueValidation(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Enqueue(context.Background(), models.Submission{CreatedBy: "owner"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestEnqueueDuplicateBothSucceed(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	first, err := mgr.Enqueue(ctx, validPayload())
	if err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	second, err := mgr.Enqueue(ctx, validPayload())
	if err != nil {
		t.Fatalf("duplicate enqueue must proceed: %v", err)
	}
	if first == second {
		t.Error("expected distinct job IDs")
	}

	counts, _ := storage.CountByStatus(ctx)
	if counts[models.JobStatusPending] != 2 {
		t.Errorf("expected 2 pending jobs, got %d", counts[models.JobStatusPending])
	}
}

func TestClaimNextPendingOrder(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	first, _ := mgr.Enqueue(ctx, validPayload())
	payload := validPayload()
	payload.Content = "Write about Go channels"
	second, _ := mgr.Enqueue(ctx, payload)

	claimed, err := mgr.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed.ID != first {
		t.Errorf("expected oldest job %s first, got %s", first, claimed.ID)
	}
	if claimed.Status != models.JobStatusProcessing {
		t.Errorf("expected processing after claim, got %s", claimed.Status)
	}
	if claimed.ProgressStage != "initialising" {
		t.Errorf("expected first stage set, got %q", claimed.ProgressStage)
	}

	claimed, _ = mgr.ClaimNextPending(ctx)
	if claimed.ID != second {
		t.Errorf("expected %s second, got %s", second, claimed.ID)
	}

	claimed, err = mgr.ClaimNextPending(ctx)
	if err != nil || claimed != nil {
		t.Errorf("expected (nil, nil) on empty queue, got (%v, %v)", claimed, err)
	}
}

func TestClaimSpecificJob(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	jobID, _ := mgr.Enqueue(ctx, validPayload())

	claimed, err := mgr.Claim(ctx, jobID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed.Status != models.JobStatusProcessing {
		t.Errorf("expected processing, got %s", claimed.Status)
	}

	if _, err := mgr.Claim(ctx, jobID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for a non-pending job, got %v", err)
	}
	if _, err := mgr.Claim(ctx, "job_missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestUpdateProgressIgnoredUnlessProcessing(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	jobID, _ := mgr.Enqueue(ctx, validPayload())

	if err := mgr.UpdateProgress(ctx, jobID, "generating_primary_content"); err != nil {
		t.Fatalf("progress on pending job should be a silent no-op: %v", err)
	}
	job, _ := storage.GetJob(ctx, jobID)
	if job.ProgressStage != "" {
		t.Errorf("pending job progress must stay empty, got %q", job.ProgressStage)
	}

	mgr.Claim(ctx, jobID)
	if err := mgr.UpdateProgress(ctx, jobID, "generating_primary_content"); err != nil {
		t.Fatalf("progress update failed: %v", err)
	}
	job, _ = storage.GetJob(ctx, jobID)
	if job.ProgressStage != "generating_primary_content" {
		t.Errorf("expected progress stage recorded, got %q", job.ProgressStage)
	}
}

func TestCompleteRequiresProcessing(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	jobID, _ := mgr.Enqueue(ctx, validPayload())
	result := &models.PostResult{ArtifactID: "post_1", Cost: 0.042}

	if err := mgr.Complete(ctx, jobID, result); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition completing a pending job, got %v", err)
	}

	mgr.Claim(ctx, jobID)
	if err := mgr.Complete(ctx, jobID, result); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	job, _ := storage.GetJob(ctx, jobID)
	if job.Status != models.JobStatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
	if job.Result == nil || job.Result.ArtifactID != "post_1" {
		t.Errorf("expected result recorded, got %+v", job.Result)
	}
	if job.ProgressStage != "" {
		t.Errorf("expected progress cleared, got %q", job.ProgressStage)
	}
}

func TestFailRequiresProcessing(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	jobID, _ := mgr.Enqueue(ctx, validPayload())
	if err := mgr.Fail(ctx, jobID, "boom"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition failing a pending job, got %v", err)
	}

	mgr.Claim(ctx, jobID)
	if err := mgr.Fail(ctx, jobID, "stage generating_primary_content failed: boom"); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	job, _ := storage.GetJob(ctx, jobID)
	if job.Status != models.JobStatusFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
	if job.Error == "" {
		t.Error("expected error message recorded")
	}
}

func TestRetryOnlyFromFailed(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	jobID, _ := mgr.Enqueue(ctx, validPayload())
	if err := mgr.Retry(ctx, jobID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition retrying a pending job, got %v", err)
	}

	mgr.Claim(ctx, jobID)
	mgr.Fail(ctx, jobID, "provider error")

	if err := mgr.Retry(ctx, jobID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	job, _ := storage.GetJob(ctx, jobID)
	if job.Status != models.JobStatusPending {
		t.Errorf("expected pending after retry, got %s", job.Status)
	}
	if job.Error != "" {
		t.Errorf("expected error cleared, got %q", job.Error)
	}
	if job.Attempts != 1 {
		t.Errorf("attempts should survive retry, got %d", job.Attempts)
	}

	// The retried job is claimable again and the attempt counter advances
	claimed, err := mgr.ClaimNextPending(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("expected retried job to be claimable, got (%v, %v)", claimed, err)
	}
	if claimed.Attempts != 2 {
		t.Errorf("expected attempt 2, got %d", claimed.Attempts)
	}
}

func TestCancelPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("pending always cancellable", func(t *testing.T) {
		mgr, storage := newTestManager(t)
		mgr.SetExecutionPolicy(fixedPolicy{automatic: true})

		jobID, _ := mgr.Enqueue(ctx, validPayload())
		if err := mgr.Cancel(ctx, jobID); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		job, _ := storage.GetJob(ctx, jobID)
		if job.Status != models.JobStatusCancelled {
			t.Errorf("expected cancelled, got %s", job.Status)
		}
	})

	t.Run("processing refused in automatic mode", func(t *testing.T) {
		mgr, _ := newTestManager(t)
		mgr.SetExecutionPolicy(fixedPolicy{automatic: true})

		jobID, _ := mgr.Enqueue(ctx, validPayload())
		mgr.Claim(ctx, jobID)

		if err := mgr.Cancel(ctx, jobID); !errors.Is(err, ErrCancelRefused) {
			t.Errorf("expected ErrCancelRefused, got %v", err)
		}
	})

	t.Run("processing cancellable in manual mode", func(t *testing.T) {
		mgr, storage := newTestManager(t)
		mgr.SetExecutionPolicy(fixedPolicy{automatic: false})

		jobID, _ := mgr.Enqueue(ctx, validPayload())
		mgr.Claim(ctx, jobID)

		if err := mgr.Cancel(ctx, jobID); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		job, _ := storage.GetJob(ctx, jobID)
		if job.Status != models.JobStatusCancelled {
			t.Errorf("expected cancelled, got %s", job.Status)
		}
	})

	t.Run("terminal jobs not cancellable", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		jobID, _ := mgr.Enqueue(ctx, validPayload())
		mgr.Claim(ctx, jobID)
		mgr.Complete(ctx, jobID, &models.PostResult{ArtifactID: "post_1"})

		if err := mgr.Cancel(ctx, jobID); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestStats(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	contents := []string{"first topic", "second topic", "third topic"}
	ids := make([]string, 0, len(contents))
	for _, c := range contents {
		payload := validPayload()
		payload.Content = c
		id, err := mgr.Enqueue(ctx, payload)
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		ids = append(ids, id)
	}

	mgr.Claim(ctx, ids[0])
	mgr.Complete(ctx, ids[0], &models.PostResult{ArtifactID: "post_1"})
	mgr.Claim(ctx, ids[1])

	stats, err := mgr.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Pending != 1 || stats.Processing != 1 || stats.Completed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Total != 3 {
		t.Errorf("expected total 3, got %d", stats.Total)
	}
}

func TestRecoverOrphans(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	jobID, _ := mgr.Enqueue(ctx, validPayload())
	mgr.Claim(ctx, jobID)

	count, err := mgr.RecoverOrphans(ctx)
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 recovered job, got %d", count)
	}
	job, _ := storage.GetJob(ctx, jobID)
	if job.Status != models.JobStatusPending {
		t.Errorf("expected pending after recovery, got %s", job.Status)
	}
}
