package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/common"
	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/mode"
	"github.com/penmanapp/penman/internal/models"
	"github.com/penmanapp/penman/internal/queue"
)

// handlerQueue is a scripted JobQueue for handler tests
type handlerQueue struct {
	jobs       map[string]*models.Job
	enqueueErr error
	cancelErr  error
	retryErr   error
	listOpts   *interfaces.JobListOptions
}

func newHandlerQueue() *handlerQueue {
	return &handlerQueue{jobs: make(map[string]*models.Job)}
}

func (q *handlerQueue) Enqueue(ctx context.Context, payload models.Submission) (string, error) {
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	job := models.NewJob(payload)
	q.jobs[job.ID] = job
	return job.ID, nil
}

func (q *handlerQueue) ClaimNextPending(ctx context.Context) (*models.Job, error) { return nil, nil }

func (q *handlerQueue) Claim(ctx context.Context, jobID string) (*models.Job, error) {
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, jobID)
	}
	job.MarkProcessing("initialising")
	return job, nil
}

func (q *handlerQueue) UpdateProgress(ctx context.Context, jobID, stage string) error { return nil }
func (q *handlerQueue) Complete(ctx context.Context, jobID string, result *models.PostResult) error {
	return nil
}
func (q *handlerQueue) Fail(ctx context.Context, jobID, errorMsg string) error { return nil }
func (q *handlerQueue) Retry(ctx context.Context, jobID string) error          { return q.retryErr }
func (q *handlerQueue) Cancel(ctx context.Context, jobID string) error         { return q.cancelErr }

func (q *handlerQueue) Get(ctx context.Context, jobID string) (*models.Job, error) {
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, jobID)
	}
	return job, nil
}

func (q *handlerQueue) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, int, error) {
	q.listOpts = opts
	out := make([]*models.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, job)
	}
	return out, len(out), nil
}

func (q *handlerQueue) Stats(ctx context.Context) (*interfaces.QueueStats, error) {
	return &interfaces.QueueStats{}, nil
}

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, job *models.Job) error { return nil }
func (noopRunner) FirstStage() string                             { return "initialising" }

func newJobHandler(q *handlerQueue, automatic bool) *JobHandler {
	logger := arbor.NewLogger()
	ctrl := mode.NewController(q, noopRunner{}, nil, "*/1 * * * *", automatic, 2*time.Second, 15*time.Second, logger)
	cfg := &common.QueueConfig{DefaultPerPage: 25, MaxPerPage: 100}
	return NewJobHandler(q, ctrl, cfg, logger)
}

func TestSubmitPostHandler(t *testing.T) {
	h := newJobHandler(newHandlerQueue(), true)

	body := `{"content": "Write about Go", "created_by": "alex@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.SubmitPostHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["job_id"])
	assert.Equal(t, "pending", resp["status"])
}

func TestSubmitPostHandlerValidation(t *testing.T) {
	q := newHandlerQueue()
	q.enqueueErr = fmt.Errorf("%w: content is required", queue.ErrValidation)
	h := newJobHandler(q, true)

	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"created_by": "x"}`))
	rec := httptest.NewRecorder()

	h.SubmitPostHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitPostHandlerBadJSON(t *testing.T) {
	h := newJobHandler(newHandlerQueue(), true)

	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	h.SubmitPostHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitPostHandlerMethod(t *testing.T) {
	h := newJobHandler(newHandlerQueue(), true)

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	rec := httptest.NewRecorder()

	h.SubmitPostHandler(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListJobsHandlerPagination(t *testing.T) {
	q := newHandlerQueue()
	h := newJobHandler(q, true)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=pending&page=3&per_page=500", nil)
	rec := httptest.NewRecorder()

	h.ListJobsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, q.listOpts)
	assert.Equal(t, "pending", q.listOpts.Status)
	// per_page clamps to the configured maximum
	assert.Equal(t, 100, q.listOpts.Limit)
	assert.Equal(t, 200, q.listOpts.Offset)
}

func TestGetJobHandler(t *testing.T) {
	q := newHandlerQueue()
	h := newJobHandler(q, true)

	jobID, _ := q.Enqueue(context.Background(), models.Submission{Content: "topic", CreatedBy: "owner"})

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil)
	rec := httptest.NewRecorder()
	h.GetJobHandler(rec, req, jobID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.GetJobHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/job_missing", nil), "job_missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJobHandlerRefused(t *testing.T) {
	q := newHandlerQueue()
	q.cancelErr = queue.ErrCancelRefused
	h := newJobHandler(q, true)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job_1/cancel", nil)
	rec := httptest.NewRecorder()

	h.CancelJobHandler(rec, req, "job_1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRetryJobHandlerInvalidTransition(t *testing.T) {
	q := newHandlerQueue()
	q.retryErr = fmt.Errorf("%w: retry only permitted from failed", queue.ErrInvalidTransition)
	h := newJobHandler(q, true)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job_1/retry", nil)
	rec := httptest.NewRecorder()

	h.RetryJobHandler(rec, req, "job_1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunJobHandlerAutomaticConflict(t *testing.T) {
	h := newJobHandler(newHandlerQueue(), true)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job_1/run", nil)
	rec := httptest.NewRecorder()

	h.RunJobHandler(rec, req, "job_1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunJobHandlerManual(t *testing.T) {
	q := newHandlerQueue()
	h := newJobHandler(q, false)

	jobID, _ := q.Enqueue(context.Background(), models.Submission{Content: "topic", CreatedBy: "owner"})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+jobID+"/run", nil)
	rec := httptest.NewRecorder()

	h.RunJobHandler(rec, req, jobID)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "started", resp["status"])
}
