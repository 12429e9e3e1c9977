package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

// fakeQueue records the lifecycle calls the executor makes
type fakeQueue struct {
	progress  []string
	completed *models.PostResult
	failedMsg string
}

func (q *fakeQueue) Enqueue(ctx context.Context, payload models.Submission) (string, error) {
	return "", errors.New("not implemented")
}

func (q *fakeQueue) ClaimNextPending(ctx context.Context) (*models.Job, error) { return nil, nil }

func (q *fakeQueue) Claim(ctx context.Context, jobID string) (*models.Job, error) { return nil, nil }

func (q *fakeQueue) UpdateProgress(ctx context.Context, jobID, stage string) error {
	q.progress = append(q.progress, stage)
	return nil
}

func (q *fakeQueue) Complete(ctx context.Context, jobID string, result *models.PostResult) error {
	q.completed = result
	return nil
}

func (q *fakeQueue) Fail(ctx context.Context, jobID, errorMsg string) error {
	q.failedMsg = errorMsg
	return nil
}

func (q *fakeQueue) Retry(ctx context.Context, jobID string) error  { return nil }
func (q *fakeQueue) Cancel(ctx context.Context, jobID string) error { return nil }

func (q *fakeQueue) Get(ctx context.Context, jobID string) (*models.Job, error) { return nil, nil }

func (q *fakeQueue) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, int, error) {
	return nil, 0, nil
}

func (q *fakeQueue) Stats(ctx context.Context) (*interfaces.QueueStats, error) {
	return &interfaces.QueueStats{}, nil
}

type fakeContent struct {
	markdown string
	cost     float64
	metaCost float64
	err      error
	block    bool // wait for ctx cancellation instead of returning
}

func (c *fakeContent) GeneratePost(ctx context.Context, req interfaces.PostRequest) (*interfaces.GeneratedContent, error) {
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	return &interfaces.GeneratedContent{
		Markdown: c.markdown,
		Provider: "gemini",
		Model:    "gemini-2.0-flash",
		Cost:     c.cost,
	}, nil
}

func (c *fakeContent) GenerateMetadata(ctx context.Context, postMarkdown, model string) (*models.PostMetadata, float64, error) {
	return &models.PostMetadata{Title: "Generated Title", Description: "desc"}, c.metaCost, nil
}

type fakeImages struct {
	cost float64
}

func (i *fakeImages) GenerateImage(ctx context.Context, prompt string) (*interfaces.GeneratedImage, error) {
	return &interfaces.GeneratedImage{AssetID: "img_1", MimeType: "image/png", Data: []byte{1}, Cost: i.cost}, nil
}

type fakeAssets struct {
	saved []*models.GeneratedAsset
	err   error
}

func (a *fakeAssets) SaveAsset(ctx context.Context, asset *models.GeneratedAsset) error {
	if a.err != nil {
		return a.err
	}
	a.saved = append(a.saved, asset)
	return nil
}

func (a *fakeAssets) GetAsset(ctx context.Context, assetID string) (*models.GeneratedAsset, error) {
	for _, asset := range a.saved {
		if asset.ID == assetID {
			return asset, nil
		}
	}
	return nil, errors.New("asset not found")
}

type fakeArtifacts struct{}

func (a *fakeArtifacts) CreateArtifact(ctx context.Context, job *models.Job, markdown string, meta *models.PostMetadata, imageID string) (*models.Artifact, error) {
	return &models.Artifact{ID: "post_1", JobID: job.ID, Markdown: markdown}, nil
}

type fakeNotifier struct {
	err    error
	called bool
}

func (n *fakeNotifier) NotifyCompletion(ctx context.Context, job *models.Job, artifact *models.Artifact) error {
	n.called = true
	return n.err
}

type fakeUsage struct {
	records []*models.UsageRecord
}

func (u *fakeUsage) RecordUsage(ctx context.Context, record *models.UsageRecord) error {
	u.records = append(u.records, record)
	return nil
}

func newTestExecutor(q *fakeQueue, content *fakeContent, assets *fakeAssets, notifier *fakeNotifier, usage *fakeUsage, timeout time.Duration) *Executor {
	return NewExecutor(q, content, &fakeImages{cost: 0.039}, assets, &fakeArtifacts{}, notifier, usage, timeout, arbor.NewLogger())
}

func processingJob(opts models.GenerationOptions) *models.Job {
	job := models.NewJob(models.Submission{
		Content:   "Write about Go concurrency. It matters.",
		CreatedBy: "alex@example.com",
		Options:   opts,
	})
	job.MarkProcessing(StageInitialising)
	return job
}

func TestRunBasePipeline(t *testing.T) {
	q := &fakeQueue{}
	content := &fakeContent{markdown: "# Post", cost: 0.0123}
	notifier := &fakeNotifier{}
	usage := &fakeUsage{}
	exec := newTestExecutor(q, content, &fakeAssets{}, notifier, usage, time.Second)

	job := processingJob(models.GenerationOptions{})
	if err := exec.Run(context.Background(), job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{StageInitialising, StageAnalysingInput, StageGeneratingPost, StageCreatingArtifact, StageFinalising}
	if len(q.progress) != len(want) {
		t.Fatalf("expected %d progress updates, got %v", len(want), q.progress)
	}
	for i := range want {
		if q.progress[i] != want[i] {
			t.Errorf("progress %d: expected %s, got %s", i, want[i], q.progress[i])
		}
	}

	if q.completed == nil {
		t.Fatal("expected Complete to be called")
	}
	if q.completed.ArtifactID != "post_1" {
		t.Errorf("expected artifact id in result, got %q", q.completed.ArtifactID)
	}
	if q.completed.Cost != 0.012 {
		t.Errorf("expected cost rounded to 0.012, got %v", q.completed.Cost)
	}
	if q.completed.ImageID != "" {
		t.Errorf("expected no image id for base pipeline, got %q", q.completed.ImageID)
	}

	if !notifier.called {
		t.Error("expected completion notification")
	}
	if len(usage.records) != 1 {
		t.Fatalf("expected one usage record, got %d", len(usage.records))
	}
	if !usage.records[0].Succeeded || usage.records[0].FinalStage != StageFinalising {
		t.Errorf("unexpected usage record: %+v", usage.records[0])
	}
}

func TestRunWithImageAndMetadata(t *testing.T) {
	q := &fakeQueue{}
	content := &fakeContent{markdown: "# Post", cost: 0.1234, metaCost: 0.0005}
	assets := &fakeAssets{}
	exec := newTestExecutor(q, content, assets, &fakeNotifier{}, &fakeUsage{}, time.Second)

	job := processingJob(models.GenerationOptions{GenerateImage: true, GenerateMetadata: true})
	if err := exec.Run(context.Background(), job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{StageInitialising, StageAnalysingInput, StageGeneratingPost, StageGeneratingImage, StageGeneratingMeta, StageCreatingArtifact, StageFinalising}
	if len(q.progress) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, q.progress)
	}

	if q.completed == nil {
		t.Fatal("expected Complete to be called")
	}
	if q.completed.ImageID != "img_1" {
		t.Errorf("expected image id in result, got %q", q.completed.ImageID)
	}
	if len(assets.saved) != 1 {
		t.Fatalf("expected the generated image persisted, got %d assets", len(assets.saved))
	}
	saved := assets.saved[0]
	if saved.ID != q.completed.ImageID {
		t.Errorf("stored asset id %q must match the result image id %q", saved.ID, q.completed.ImageID)
	}
	if saved.JobID != job.ID || saved.MimeType != "image/png" || len(saved.Data) == 0 {
		t.Errorf("unexpected stored asset: %+v", saved)
	}
	if q.completed.Metadata == nil || q.completed.Metadata.Title != "Generated Title" {
		t.Errorf("expected metadata in result, got %+v", q.completed.Metadata)
	}
	// 0.1234 + 0.039 + 0.0005 = 0.1629, rounded to three decimals
	if q.completed.Cost != 0.163 {
		t.Errorf("expected cost 0.163, got %v", q.completed.Cost)
	}
}

func TestRunStageFailure(t *testing.T) {
	q := &fakeQueue{}
	content := &fakeContent{err: errors.New("provider unavailable")}
	usage := &fakeUsage{}
	exec := newTestExecutor(q, content, &fakeAssets{}, &fakeNotifier{}, usage, time.Second)

	job := processingJob(models.GenerationOptions{})
	err := exec.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected Run to fail")
	}

	wantMsg := "stage generating_primary_content failed: provider unavailable"
	if q.failedMsg != wantMsg {
		t.Errorf("expected failure message %q, got %q", wantMsg, q.failedMsg)
	}
	if q.completed != nil {
		t.Error("Complete must not be called after a stage failure")
	}
	if len(usage.records) != 1 {
		t.Fatalf("expected a usage record for the failed attempt, got %d", len(usage.records))
	}
	if usage.records[0].Succeeded {
		t.Error("expected failed usage record")
	}
	if usage.records[0].FinalStage != StageGeneratingPost {
		t.Errorf("expected final stage %s, got %s", StageGeneratingPost, usage.records[0].FinalStage)
	}
}

func TestRunStageTimeout(t *testing.T) {
	q := &fakeQueue{}
	content := &fakeContent{block: true}
	exec := newTestExecutor(q, content, &fakeAssets{}, &fakeNotifier{}, &fakeUsage{}, 20*time.Millisecond)

	job := processingJob(models.GenerationOptions{})
	err := exec.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected Run to fail on timeout")
	}

	wantMsg := fmt.Sprintf("stage %s timed out after %s", StageGeneratingPost, 20*time.Millisecond)
	if q.failedMsg != wantMsg {
		t.Errorf("expected timeout message %q, got %q", wantMsg, q.failedMsg)
	}
}

func TestRunImagePersistFailureFailsStage(t *testing.T) {
	q := &fakeQueue{}
	assets := &fakeAssets{err: errors.New("disk full")}
	exec := newTestExecutor(q, &fakeContent{markdown: "# Post"}, assets, &fakeNotifier{}, &fakeUsage{}, time.Second)

	job := processingJob(models.GenerationOptions{GenerateImage: true})
	if err := exec.Run(context.Background(), job); err == nil {
		t.Fatal("expected Run to fail when the image cannot be stored")
	}

	wantPrefix := fmt.Sprintf("stage %s failed", StageGeneratingImage)
	if !strings.HasPrefix(q.failedMsg, wantPrefix) {
		t.Errorf("expected failure in %s, got %q", StageGeneratingImage, q.failedMsg)
	}
	if q.completed != nil {
		t.Error("Complete must not be called when the image asset is not stored")
	}
}

func TestRunNotifierFailureIsNonCritical(t *testing.T) {
	q := &fakeQueue{}
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	exec := newTestExecutor(q, &fakeContent{markdown: "# Post"}, &fakeAssets{}, notifier, &fakeUsage{}, time.Second)

	job := processingJob(models.GenerationOptions{})
	if err := exec.Run(context.Background(), job); err != nil {
		t.Fatalf("notification failure must not fail the job: %v", err)
	}
	if q.completed == nil {
		t.Error("expected the job to complete despite the notifier error")
	}
}

func TestRunEmptyContentFailsInitialising(t *testing.T) {
	q := &fakeQueue{}
	exec := newTestExecutor(q, &fakeContent{markdown: "# Post"}, &fakeAssets{}, &fakeNotifier{}, &fakeUsage{}, time.Second)

	job := models.NewJob(models.Submission{Content: "   ", CreatedBy: "owner"})
	job.MarkProcessing(StageInitialising)

	if err := exec.Run(context.Background(), job); err == nil {
		t.Fatal("expected failure for blank content")
	}
	if !strings.HasPrefix(q.failedMsg, "stage initialising failed") {
		t.Errorf("expected initialising failure, got %q", q.failedMsg)
	}
}
