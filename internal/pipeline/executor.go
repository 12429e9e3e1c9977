// -----------------------------------------------------------------------
// Pipeline Executor - drives a claimed job through the generation stages
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

var postTemplate = MustPromptTemplate("post",
	`Write a complete long-form blog post expanding on the following selection.
Use markdown with a single top-level heading, section headings and a closing summary.
{{length_hint}}

Selection:
{{selection}}`,
	"selection", "length_hint")

var imageTemplate = MustPromptTemplate("hero_image",
	`A clean editorial hero illustration for a blog post about: {{summary}}. No text in the image.`,
	"summary")

// brief is the analysing_input stage output consumed by later stages
type brief struct {
	summary    string
	prompt     string
	lengthHint string
}

// Executor runs the ordered generation pipeline for one job attempt.
// All progress, completion and failure writes go through the queue manager.
// Side effects of completed stages are not rolled back on a later failure;
// the job record plus the usage trail is the diagnostic record.
type Executor struct {
	queue        interfaces.JobQueue
	content      interfaces.ContentGenerator
	images       interfaces.ImageGenerator
	assets       interfaces.AssetStorage
	artifacts    interfaces.ArtifactService
	notifier     interfaces.Notifier
	usage        interfaces.UsageTracker
	stageTimeout time.Duration
	logger       arbor.ILogger
}

// NewExecutor creates a pipeline executor
func NewExecutor(
	queue interfaces.JobQueue,
	content interfaces.ContentGenerator,
	images interfaces.ImageGenerator,
	assets interfaces.AssetStorage,
	artifacts interfaces.ArtifactService,
	notifier interfaces.Notifier,
	usage interfaces.UsageTracker,
	stageTimeout time.Duration,
	logger arbor.ILogger,
) *Executor {
	if stageTimeout <= 0 {
		stageTimeout = 90 * time.Second
	}
	return &Executor{
		queue:        queue,
		content:      content,
		images:       images,
		assets:       assets,
		artifacts:    artifacts,
		notifier:     notifier,
		usage:        usage,
		stageTimeout: stageTimeout,
		logger:       logger,
	}
}

// FirstStage names the stage a fresh attempt starts from
func (e *Executor) FirstStage() string {
	return StageInitialising
}

// Run drives the job through its stage sequence. The job must already be in
// processing state (claimed). A stage failure aborts the remaining stages
// and fails the job; the returned error mirrors the recorded failure.
func (e *Executor) Run(ctx context.Context, job *models.Job) error {
	started := time.Now()
	opts := job.Payload.Options

	var (
		b         *brief
		generated *interfaces.GeneratedContent
		image     *interfaces.GeneratedImage
		meta      *models.PostMetadata
		artifact  *models.Artifact
		totalCost float64
	)

	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{StageInitialising, func(context.Context) error {
			if strings.TrimSpace(job.Payload.Content) == "" {
				return fmt.Errorf("submission has no content")
			}
			return nil
		}},
		{StageAnalysingInput, func(context.Context) error {
			var err error
			b, err = e.analyseSelection(job.Payload)
			return err
		}},
		{StageGeneratingPost, func(stageCtx context.Context) error {
			var err error
			generated, err = e.content.GeneratePost(stageCtx, interfaces.PostRequest{
				Prompt:       b.prompt,
				Model:        opts.Model,
				TargetLength: opts.TargetLength,
			})
			if err != nil {
				return err
			}
			if strings.TrimSpace(generated.Markdown) == "" {
				return fmt.Errorf("provider returned empty content")
			}
			totalCost += generated.Cost
			return nil
		}},
	}

	if opts.GenerateImage {
		stages = append(stages, struct {
			name string
			run  func(context.Context) error
		}{StageGeneratingImage, func(stageCtx context.Context) error {
			prompt, err := imageTemplate.Render(map[string]string{"summary": b.summary})
			if err != nil {
				return err
			}
			image, err = e.images.GenerateImage(stageCtx, prompt)
			if err != nil {
				return err
			}
			asset := &models.GeneratedAsset{
				ID:        image.AssetID,
				JobID:     job.ID,
				MimeType:  image.MimeType,
				Data:      image.Data,
				CreatedAt: time.Now(),
			}
			if err := e.assets.SaveAsset(stageCtx, asset); err != nil {
				return fmt.Errorf("failed to persist generated image: %w", err)
			}
			totalCost += image.Cost
			return nil
		}})
	}

	if opts.GenerateMetadata {
		stages = append(stages, struct {
			name string
			run  func(context.Context) error
		}{StageGeneratingMeta, func(stageCtx context.Context) error {
			if generated == nil {
				return fmt.Errorf("missing generated content for metadata stage")
			}
			var cost float64
			var err error
			meta, cost, err = e.content.GenerateMetadata(stageCtx, generated.Markdown, opts.Model)
			if err != nil {
				return err
			}
			totalCost += cost
			return nil
		}})
	}

	stages = append(stages,
		struct {
			name string
			run  func(context.Context) error
		}{StageCreatingArtifact, func(stageCtx context.Context) error {
			imageID := ""
			if image != nil {
				imageID = image.AssetID
			}
			var err error
			artifact, err = e.artifacts.CreateArtifact(stageCtx, job, generated.Markdown, meta, imageID)
			return err
		}},
	)

	for _, stage := range stages {
		if err := e.runStage(ctx, job.ID, stage.name, stage.run); err != nil {
			e.recordUsage(job, generated, totalCost, started, stage.name, false)
			return err
		}
	}

	// Finalising: completion is written before the non-critical steps run
	if err := e.queue.UpdateProgress(ctx, job.ID, StageFinalising); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to report finalising stage")
	}

	result := &models.PostResult{
		ArtifactID: artifact.ID,
		Metadata:   meta,
		Cost:       roundCost(totalCost),
		Provider:   generated.Provider,
		Model:      generated.Model,
	}
	if image != nil {
		result.ImageID = image.AssetID
	}

	if err := e.queue.Complete(ctx, job.ID, result); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	// Non-critical post-pipeline work: a notification or tracking failure
	// never touches the already-completed job.
	if e.notifier != nil {
		if err := e.notifier.NotifyCompletion(ctx, job, artifact); err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Completion notification failed")
		}
	}
	e.recordUsage(job, generated, totalCost, started, StageFinalising, true)

	e.logger.Info().
		Str("job_id", job.ID).
		Str("artifact_id", artifact.ID).
		Dur("duration", time.Since(started)).
		Msg("Pipeline finished")

	return nil
}

// runStage reports progress, then executes the stage under the hard timeout.
// A timeout is a failure, not a soft cancellation.
func (e *Executor) runStage(ctx context.Context, jobID, stage string, run func(context.Context) error) error {
	if err := e.queue.UpdateProgress(ctx, jobID, stage); err != nil {
		e.logger.Warn().Err(err).Str("job_id", jobID).Str("stage", stage).Msg("Failed to report stage progress")
	}

	stageCtx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()

	err := run(stageCtx)
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf("stage %s failed: %s", stage, err.Error())
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		msg = fmt.Sprintf("stage %s timed out after %s", stage, e.stageTimeout)
	}

	if failErr := e.queue.Fail(ctx, jobID, msg); failErr != nil {
		e.logger.Error().Err(failErr).Str("job_id", jobID).Msg("Failed to record job failure")
	}
	return fmt.Errorf("%s", msg)
}

// analyseSelection derives the content brief the later stages consume
func (e *Executor) analyseSelection(payload models.Submission) (*brief, error) {
	summary := strings.TrimSpace(payload.Content)
	if idx := strings.IndexAny(summary, ".\n"); idx > 0 {
		summary = summary[:idx]
	}
	if len(summary) > 160 {
		summary = summary[:160]
	}

	lengthHint := "Aim for a natural article length."
	if payload.Options.TargetLength > 0 {
		lengthHint = fmt.Sprintf("Aim for roughly %d words.", payload.Options.TargetLength)
	}

	prompt, err := postTemplate.Render(map[string]string{
		"selection":   payload.Content,
		"length_hint": lengthHint,
	})
	if err != nil {
		return nil, err
	}

	return &brief{summary: summary, prompt: prompt, lengthHint: lengthHint}, nil
}

func (e *Executor) recordUsage(job *models.Job, generated *interfaces.GeneratedContent, cost float64, started time.Time, finalStage string, succeeded bool) {
	if e.usage == nil {
		return
	}
	record := &models.UsageRecord{
		ID:         "use_" + uuid.New().String(),
		JobID:      job.ID,
		Owner:      job.CreatedBy,
		Cost:       roundCost(cost),
		Duration:   time.Since(started),
		Succeeded:  succeeded,
		FinalStage: finalStage,
		CreatedAt:  time.Now(),
	}
	if generated != nil {
		record.Provider = generated.Provider
		record.Model = generated.Model
	}
	if err := e.usage.RecordUsage(context.Background(), record); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Usage tracking failed")
	}
}

// roundCost rounds to currency precision once, at the reporting boundary.
// Intermediate stage costs stay unrounded.
func roundCost(cost float64) float64 {
	return math.Round(cost*1000) / 1000
}
