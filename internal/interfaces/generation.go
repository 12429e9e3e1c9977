package interfaces

import (
	"context"

	"github.com/penmanapp/penman/internal/models"
)

// PostRequest is a provider-agnostic request for long-form content generation
type PostRequest struct {
	Prompt       string
	SystemPrompt string
	Model        string // Provider/model selector; empty uses the configured default
	TargetLength int    // Desired length in words; 0 uses the provider default
}

// GeneratedContent is the result of the primary content stage
type GeneratedContent struct {
	Markdown string
	Provider string
	Model    string
	Cost     float64
}

// GeneratedImage is the result of the secondary-asset stage
type GeneratedImage struct {
	AssetID  string
	MimeType string
	Data     []byte
	Cost     float64
}

// ContentGenerator produces long-form content and metadata via an AI provider
type ContentGenerator interface {
	GeneratePost(ctx context.Context, req PostRequest) (*GeneratedContent, error)
	GenerateMetadata(ctx context.Context, postMarkdown, model string) (*models.PostMetadata, float64, error)
}

// ImageGenerator produces a hero image for a generated post
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (*GeneratedImage, error)
}

// ArtifactService renders and stores the final post artifact
type ArtifactService interface {
	CreateArtifact(ctx context.Context, job *models.Job, markdown string, meta *models.PostMetadata, imageID string) (*models.Artifact, error)
}

// Notifier delivers a completion notification to the job's owner.
// Failures are non-critical: callers log and continue.
type Notifier interface {
	NotifyCompletion(ctx context.Context, job *models.Job, artifact *models.Artifact) error
}

// UsageTracker records cost/usage for a finished pipeline attempt.
// Failures are non-critical: callers log and continue.
type UsageTracker interface {
	RecordUsage(ctx context.Context, record *models.UsageRecord) error
}
