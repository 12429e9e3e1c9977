// -----------------------------------------------------------------------
// Artifact service - renders and persists the final post artifact
// -----------------------------------------------------------------------

package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/penmanapp/penman/internal/common"
	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

// Service converts generated markdown to HTML and stores the artifact
type Service struct {
	storage  interfaces.ArtifactStorage
	markdown goldmark.Markdown
	logger   arbor.ILogger
}

// NewService creates the artifact service
func NewService(storage interfaces.ArtifactStorage, logger arbor.ILogger) *Service {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	return &Service{
		storage:  storage,
		markdown: md,
		logger:   logger,
	}
}

// CreateArtifact renders the markdown to HTML and persists the artifact
// record. The markdown source is kept alongside the rendered HTML.
func (s *Service) CreateArtifact(ctx context.Context, job *models.Job, markdown string, meta *models.PostMetadata, imageID string) (*models.Artifact, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(markdown), &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	artifact := &models.Artifact{
		ID:        common.NewArtifactID(),
		JobID:     job.ID,
		Markdown:  markdown,
		HTML:      buf.String(),
		Metadata:  meta,
		ImageID:   imageID,
		CreatedBy: job.CreatedBy,
		CreatedAt: time.Now(),
	}

	if err := s.storage.SaveArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to persist artifact: %w", err)
	}

	s.logger.Info().
		Str("artifact_id", artifact.ID).
		Str("job_id", job.ID).
		Int("markdown_bytes", len(markdown)).
		Msg("Artifact created")

	return artifact, nil
}

// Get returns a stored artifact
func (s *Service) Get(ctx context.Context, artifactID string) (*models.Artifact, error) {
	return s.storage.GetArtifact(ctx, artifactID)
}
