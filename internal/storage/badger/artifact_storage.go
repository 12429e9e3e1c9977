package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

// ArtifactStorage implements the ArtifactStorage interface on Badger
type ArtifactStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArtifactStorage creates a new ArtifactStorage instance
func NewArtifactStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArtifactStorage {
	return &ArtifactStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ArtifactStorage) SaveArtifact(ctx context.Context, artifact *models.Artifact) error {
	if artifact.ID == "" {
		return fmt.Errorf("artifact ID is required")
	}
	if err := s.db.Store().Upsert(artifact.ID, artifact); err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

func (s *ArtifactStorage) GetArtifact(ctx context.Context, artifactID string) (*models.Artifact, error) {
	var artifact models.Artifact
	if err := s.db.Store().Get(artifactID, &artifact); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("artifact not found: %s", artifactID)
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &artifact, nil
}
