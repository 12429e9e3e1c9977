package usage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

// Service records per-attempt cost and duration for reporting. Implements
// the UsageTracker interface.
type Service struct {
	storage interfaces.UsageStorage
	logger  arbor.ILogger
}

// NewService creates the usage tracking service
func NewService(storage interfaces.UsageStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// RecordUsage persists one usage record
func (s *Service) RecordUsage(ctx context.Context, record *models.UsageRecord) error {
	if err := s.storage.SaveUsage(ctx, record); err != nil {
		return fmt.Errorf("failed to persist usage record: %w", err)
	}

	s.logger.Debug().
		Str("job_id", record.JobID).
		Str("model", record.Model).
		Float64("cost", record.Cost).
		Bool("succeeded", record.Succeeded).
		Msg("Usage recorded")
	return nil
}

// ListForOwner returns recent usage records for one owner
func (s *Service) ListForOwner(ctx context.Context, owner string, limit int) ([]*models.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.storage.ListUsage(ctx, owner, limit)
}
