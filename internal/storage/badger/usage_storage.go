package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

// UsageStorage implements the UsageStorage interface on Badger
type UsageStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewUsageStorage creates a new UsageStorage instance
func NewUsageStorage(db *BadgerDB, logger arbor.ILogger) interfaces.UsageStorage {
	return &UsageStorage{
		db:     db,
		logger: logger,
	}
}

func (s *UsageStorage) SaveUsage(ctx context.Context, record *models.UsageRecord) error {
	if record.ID == "" {
		return fmt.Errorf("usage record ID is required")
	}
	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save usage record: %w", err)
	}
	return nil
}

func (s *UsageStorage) ListUsage(ctx context.Context, owner string, limit int) ([]*models.UsageRecord, error) {
	query := badgerhold.Where("ID").Ne("")
	if owner != "" {
		query = query.And("Owner").Eq(owner)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	query = query.SortBy("CreatedAt").Reverse()

	var records []models.UsageRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}

	result := make([]*models.UsageRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}
