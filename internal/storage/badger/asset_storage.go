package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

// AssetStorage implements the AssetStorage interface on Badger
type AssetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAssetStorage creates a new AssetStorage instance
func NewAssetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AssetStorage {
	return &AssetStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AssetStorage) SaveAsset(ctx context.Context, asset *models.GeneratedAsset) error {
	if asset.ID == "" {
		return fmt.Errorf("asset ID is required")
	}
	if err := s.db.Store().Upsert(asset.ID, asset); err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

func (s *AssetStorage) GetAsset(ctx context.Context, assetID string) (*models.GeneratedAsset, error) {
	var asset models.GeneratedAsset
	if err := s.db.Store().Get(assetID, &asset); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("asset not found: %s", assetID)
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &asset, nil
}
