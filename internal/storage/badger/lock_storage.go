package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

// LockStorage implements the LockStorage interface on Badger
type LockStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLockStorage creates a new LockStorage instance
func NewLockStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LockStorage {
	return &LockStorage{
		db:     db,
		logger: logger,
	}
}

// GetLock returns the lock for a fingerprint, or nil if none exists.
// Expired locks are deleted on read and reported as absent.
func (s *LockStorage) GetLock(ctx context.Context, fingerprint string) (*models.DedupLock, error) {
	var lock models.DedupLock
	if err := s.db.Store().Get(fingerprint, &lock); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dedup lock: %w", err)
	}

	if lock.Expired(time.Now()) {
		if err := s.DeleteLock(ctx, fingerprint); err != nil {
			s.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Failed to delete expired dedup lock")
		}
		return nil, nil
	}

	return &lock, nil
}

func (s *LockStorage) PutLock(ctx context.Context, lock *models.DedupLock) error {
	if lock.Fingerprint == "" {
		return fmt.Errorf("lock fingerprint is required")
	}
	if err := s.db.Store().Upsert(lock.Fingerprint, lock); err != nil {
		return fmt.Errorf("failed to save dedup lock: %w", err)
	}
	return nil
}

func (s *LockStorage) DeleteLock(ctx context.Context, fingerprint string) error {
	if err := s.db.Store().Delete(fingerprint, &models.DedupLock{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return err
	}
	return nil
}

// PurgeExpiredLocks removes all locks past their TTL
func (s *LockStorage) PurgeExpiredLocks(ctx context.Context) (int, error) {
	var locks []models.DedupLock
	if err := s.db.Store().Find(&locks, badgerhold.Where("ExpiresAt").Lt(time.Now())); err != nil {
		return 0, err
	}

	count := 0
	for i := range locks {
		if err := s.DeleteLock(ctx, locks[i].Fingerprint); err != nil {
			continue
		}
		count++
	}
	return count, nil
}
