// -----------------------------------------------------------------------
// Deduplication Guard - short-TTL submission locks
// -----------------------------------------------------------------------

package dedup

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

// Guard detects rapid duplicate submissions via short-lived locks keyed by
// submission fingerprint.
//
// Note on semantics: when Acquire finds a live lock it treats the lock as
// stale, deletes it, writes a fresh one and lets the request proceed. A
// duplicate inside the TTL window is therefore logged but never blocked.
// This matches the reference behavior on purpose; see DESIGN.md before
// tightening it.
type Guard struct {
	locks  interfaces.LockStorage
	ttl    time.Duration
	logger arbor.ILogger
}

// NewGuard creates a deduplication guard with the given lock TTL
func NewGuard(locks interfaces.LockStorage, ttl time.Duration, logger arbor.ILogger) *Guard {
	return &Guard{
		locks:  locks,
		ttl:    ttl,
		logger: logger,
	}
}

// Acquire creates a lock for the fingerprint and reports whether the
// submission may proceed. It currently always returns true; a held lock is
// replaced rather than honored.
func (g *Guard) Acquire(ctx context.Context, fingerprint, owner string) (bool, error) {
	existing, err := g.locks.GetLock(ctx, fingerprint)
	if err != nil {
		return false, err
	}

	if existing != nil {
		g.logger.Warn().
			Str("fingerprint", fingerprint).
			Str("owner", owner).
			Msg("Duplicate submission detected - clearing stale lock and proceeding")
		if err := g.locks.DeleteLock(ctx, fingerprint); err != nil {
			return false, err
		}
	}

	now := time.Now()
	lock := &models.DedupLock{
		Fingerprint: fingerprint,
		Owner:       owner,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.ttl),
	}
	if err := g.locks.PutLock(ctx, lock); err != nil {
		return false, err
	}

	return true, nil
}

// PurgeExpired removes expired locks, used at startup to clear leftovers
// from an unclean shutdown.
func (g *Guard) PurgeExpired(ctx context.Context) (int, error) {
	count, err := g.locks.PurgeExpiredLocks(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		g.logger.Debug().Int("count", count).Msg("Purged expired dedup locks")
	}
	return count, nil
}

// Release deletes the lock after the enqueue attempt finishes. Locks left
// behind simply expire.
func (g *Guard) Release(ctx context.Context, fingerprint string) {
	if err := g.locks.DeleteLock(ctx, fingerprint); err != nil {
		g.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Failed to release dedup lock")
	}
}
