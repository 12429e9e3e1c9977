package interfaces

import (
	"context"

	"github.com/penmanapp/penman/internal/models"
)

// JobListOptions filters and paginates job list queries
type JobListOptions struct {
	Status    string
	CreatedBy string
	Limit     int
	Offset    int
}

// JobStorage persists job records. All writes are mediated through the
// queue manager; handlers and workers read via the manager as well.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)
	CountJobs(ctx context.Context, opts *JobListOptions) (int, error)
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)

	// ClaimNextPending atomically selects the oldest pending job and
	// transitions it to processing with the given first stage. At most one
	// caller receives any given job. Returns (nil, nil) when no pending
	// job exists.
	ClaimNextPending(ctx context.Context, firstStage string) (*models.Job, error)

	// ClaimJob atomically claims one specific pending job. Returns
	// (nil, nil) when the job exists but is no longer pending.
	ClaimJob(ctx context.Context, jobID, firstStage string) (*models.Job, error)

	// MarkProcessingJobsPending returns orphaned processing jobs to pending,
	// used on startup after an unclean shutdown.
	MarkProcessingJobsPending(ctx context.Context, reason string) (int, error)
}

// LockStorage persists short-lived dedup locks
type LockStorage interface {
	GetLock(ctx context.Context, fingerprint string) (*models.DedupLock, error)
	PutLock(ctx context.Context, lock *models.DedupLock) error
	DeleteLock(ctx context.Context, fingerprint string) error
	PurgeExpiredLocks(ctx context.Context) (int, error)
}

// AssetStorage persists generated binary assets (hero images)
type AssetStorage interface {
	SaveAsset(ctx context.Context, asset *models.GeneratedAsset) error
	GetAsset(ctx context.Context, assetID string) (*models.GeneratedAsset, error)
}

// ArtifactStorage persists generated post artifacts
type ArtifactStorage interface {
	SaveArtifact(ctx context.Context, artifact *models.Artifact) error
	GetArtifact(ctx context.Context, artifactID string) (*models.Artifact, error)
}

// UsageStorage persists usage/cost records
type UsageStorage interface {
	SaveUsage(ctx context.Context, record *models.UsageRecord) error
	ListUsage(ctx context.Context, owner string, limit int) ([]*models.UsageRecord, error)
}
