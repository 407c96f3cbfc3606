package contract

import (
	"context"

	"travel-intel/internal/entity"
)

// DatasetRepository stores consolidated dataset versions and the diffs between them.
type DatasetRepository interface {
	// Latest returns nil, nil when the destination was never consolidated.
	Latest(ctx context.Context, destinationID string) (*entity.ConsolidatedDataset, error)
	// Get returns nil, nil for an unknown or pruned version.
	Get(ctx context.Context, destinationID string, version int64) (*entity.ConsolidatedDataset, error)
	// Save stores a new version and, when non-nil, the diff that led to it.
	Save(ctx context.Context, dataset *entity.ConsolidatedDataset, diff *entity.Diff) error
	// History returns stored diffs newest first; limit <= 0 means all.
	History(ctx context.Context, destinationID string, limit int) ([]*entity.Diff, error)
	// Versions returns stored version numbers in ascending order.
	Versions(ctx context.Context, destinationID string) ([]int64, error)
	// Prune keeps the newest keep versions and returns how many were removed. Diffs are kept.
	Prune(ctx context.Context, destinationID string, keep int) (int, error)
	Destinations(ctx context.Context) ([]string, error)
}
