package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"travel-intel/internal/entity"
	"travel-intel/internal/repository/contract"
)

type destinationHistory struct {
	versions map[int64]*entity.ConsolidatedDataset
	diffs    []*entity.Diff
}

// DatasetRepository is a process-local dataset store.
type DatasetRepository struct {
	mu   sync.RWMutex
	data map[string]*destinationHistory
}

func NewDatasetRepository() contract.DatasetRepository {
	return &DatasetRepository{data: map[string]*destinationHistory{}}
}

func copyDataset(d *entity.ConsolidatedDataset) *entity.ConsolidatedDataset {
	out := *d
	out.Records = make(map[string]entity.Record, len(d.Records))
	for id, rec := range d.Records {
		out.Records[id] = rec.Clone()
	}
	out.DerivedFromSessions = append([]string{}, d.DerivedFromSessions...)
	out.SkippedSessions = append([]string(nil), d.SkippedSessions...)
	out.RejectedEntities = append([]string(nil), d.RejectedEntities...)
	return &out
}

func (r *DatasetRepository) Latest(ctx context.Context, destinationID string) (*entity.ConsolidatedDataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.data[destinationID]
	if !ok || len(h.versions) == 0 {
		return nil, nil
	}
	var latest int64
	for v := range h.versions {
		if v > latest {
			latest = v
		}
	}
	return copyDataset(h.versions[latest]), nil
}

func (r *DatasetRepository) Get(ctx context.Context, destinationID string, version int64) (*entity.ConsolidatedDataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.data[destinationID]; ok {
		if d, ok := h.versions[version]; ok {
			return copyDataset(d), nil
		}
	}
	return nil, nil
}

func (r *DatasetRepository) Save(ctx context.Context, dataset *entity.ConsolidatedDataset, diff *entity.Diff) error {
	if dataset == nil || dataset.VersionSequence <= 0 {
		return errors.New("dataset repository: refusing to save a dataset without a version")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.data[dataset.DestinationID]
	if !ok {
		h = &destinationHistory{versions: map[int64]*entity.ConsolidatedDataset{}}
		r.data[dataset.DestinationID] = h
	}
	h.versions[dataset.VersionSequence] = copyDataset(dataset)
	if diff != nil {
		d := *diff
		h.diffs = append(h.diffs, &d)
	}
	return nil
}

func (r *DatasetRepository) History(ctx context.Context, destinationID string, limit int) ([]*entity.Diff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.data[destinationID]
	if !ok {
		return []*entity.Diff{}, nil
	}
	out := make([]*entity.Diff, 0, len(h.diffs))
	for i := len(h.diffs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		d := *h.diffs[i]
		out = append(out, &d)
	}
	return out, nil
}

func (r *DatasetRepository) Versions(ctx context.Context, destinationID string) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.versionsLocked(destinationID), nil
}

func (r *DatasetRepository) versionsLocked(destinationID string) []int64 {
	h, ok := r.data[destinationID]
	if !ok {
		return nil
	}
	versions := make([]int64, 0, len(h.versions))
	for v := range h.versions {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions
}

func (r *DatasetRepository) Prune(ctx context.Context, destinationID string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.versionsLocked(destinationID)
	if len(versions) <= keep {
		return 0, nil
	}
	h := r.data[destinationID]
	removed := 0
	for _, v := range versions[:len(versions)-keep] {
		delete(h.versions, v)
		removed++
	}
	return removed, nil
}

func (r *DatasetRepository) Destinations(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.data))
	for dest, h := range r.data {
		if len(h.versions) > 0 {
			out = append(out, dest)
		}
	}
	sort.Strings(out)
	return out, nil
}
