package filesystem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"travel-intel/internal/entity"
	"travel-intel/internal/repository/contract"
	"travel-intel/pkg/storage"
)

const (
	versionPrefix = "v"
	fileExt       = ".json"
	diffDir       = "diffs"
)

// DatasetRepository keeps one directory per destination:
//
//	<root>/<storage_name>/v000003.json
//	<root>/<storage_name>/diffs/v000003.json
type DatasetRepository struct {
	root  string
	retry storage.RetryPolicy
}

func NewDatasetRepository(root string, retry storage.RetryPolicy) contract.DatasetRepository {
	return &DatasetRepository{root: root, retry: retry}
}

func versionFile(version int64) string {
	return fmt.Sprintf("%s%06d%s", versionPrefix, version, fileExt)
}

func parseVersionFile(name string) (int64, bool) {
	if !strings.HasPrefix(name, versionPrefix) || !strings.HasSuffix(name, fileExt) {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, versionPrefix), fileExt), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func (r *DatasetRepository) dir(destinationID string) string {
	return filepath.Join(r.root, StorageName(destinationID))
}

func (r *DatasetRepository) Latest(ctx context.Context, destinationID string) (*entity.ConsolidatedDataset, error) {
	versions, err := r.Versions(ctx, destinationID)
	if err != nil || len(versions) == 0 {
		return nil, err
	}
	return r.Get(ctx, destinationID, versions[len(versions)-1])
}

func (r *DatasetRepository) Get(ctx context.Context, destinationID string, version int64) (*entity.ConsolidatedDataset, error) {
	path := filepath.Join(r.dir(destinationID), versionFile(version))
	raw, err := storage.ReadFile(ctx, r.retry, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var dataset entity.ConsolidatedDataset
	if err := decodeJSON(raw, &dataset); err != nil {
		return nil, &storage.StorageError{Op: "decode dataset", Path: path, Attempts: 1, Err: err}
	}
	if dataset.DestinationID != destinationID {
		return nil, &storage.StorageError{Op: "read dataset", Path: path, Attempts: 1,
			Err: fmt.Errorf("file holds destination %q, want %q", dataset.DestinationID, destinationID)}
	}
	if dataset.Records == nil {
		dataset.Records = map[string]entity.Record{}
	}
	return &dataset, nil
}

// Save writes the diff before the dataset so a visible version always has its audit record.
func (r *DatasetRepository) Save(ctx context.Context, dataset *entity.ConsolidatedDataset, diff *entity.Diff) error {
	if dataset == nil || dataset.VersionSequence <= 0 {
		return errors.New("dataset repository: refusing to save a dataset without a version")
	}
	dir := r.dir(dataset.DestinationID)

	if diff != nil {
		raw, err := json.MarshalIndent(diff, "", "  ")
		if err != nil {
			return fmt.Errorf("encode diff: %w", err)
		}
		if err := storage.WriteFile(ctx, r.retry, filepath.Join(dir, diffDir, versionFile(diff.ToVersion)), raw); err != nil {
			return err
		}
	}

	raw, err := json.MarshalIndent(dataset, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return storage.WriteFile(ctx, r.retry, filepath.Join(dir, versionFile(dataset.VersionSequence)), raw)
}

func (r *DatasetRepository) History(ctx context.Context, destinationID string, limit int) ([]*entity.Diff, error) {
	dir := filepath.Join(r.dir(destinationID), diffDir)
	versions, err := r.listVersions(ctx, dir)
	if err != nil {
		return nil, err
	}

	diffs := make([]*entity.Diff, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		if limit > 0 && len(diffs) >= limit {
			break
		}
		path := filepath.Join(dir, versionFile(versions[i]))
		raw, err := storage.ReadFile(ctx, r.retry, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		var diff entity.Diff
		if err := decodeJSON(raw, &diff); err != nil {
			return nil, &storage.StorageError{Op: "decode diff", Path: path, Attempts: 1, Err: err}
		}
		diffs = append(diffs, &diff)
	}
	return diffs, nil
}

func (r *DatasetRepository) Versions(ctx context.Context, destinationID string) ([]int64, error) {
	return r.listVersions(ctx, r.dir(destinationID))
}

func (r *DatasetRepository) listVersions(ctx context.Context, dir string) ([]int64, error) {
	entries, err := storage.ReadDir(ctx, r.retry, dir)
	if err != nil {
		return nil, err
	}
	var versions []int64
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if v, ok := parseVersionFile(de.Name()); ok {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

func (r *DatasetRepository) Prune(ctx context.Context, destinationID string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	versions, err := r.Versions(ctx, destinationID)
	if err != nil || len(versions) <= keep {
		return 0, err
	}
	removed := 0
	for _, v := range versions[:len(versions)-keep] {
		if err := storage.RemoveFile(ctx, r.retry, filepath.Join(r.dir(destinationID), versionFile(v))); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Destinations reads the destination id back from each directory's newest
// version, since storage names cannot be reversed.
func (r *DatasetRepository) Destinations(ctx context.Context) ([]string, error) {
	entries, err := storage.ReadDir(ctx, r.retry, r.root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, de := range entries {
		if !de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		dir := filepath.Join(r.root, de.Name())
		versions, err := r.listVersions(ctx, dir)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			continue
		}
		raw, err := storage.ReadFile(ctx, r.retry, filepath.Join(dir, versionFile(versions[len(versions)-1])))
		if err != nil {
			return nil, err
		}
		var head struct {
			DestinationID string `json:"destination_id"`
		}
		if err := json.Unmarshal(raw, &head); err != nil || head.DestinationID == "" {
			continue
		}
		out = append(out, head.DestinationID)
	}
	sort.Strings(out)
	return out, nil
}

func decodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
