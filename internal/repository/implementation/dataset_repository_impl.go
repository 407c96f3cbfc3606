package implementation

import (
	"context"
	"errors"

	"travel-intel/internal/entity"
	"travel-intel/internal/mapper"
	"travel-intel/internal/model"
	"travel-intel/internal/repository/contract"
	"travel-intel/internal/repository/specification"

	"gorm.io/gorm"
)

type DatasetRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DatasetMapper
}

func NewDatasetRepository(db *gorm.DB) contract.DatasetRepository {
	return &DatasetRepositoryImpl{
		db:     db,
		mapper: mapper.NewDatasetMapper(),
	}
}

func (r *DatasetRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DatasetRepositoryImpl) findOne(ctx context.Context, specs ...specification.Specification) (*entity.ConsolidatedDataset, error) {
	var m model.DatasetVersion
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m)
}

func (r *DatasetRepositoryImpl) Latest(ctx context.Context, destinationID string) (*entity.ConsolidatedDataset, error) {
	return r.findOne(ctx,
		specification.ByDestinationID{DestinationID: destinationID},
		specification.OrderBy{Field: "version_sequence", Desc: true},
	)
}

func (r *DatasetRepositoryImpl) Get(ctx context.Context, destinationID string, version int64) (*entity.ConsolidatedDataset, error) {
	return r.findOne(ctx,
		specification.ByDestinationID{DestinationID: destinationID},
		specification.ByVersion{Version: version},
	)
}

// Save inserts the diff and the version in one transaction.
func (r *DatasetRepositoryImpl) Save(ctx context.Context, dataset *entity.ConsolidatedDataset, diff *entity.Diff) error {
	if dataset == nil || dataset.VersionSequence <= 0 {
		return errors.New("dataset repository: refusing to save a dataset without a version")
	}
	version, err := r.mapper.ToModel(dataset)
	if err != nil {
		return err
	}
	diffModel, err := r.mapper.DiffToModel(diff)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if diffModel != nil {
			if err := tx.Create(diffModel).Error; err != nil {
				return err
			}
		}
		return tx.Create(version).Error
	})
}

func (r *DatasetRepositoryImpl) History(ctx context.Context, destinationID string, limit int) ([]*entity.Diff, error) {
	var diffs []*model.DatasetDiff
	specs := []specification.Specification{
		specification.ByDestinationID{DestinationID: destinationID},
		specification.OrderBy{Field: "to_version", Desc: true},
	}
	if limit > 0 {
		specs = append(specs, specification.Pagination{Limit: limit})
	}
	if err := r.applySpecifications(r.db.WithContext(ctx), specs...).Find(&diffs).Error; err != nil {
		return nil, err
	}
	return r.mapper.DiffsToEntities(diffs)
}

func (r *DatasetRepositoryImpl) Versions(ctx context.Context, destinationID string) ([]int64, error) {
	var versions []int64
	err := r.applySpecifications(r.db.WithContext(ctx).Model(&model.DatasetVersion{}),
		specification.ByDestinationID{DestinationID: destinationID},
		specification.OrderBy{Field: "version_sequence"},
	).Pluck("version_sequence", &versions).Error
	return versions, err
}

func (r *DatasetRepositoryImpl) Prune(ctx context.Context, destinationID string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	versions, err := r.Versions(ctx, destinationID)
	if err != nil || len(versions) <= keep {
		return 0, err
	}
	cutoff := versions[len(versions)-keep]

	result := r.applySpecifications(r.db.WithContext(ctx),
		specification.ByDestinationID{DestinationID: destinationID},
		specification.VersionBelow{Version: cutoff},
	).Delete(&model.DatasetVersion{})
	return int(result.RowsAffected), result.Error
}

func (r *DatasetRepositoryImpl) Destinations(ctx context.Context) ([]string, error) {
	var dests []string
	err := r.db.WithContext(ctx).
		Model(&model.DatasetVersion{}).
		Distinct("destination_id").
		Order("destination_id ASC").
		Pluck("destination_id", &dests).Error
	return dests, err
}
