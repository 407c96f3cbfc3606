package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"

	"travel-intel/internal/entity"
	"travel-intel/internal/model"

	"gorm.io/datatypes"
)

type DatasetMapper struct{}

func NewDatasetMapper() *DatasetMapper {
	return &DatasetMapper{}
}

func (m *DatasetMapper) ToEntity(d *model.DatasetVersion) (*entity.ConsolidatedDataset, error) {
	if d == nil {
		return nil, nil
	}

	records := map[string]entity.Record{}
	if len(d.Records) > 0 {
		if err := decode(d.Records, &records); err != nil {
			return nil, fmt.Errorf("dataset %s v%d: records: %w", d.DestinationId, d.VersionSequence, err)
		}
	}

	return &entity.ConsolidatedDataset{
		DestinationID:       d.DestinationId,
		Records:             records,
		DatasetHash:         d.DatasetHash,
		DerivedFromSessions: append([]string{}, d.DerivedFromSessions...),
		VersionSequence:     d.VersionSequence,
		ProducedAt:          d.ProducedAt.UTC(),
		Strategy:            d.Strategy,
		LowQualityRecords:   d.LowQualityRecords,
		SkippedSessions:     nonEmpty(d.SkippedSessions),
		RejectedEntities:    nonEmpty(d.RejectedEntities),
	}, nil
}

func (m *DatasetMapper) ToModel(d *entity.ConsolidatedDataset) (*model.DatasetVersion, error) {
	if d == nil {
		return nil, nil
	}

	records, err := json.Marshal(d.Records)
	if err != nil {
		return nil, fmt.Errorf("dataset %s v%d: records: %w", d.DestinationID, d.VersionSequence, err)
	}

	return &model.DatasetVersion{
		DestinationId:       d.DestinationID,
		VersionSequence:     d.VersionSequence,
		DatasetHash:         d.DatasetHash,
		Strategy:            d.Strategy,
		Records:             datatypes.JSON(records),
		DerivedFromSessions: datatypes.JSONSlice[string](d.DerivedFromSessions),
		SkippedSessions:     datatypes.JSONSlice[string](d.SkippedSessions),
		RejectedEntities:    datatypes.JSONSlice[string](d.RejectedEntities),
		LowQualityRecords:   d.LowQualityRecords,
		ProducedAt:          d.ProducedAt,
	}, nil
}

// diffChanges is the jsonb body of a DatasetDiff row.
type diffChanges struct {
	Added           []entity.DiffEntry `json:"added"`
	Changed         []entity.DiffEntry `json:"changed"`
	Removed         []entity.DiffEntry `json:"removed"`
	EvidenceChanged []entity.DiffEntry `json:"evidence_changed"`
}

func (m *DatasetMapper) DiffToEntity(d *model.DatasetDiff) (*entity.Diff, error) {
	if d == nil {
		return nil, nil
	}
	var changes diffChanges
	if len(d.Changes) > 0 {
		if err := decode(d.Changes, &changes); err != nil {
			return nil, fmt.Errorf("diff %s v%d: %w", d.DestinationId, d.ToVersion, err)
		}
	}
	return &entity.Diff{
		DestinationID:   d.DestinationId,
		FromVersion:     d.FromVersion,
		ToVersion:       d.ToVersion,
		FromHash:        d.FromHash,
		ToHash:          d.ToHash,
		Added:           changes.Added,
		Changed:         changes.Changed,
		Removed:         changes.Removed,
		EvidenceChanged: changes.EvidenceChanged,
		CreatedAt:       d.CreatedAt.UTC(),
	}, nil
}

func (m *DatasetMapper) DiffToModel(d *entity.Diff) (*model.DatasetDiff, error) {
	if d == nil {
		return nil, nil
	}
	changes, err := json.Marshal(diffChanges{
		Added:           d.Added,
		Changed:         d.Changed,
		Removed:         d.Removed,
		EvidenceChanged: d.EvidenceChanged,
	})
	if err != nil {
		return nil, fmt.Errorf("diff %s v%d: %w", d.DestinationID, d.ToVersion, err)
	}
	return &model.DatasetDiff{
		DestinationId: d.DestinationID,
		FromVersion:   d.FromVersion,
		ToVersion:     d.ToVersion,
		FromHash:      d.FromHash,
		ToHash:        d.ToHash,
		Changes:       datatypes.JSON(changes),
		CreatedAt:     d.CreatedAt,
	}, nil
}

func (m *DatasetMapper) DiffsToEntities(diffs []*model.DatasetDiff) ([]*entity.Diff, error) {
	entities := make([]*entity.Diff, len(diffs))
	for i, d := range diffs {
		e, err := m.DiffToEntity(d)
		if err != nil {
			return nil, err
		}
		entities[i] = e
	}
	return entities, nil
}

func decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func nonEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return append([]string(nil), s...)
}
