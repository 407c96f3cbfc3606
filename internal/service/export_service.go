package service

import (
	"context"
	"errors"
	"fmt"

	"travel-intel/internal/entity"
	"travel-intel/internal/repository/contract"
)

var ErrDatasetNotFound = errors.New("dataset not found")

// ExportView is the read-only dataset handed to export and dashboard consumers.
type ExportView struct {
	Manifest entity.Manifest             `json:"manifest"`
	Dataset  *entity.ConsolidatedDataset `json:"dataset"`
}

type IExportService interface {
	Latest(ctx context.Context, destinationID string) (*ExportView, error)
	Version(ctx context.Context, destinationID string, version int64) (*ExportView, error)
	Manifests(ctx context.Context, destinationID string) ([]entity.Manifest, error)
	Destinations(ctx context.Context) ([]string, error)
}

type exportService struct {
	datasets contract.DatasetRepository
}

func NewExportService(datasets contract.DatasetRepository) IExportService {
	return &exportService{datasets: datasets}
}

func (s *exportService) Latest(ctx context.Context, destinationID string) (*ExportView, error) {
	dataset, err := s.datasets.Latest(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, destinationID)
	}
	return &ExportView{Manifest: dataset.Manifest(true), Dataset: dataset}, nil
}

func (s *exportService) Version(ctx context.Context, destinationID string, version int64) (*ExportView, error) {
	dataset, err := s.datasets.Get(ctx, destinationID, version)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, fmt.Errorf("%w: %s v%d", ErrDatasetNotFound, destinationID, version)
	}
	versions, err := s.datasets.Versions(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	isLatest := len(versions) > 0 && versions[len(versions)-1] == version
	return &ExportView{Manifest: dataset.Manifest(isLatest), Dataset: dataset}, nil
}

// Manifests lists the retained versions newest first.
func (s *exportService) Manifests(ctx context.Context, destinationID string) ([]entity.Manifest, error) {
	versions, err := s.datasets.Versions(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Manifest, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		dataset, err := s.datasets.Get(ctx, destinationID, versions[i])
		if err != nil {
			return nil, err
		}
		if dataset == nil {
			continue
		}
		out = append(out, dataset.Manifest(i == len(versions)-1))
	}
	return out, nil
}

func (s *exportService) Destinations(ctx context.Context) ([]string, error) {
	return s.datasets.Destinations(ctx)
}
