package model

import (
	"time"

	"gorm.io/datatypes"
)

type DatasetVersion struct {
	Id                  uint                        `gorm:"primaryKey;autoIncrement"`
	DestinationId       string                      `gorm:"type:varchar(255);not null;uniqueIndex:idx_dataset_version"`
	VersionSequence     int64                       `gorm:"not null;uniqueIndex:idx_dataset_version"`
	DatasetHash         string                      `gorm:"type:char(64);not null;index"`
	Strategy            string                      `gorm:"type:varchar(32)"`
	Records             datatypes.JSON              `gorm:"type:jsonb;not null"`
	DerivedFromSessions datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	SkippedSessions     datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	RejectedEntities    datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	LowQualityRecords   int                         `gorm:"not null;default:0"`
	ProducedAt          time.Time                   `gorm:"not null"`
	CreatedAt           time.Time                   `gorm:"autoCreateTime"`
}

func (DatasetVersion) TableName() string {
	return "dataset_versions"
}

// DatasetDiff rows outlive pruned versions.
type DatasetDiff struct {
	Id            uint           `gorm:"primaryKey;autoIncrement"`
	DestinationId string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_dataset_diff"`
	FromVersion   int64          `gorm:"not null"`
	ToVersion     int64          `gorm:"not null;uniqueIndex:idx_dataset_diff"`
	FromHash      string         `gorm:"type:varchar(64)"`
	ToHash        string         `gorm:"type:varchar(64)"`
	Changes       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time      `gorm:"not null"`
}

func (DatasetDiff) TableName() string {
	return "dataset_diffs"
}
