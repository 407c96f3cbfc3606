package specification

import "gorm.io/gorm"

type ByDestinationID struct {
	DestinationID string
}

func (s ByDestinationID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("destination_id = ?", s.DestinationID)
}

type ByVersion struct {
	Version int64
}

func (s ByVersion) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("version_sequence = ?", s.Version)
}

// VersionBelow matches versions strictly older than Version.
type VersionBelow struct {
	Version int64
}

func (s VersionBelow) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("version_sequence < ?", s.Version)
}
