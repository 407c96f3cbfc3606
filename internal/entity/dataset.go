package entity

import (
	"sort"
	"time"
)

// ConsolidatedDataset is the single authoritative view of a destination built from all its sessions.
type ConsolidatedDataset struct {
	DestinationID       string            `json:"destination_id"`
	Records             map[string]Record `json:"records"`
	DatasetHash         string            `json:"dataset_hash"`
	DerivedFromSessions []string          `json:"derived_from_sessions"`
	VersionSequence     int64             `json:"version_sequence"`
	ProducedAt          time.Time         `json:"produced_at"`
	Strategy            string            `json:"strategy,omitempty"`
	LowQualityRecords   int               `json:"low_quality_records"`
	SkippedSessions     []string          `json:"skipped_sessions,omitempty"`
	RejectedEntities    []string          `json:"rejected_entities,omitempty"`
}

// EmptyDataset is the "no data yet" state of a destination.
func EmptyDataset(destinationID string) *ConsolidatedDataset {
	return &ConsolidatedDataset{
		DestinationID:       destinationID,
		Records:             map[string]Record{},
		DerivedFromSessions: []string{},
	}
}

// EntityIDs returns the dataset entity ids in sorted order.
func (d *ConsolidatedDataset) EntityIDs() []string {
	ids := make([]string, 0, len(d.Records))
	for id := range d.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Manifest describes the dataset for export. isLatest is true for the dataset
// a consolidation run returns.
func (d *ConsolidatedDataset) Manifest(isLatest bool) Manifest {
	return Manifest{
		DestinationID:       d.DestinationID,
		VersionSequence:     d.VersionSequence,
		DerivedFromSessions: append([]string{}, d.DerivedFromSessions...),
		DatasetHash:         d.DatasetHash,
		IsLatest:            isLatest,
		ProducedAt:          d.ProducedAt,
		RecordCount:         len(d.Records),
		LowQualityRecords:   d.LowQualityRecords,
		SkippedSessions:     d.SkippedSessions,
		RejectedEntities:    d.RejectedEntities,
	}
}

// Manifest is exposed alongside a dataset so consumers can show versioning without re-deriving it.
type Manifest struct {
	DestinationID       string    `json:"destination_id"`
	VersionSequence     int64     `json:"version_sequence"`
	DerivedFromSessions []string  `json:"derived_from_sessions"`
	DatasetHash         string    `json:"dataset_hash"`
	IsLatest            bool      `json:"is_latest"`
	ProducedAt          time.Time `json:"produced_at"`
	RecordCount         int       `json:"record_count"`
	LowQualityRecords   int       `json:"low_quality_records"`
	SkippedSessions     []string  `json:"skipped_sessions,omitempty"`
	RejectedEntities    []string  `json:"rejected_entities,omitempty"`
}

// DiffEntry describes one entity that differs between two dataset versions.
type DiffEntry struct {
	EntityID        string     `json:"entity_id"`
	Kind            EntityKind `json:"kind"`
	OldContentHash  string     `json:"old_content_hash,omitempty"`
	NewContentHash  string     `json:"new_content_hash,omitempty"`
	OldSessionID    string     `json:"old_session_id,omitempty"`
	NewSessionID    string     `json:"new_session_id,omitempty"`
	OldEvidenceSize int        `json:"old_evidence_size"`
	NewEvidenceSize int        `json:"new_evidence_size"`
}

// Diff is the audit record between consecutive dataset versions. It never drives merge decisions.
type Diff struct {
	DestinationID string      `json:"destination_id"`
	FromVersion   int64       `json:"from_version"`
	ToVersion     int64       `json:"to_version"`
	FromHash      string      `json:"from_hash"`
	ToHash        string      `json:"to_hash"`
	Added         []DiffEntry `json:"added"`
	Changed       []DiffEntry `json:"changed"`
	Removed       []DiffEntry `json:"removed"`
	// EvidenceChanged lists entities whose payload is unchanged but whose evidence set moved.
	EvidenceChanged []DiffEntry `json:"evidence_changed"`
	CreatedAt       time.Time   `json:"created_at"`
}

func (d *Diff) IsEmpty() bool {
	return d == nil || len(d.Added)+len(d.Changed)+len(d.Removed)+len(d.EvidenceChanged) == 0
}

// ConsolidationStats summarises what session data is available for a destination.
type ConsolidationStats struct {
	DestinationID  string                      `json:"destination_id"`
	TotalSessions  int                         `json:"total_sessions"`
	LoadedSessions int                         `json:"loaded_sessions"`
	KindAvailable  map[EntityKind]int          `json:"kind_availability"`
	OldestRecord   *time.Time                  `json:"oldest_record,omitempty"`
	NewestRecord   *time.Time                  `json:"newest_record,omitempty"`
	QualityRanges  map[EntityKind]QualityRange `json:"quality_ranges"`
}

type QualityRange struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}
