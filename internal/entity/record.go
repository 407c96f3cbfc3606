package entity

import (
	"sort"
	"time"
)

// EntityKind discriminates what a record's payload describes.
type EntityKind string

const (
	KindTheme         EntityKind = "theme"
	KindNuance        EntityKind = "nuance"
	KindEvidenceClaim EntityKind = "evidence_claim"
)

func (k EntityKind) Valid() bool {
	switch k {
	case KindTheme, KindNuance, KindEvidenceClaim:
		return true
	}
	return false
}

// EvidenceItem is a single sourced citation supporting a record.
type EvidenceItem struct {
	SourceURL      string    `json:"source_url"`
	SourceDomain   string    `json:"source_domain"`
	AuthorityScore float64   `json:"authority_score" validate:"gte=0,lte=1"`
	Excerpt        string    `json:"excerpt"`
	CollectedAt    time.Time `json:"collected_at"`
}

// Record is one logical entity (theme, nuance or evidence-bearing claim) about one destination.
type Record struct {
	EntityID        string         `json:"entity_id" validate:"required"`
	DestinationID   string         `json:"destination_id" validate:"required"`
	Kind            EntityKind     `json:"kind" validate:"required,oneof=theme nuance evidence_claim"`
	Payload         map[string]any `json:"payload"`
	QualityScore    float64        `json:"quality_score" validate:"gte=0,lte=1"`
	Evidence        []EvidenceItem `json:"evidence" validate:"dive"`
	SourceSessionID string         `json:"source_session_id"`
	ProducedAt      time.Time      `json:"produced_at"`
	ContentHash     string         `json:"content_hash"`
}

// Clone returns a copy whose evidence slice can be replaced without touching the original.
// Payload is shared: records are treated as immutable once loaded.
func (r Record) Clone() Record {
	out := r
	if r.Evidence != nil {
		out.Evidence = append([]EvidenceItem(nil), r.Evidence...)
	}
	return out
}

// RecordStore is a read-only view over one session's records for one destination.
type RecordStore struct {
	sessionID     string
	destinationID string
	createdAt     time.Time
	records       map[string]Record
}

func NewRecordStore(session *Session) *RecordStore {
	records := make(map[string]Record, len(session.Records))
	for id, rec := range session.Records {
		if rec.EntityID == "" {
			rec.EntityID = id
		}
		if rec.DestinationID == "" {
			rec.DestinationID = session.DestinationID
		}
		if rec.SourceSessionID == "" {
			rec.SourceSessionID = session.SessionID
		}
		if rec.ProducedAt.IsZero() {
			rec.ProducedAt = session.CreatedAt
		}
		records[id] = rec
	}
	return &RecordStore{
		sessionID:     session.SessionID,
		destinationID: session.DestinationID,
		createdAt:     session.CreatedAt,
		records:       records,
	}
}

func (s *RecordStore) SessionID() string     { return s.sessionID }
func (s *RecordStore) DestinationID() string { return s.destinationID }
func (s *RecordStore) CreatedAt() time.Time  { return s.createdAt }
func (s *RecordStore) Len() int              { return len(s.records) }

func (s *RecordStore) Get(entityID string) (Record, bool) {
	rec, ok := s.records[entityID]
	return rec, ok
}

// All returns the records ordered by entity id.
func (s *RecordStore) All() []Record {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[id])
	}
	return out
}
