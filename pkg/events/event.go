package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	TypeSessionWritten      = "SESSION_WRITTEN"
	TypeDatasetConsolidated = "DATASET_CONSOLIDATED"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SESSION_WRITTEN").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Publisher sends events to a bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// BaseEvent is the generic Event implementation.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewSessionWritten announces a session artifact that is ready to consolidate.
func NewSessionWritten(sessionID, destinationID string, recordCount int, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeSessionWritten,
		Data: map[string]interface{}{
			"session_id":     sessionID,
			"destination_id": destinationID,
			"record_count":   recordCount,
		},
		OccurredAt: at,
	}
}

// DatasetConsolidated describes a newly persisted dataset version.
type DatasetConsolidated struct {
	DestinationID   string
	VersionSequence int64
	DatasetHash     string
	Added           int
	Changed         int
	Removed         int
}

func NewDatasetConsolidated(d DatasetConsolidated, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeDatasetConsolidated,
		Data: map[string]interface{}{
			"destination_id":   d.DestinationID,
			"version_sequence": d.VersionSequence,
			"dataset_hash":     d.DatasetHash,
			"added":            d.Added,
			"changed":          d.Changed,
			"removed":          d.Removed,
		},
		OccurredAt: at,
	}
}

// StringField reads a string payload field, tolerating a missing key.
func StringField(e Event, key string) string {
	if v, ok := e.Payload()[key].(string); ok {
		return v
	}
	return ""
}

// wireEvent is the bus encoding; the type and time travel with the data so a
// subscriber can rebuild the event.
type wireEvent struct {
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

// Marshal encodes an event for a message bus.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(wireEvent{Type: e.EventType(), OccurredAt: e.Timestamp().UTC(), Data: e.Payload()})
}

// Unmarshal decodes an event produced by Marshal.
func Unmarshal(raw []byte) (BaseEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return BaseEvent{}, err
	}
	if w.Type == "" {
		return BaseEvent{}, errors.New("event without type")
	}
	return BaseEvent{Type: w.Type, Data: w.Data, OccurredAt: w.OccurredAt}, nil
}
