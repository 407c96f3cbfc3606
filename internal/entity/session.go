package entity

import "time"

// Session is one immutable snapshot of records produced by a single processing run.
// Session ids are monotonically orderable (e.g. session_20250101_120000).
type Session struct {
	SessionID     string            `json:"session_id" validate:"required,max=128,excludesall=/\\"`
	DestinationID string            `json:"destination_id" validate:"required"`
	Records       map[string]Record `json:"records" validate:"dive"`
	CreatedAt     time.Time         `json:"created_at"`
}
