package dto

import (
	"time"

	"travel-intel/internal/entity"
)

// WriteSessionRequest is how a producer stage hands over one processing run.
// An empty session_id is generated from created_at plus a random suffix.
type WriteSessionRequest struct {
	SessionID     string                   `json:"session_id" validate:"omitempty,max=128,excludesall=/\\"`
	DestinationID string                   `json:"destination_id" validate:"required"`
	Records       map[string]entity.Record `json:"records" validate:"required,min=1"`
	CreatedAt     *time.Time               `json:"created_at"`
}

type WriteSessionResponse struct {
	SessionID     string `json:"session_id"`
	DestinationID string `json:"destination_id"`
	RecordCount   int    `json:"record_count"`
}

type SessionListResponse struct {
	DestinationID string   `json:"destination_id"`
	Sessions      []string `json:"sessions"`
}

type DestinationListResponse struct {
	Destinations []string `json:"destinations"`
}

type CacheClearResponse struct {
	Prefix  string `json:"prefix"`
	Removed int    `json:"removed"`
}
