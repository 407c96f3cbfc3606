package contract

import (
	"context"
	"errors"
	"fmt"

	"travel-intel/internal/entity"
)

// SessionIndex discovers the sessions holding records for a destination.
// Ids come back in ascending (oldest first) order.
type SessionIndex interface {
	ListSessions(ctx context.Context, destinationID string) ([]string, error)
}

// SessionLoader reads one session's records for one destination. A corrupt or
// partially written artifact is reported as *SessionLoadError.
type SessionLoader interface {
	Load(ctx context.Context, destinationID, sessionID string) (*entity.RecordStore, error)
}

// ErrSessionExists is returned by SessionWriter.Write when the
// (session, destination) pair was already written. Sessions are never replaced.
var ErrSessionExists = errors.New("session already exists")

// SessionWriter persists a producer's session atomically.
type SessionWriter interface {
	Write(ctx context.Context, session *entity.Session) error
}

type SessionRepository interface {
	SessionIndex
	SessionLoader
	SessionWriter
}

// SessionLoadError marks a session that cannot be read as a whole. The engine
// skips such sessions instead of failing the run.
type SessionLoadError struct {
	SessionID     string
	DestinationID string
	Path          string
	Err           error
}

func (e *SessionLoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("session %s for %s (%s) cannot be loaded: %v", e.SessionID, e.DestinationID, e.Path, e.Err)
	}
	return fmt.Sprintf("session %s for %s cannot be loaded: %v", e.SessionID, e.DestinationID, e.Err)
}

func (e *SessionLoadError) Unwrap() error { return e.Err }
