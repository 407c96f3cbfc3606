package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"travel-intel/internal/entity"
	"travel-intel/internal/repository/contract"
	"travel-intel/pkg/events"

	"github.com/patrickmn/go-cache"
)

const keySep = "\x00"

// SessionRepository keeps sessions in process memory. It backs the "memory"
// dataset backend and tests.
type SessionRepository struct {
	cache     *cache.Cache
	mu        sync.RWMutex
	corrupt   map[string]error
	publisher events.Publisher
}

func NewSessionRepository(publisher events.Publisher) *SessionRepository {
	// Sessions are immutable artifacts; nothing expires.
	c := cache.New(cache.NoExpiration, 0)
	return &SessionRepository{
		cache:     c,
		corrupt:   map[string]error{},
		publisher: publisher,
	}
}

func sessionKey(destinationID, sessionID string) string {
	return destinationID + keySep + sessionID
}

// Write adds the session; an existing (session, destination) pair, corrupt
// or not, is never replaced.
func (r *SessionRepository) Write(ctx context.Context, session *entity.Session) error {
	if session == nil || session.SessionID == "" || session.DestinationID == "" {
		return errors.New("memory session repository: session id and destination id are required")
	}
	key := sessionKey(session.DestinationID, session.SessionID)
	if err := r.cache.Add(key, session, cache.NoExpiration); err != nil {
		return fmt.Errorf("session %s for %s: %w", session.SessionID, session.DestinationID, contract.ErrSessionExists)
	}

	if r.publisher != nil {
		evt := events.NewSessionWritten(session.SessionID, session.DestinationID, len(session.Records), session.CreatedAt)
		return r.publisher.Publish(ctx, evt)
	}
	return nil
}

// MarkCorrupt makes Load of the session fail with a SessionLoadError, as a
// truncated file would.
func (r *SessionRepository) MarkCorrupt(destinationID, sessionID string, cause error) {
	key := sessionKey(destinationID, sessionID)
	if _, found := r.cache.Get(key); !found {
		r.cache.Set(key, (*entity.Session)(nil), cache.NoExpiration)
	}
	r.mu.Lock()
	r.corrupt[key] = cause
	r.mu.Unlock()
}

func (r *SessionRepository) ListSessions(_ context.Context, destinationID string) ([]string, error) {
	prefix := destinationID + keySep
	var ids []string
	for key := range r.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *SessionRepository) Load(_ context.Context, destinationID, sessionID string) (*entity.RecordStore, error) {
	key := sessionKey(destinationID, sessionID)

	r.mu.RLock()
	cause, bad := r.corrupt[key]
	r.mu.RUnlock()
	if bad {
		return nil, &contract.SessionLoadError{SessionID: sessionID, DestinationID: destinationID, Err: cause}
	}

	x, found := r.cache.Get(key)
	if !found {
		return nil, &contract.SessionLoadError{SessionID: sessionID, DestinationID: destinationID, Err: errors.New("session not found")}
	}
	return entity.NewRecordStore(x.(*entity.Session)), nil
}

func (r *SessionRepository) Delete(destinationID, sessionID string) {
	key := sessionKey(destinationID, sessionID)
	r.cache.Delete(key)
	r.mu.Lock()
	delete(r.corrupt, key)
	r.mu.Unlock()
}
