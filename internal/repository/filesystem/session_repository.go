package filesystem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"travel-intel/internal/entity"
	"travel-intel/internal/pkg/logger"
	"travel-intel/internal/repository/contract"
	"travel-intel/pkg/events"
	"travel-intel/pkg/hasher"
	"travel-intel/pkg/storage"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Slug turns a destination id into a file-system safe name.
func Slug(destinationID string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(destinationID)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// StorageName is the on-disk name of a destination: the readable slug plus a
// digest of the exact id, so ids that share a slug ("Paris", "paris") never
// share files.
func StorageName(destinationID string) string {
	digest := hasher.Sum(destinationID)[:12]
	if slug := Slug(destinationID); slug != "" {
		return slug + "-" + digest
	}
	return digest
}

// SessionRepository stores sessions as <root>/<session_id>/<storage_name>.json.
// A written session file is never replaced.
type SessionRepository struct {
	root      string
	retry     storage.RetryPolicy
	publisher events.Publisher
	logger    logger.ILogger
	now       func() time.Time
}

func NewSessionRepository(root string, retry storage.RetryPolicy, publisher events.Publisher, log logger.ILogger) *SessionRepository {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &SessionRepository{root: root, retry: retry, publisher: publisher, logger: log, now: time.Now}
}

func (r *SessionRepository) path(sessionID, destinationID string) (string, error) {
	p := filepath.Join(r.root, sessionID, StorageName(destinationID)+".json")
	rel, err := filepath.Rel(r.root, p)
	if err != nil || strings.HasPrefix(rel, "..") || strings.Count(rel, string(filepath.Separator)) != 1 {
		return "", fmt.Errorf("session id %q does not name a directory under the session root", sessionID)
	}
	return p, nil
}

func (r *SessionRepository) ListSessions(ctx context.Context, destinationID string) ([]string, error) {
	entries, err := storage.ReadDir(ctx, r.retry, r.root)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, de := range entries {
		if !de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		path, err := r.path(de.Name(), destinationID)
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			ids = append(ids, de.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *SessionRepository) Load(ctx context.Context, destinationID, sessionID string) (*entity.RecordStore, error) {
	path, err := r.path(sessionID, destinationID)
	loadErr := func(err error) error {
		return &contract.SessionLoadError{SessionID: sessionID, DestinationID: destinationID, Path: path, Err: err}
	}
	if err != nil {
		return nil, loadErr(err)
	}

	raw, err := storage.ReadFile(ctx, r.retry, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, loadErr(err)
		}
		return nil, err
	}

	session, err := DecodeSession(raw)
	if err != nil {
		return nil, loadErr(err)
	}
	if session.SessionID != sessionID {
		return nil, loadErr(fmt.Errorf("file holds session %q", session.SessionID))
	}
	if session.DestinationID != destinationID {
		return nil, loadErr(fmt.Errorf("file holds destination %q", session.DestinationID))
	}
	return entity.NewRecordStore(session), nil
}

// Write stores the session atomically and announces it with SESSION_WRITTEN.
// Writing a (session, destination) pair twice fails with contract.ErrSessionExists.
// A failed announcement is logged; the session is already durable by then.
func (r *SessionRepository) Write(ctx context.Context, session *entity.Session) error {
	if session == nil {
		return errors.New("nil session")
	}
	normalizeSession(session)
	if err := ValidateSession(session); err != nil {
		return err
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = r.now().UTC()
	}
	raw, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.SessionID, err)
	}
	path, err := r.path(session.SessionID, session.DestinationID)
	if err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	if err := storage.CreateFile(ctx, r.retry, path, raw); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("session %s for %s: %w", session.SessionID, session.DestinationID, contract.ErrSessionExists)
		}
		return err
	}

	if r.publisher != nil {
		evt := events.NewSessionWritten(session.SessionID, session.DestinationID, len(session.Records), r.now().UTC())
		if err := r.publisher.Publish(ctx, evt); err != nil {
			r.logger.Warn("SESSION_STORE", "Failed to publish session written event", map[string]interface{}{
				"session_id":     session.SessionID,
				"destination_id": session.DestinationID,
				"error":          err.Error(),
			})
		}
	}
	return nil
}

// DecodeSession parses and validates a session artifact. Numbers inside
// payloads are kept as json.Number so hashing sees their exact text.
func DecodeSession(raw []byte) (*entity.Session, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var session entity.Session
	if err := dec.Decode(&session); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode: trailing data after session")
	}
	normalizeSession(&session)
	if err := ValidateSession(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// normalizeSession fills record ids and destinations left implicit by the producer.
func normalizeSession(session *entity.Session) {
	for id, rec := range session.Records {
		if rec.EntityID == "" {
			rec.EntityID = id
		}
		if rec.DestinationID == "" {
			rec.DestinationID = session.DestinationID
		}
		session.Records[id] = rec
	}
}

// ValidateSession checks struct constraints and that every record belongs to
// the session's destination under its own map key.
func ValidateSession(session *entity.Session) error {
	if session == nil {
		return errors.New("nil session")
	}
	if err := validate.Struct(session); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	// Dot-prefixed directories are never listed, and "." / ".." leave the root.
	if strings.HasPrefix(session.SessionID, ".") {
		return fmt.Errorf("invalid session: session id %q must not start with a dot", session.SessionID)
	}
	for id, rec := range session.Records {
		if rec.EntityID != "" && rec.EntityID != id {
			return fmt.Errorf("invalid session: record key %q holds entity %q", id, rec.EntityID)
		}
		if rec.DestinationID != "" && rec.DestinationID != session.DestinationID {
			return fmt.Errorf("invalid session: record %q belongs to destination %q", id, rec.DestinationID)
		}
	}
	return nil
}
