package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"travel-intel/internal/dto"
	"travel-intel/internal/entity"
	"travel-intel/internal/pkg/logger"
	"travel-intel/internal/repository/contract"
	"travel-intel/pkg/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const sessionIDLayout = "session_20060102_150405"

var ErrInvalidSession = errors.New("invalid session")

type ISessionService interface {
	Write(ctx context.Context, req *dto.WriteSessionRequest) (*dto.WriteSessionResponse, error)
	List(ctx context.Context, destinationID string) (*dto.SessionListResponse, error)
}

type sessionService struct {
	sessions contract.SessionRepository
	validate *validator.Validate
	logger   logger.ILogger
	now      func() time.Time
}

func NewSessionService(sessions contract.SessionRepository, log logger.ILogger) ISessionService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &sessionService{
		sessions: sessions,
		validate: validator.New(),
		logger:   log,
		now:      time.Now,
	}
}

// SessionIDFor names a session after its creation time, which keeps ids in
// creation order. The random suffix keeps two producers writing within the
// same second apart.
func SessionIDFor(t time.Time) string {
	return t.UTC().Format(sessionIDLayout) + "_" + uuid.NewString()[:8]
}

func (s *sessionService) Write(ctx context.Context, req *dto.WriteSessionRequest) (*dto.WriteSessionResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	createdAt := s.now().UTC()
	if req.CreatedAt != nil && !req.CreatedAt.IsZero() {
		createdAt = req.CreatedAt.UTC()
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = SessionIDFor(createdAt)
	}

	session := &entity.Session{
		SessionID:     sessionID,
		DestinationID: req.DestinationID,
		Records:       req.Records,
		CreatedAt:     createdAt,
	}
	if err := s.sessions.Write(ctx, session); err != nil {
		if errors.Is(err, storage.ErrStorage) || errors.Is(err, contract.ErrSessionExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	s.logger.Info("SESSION", "Session written", map[string]interface{}{
		"session_id":     sessionID,
		"destination_id": req.DestinationID,
		"records":        len(req.Records),
	})
	return &dto.WriteSessionResponse{
		SessionID:     sessionID,
		DestinationID: req.DestinationID,
		RecordCount:   len(req.Records),
	}, nil
}

func (s *sessionService) List(ctx context.Context, destinationID string) (*dto.SessionListResponse, error) {
	ids, err := s.sessions.ListSessions(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return &dto.SessionListResponse{DestinationID: destinationID, Sessions: ids}, nil
}
