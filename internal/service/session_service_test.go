package service

import (
	"context"
	"testing"
	"time"

	"travel-intel/internal/dto"
	"travel-intel/internal/entity"
	"travel-intel/internal/repository/contract"
	"travel-intel/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRequest(sessionID string) *dto.WriteSessionRequest {
	created := t0
	return &dto.WriteSessionRequest{
		SessionID:     sessionID,
		DestinationID: dest,
		CreatedAt:     &created,
		Records: map[string]entity.Record{
			"sunset-cruise": {Kind: entity.KindTheme, QualityScore: 0.8, Payload: map[string]any{"title": "Sunset cruise"}},
		},
	}
}

func TestSessionIDForKeepsCreationOrder(t *testing.T) {
	a := SessionIDFor(t0)
	b := SessionIDFor(t0)
	later := SessionIDFor(t0.Add(time.Second))

	assert.Regexp(t, `^session_20250101_120000_[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, later)
	assert.Less(t, b, later)
}

func TestSessionWriteSameSecondProducersDoNotCollide(t *testing.T) {
	ctx := context.Background()
	svc := NewSessionService(memory.NewSessionRepository(nil), nil)

	first, err := svc.Write(ctx, writeRequest(""))
	require.NoError(t, err)
	second, err := svc.Write(ctx, writeRequest(""))
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	list, err := svc.List(ctx, dest)
	require.NoError(t, err)
	assert.Len(t, list.Sessions, 2)
}

func TestSessionWriteExistingSessionConflicts(t *testing.T) {
	ctx := context.Background()
	svc := NewSessionService(memory.NewSessionRepository(nil), nil)

	_, err := svc.Write(ctx, writeRequest("session_20250101_120000"))
	require.NoError(t, err)
	_, err = svc.Write(ctx, writeRequest("session_20250101_120000"))
	assert.ErrorIs(t, err, contract.ErrSessionExists)
	assert.NotErrorIs(t, err, ErrInvalidSession)
}

func TestSessionWriteRejectsPathLikeIDs(t *testing.T) {
	svc := NewSessionService(memory.NewSessionRepository(nil), nil)
	for _, id := range []string{"../escaped", "a/b", `a\b`} {
		_, err := svc.Write(context.Background(), writeRequest(id))
		assert.ErrorIs(t, err, ErrInvalidSession, id)
	}
}
