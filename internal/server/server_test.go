package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"travel-intel/internal/bootstrap"
	"travel-intel/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		App: config.AppConfig{
			Port:               "0",
			Environment:        "test",
			LogFilePath:        filepath.Join(dir, "app.log"),
			CacheLogFilePath:   filepath.Join(dir, "cache.log"),
			CorsAllowedOrigins: "*",
		},
		Consolidation: config.ConsolidationConfig{
			SessionsRoot:              filepath.Join(dir, "sessions"),
			SessionBackend:            "file",
			DatasetRoot:               filepath.Join(dir, "datasets"),
			DatasetBackend:            "file",
			MaxSessionsToConsider:     10,
			MinQualityForPreservation: 0.6,
			MaxVersionsPerDestination: 5,
			MaxEvidencePerDomain:      3,
			MergeWorkers:              2,
			DefaultStrategy:           "quality_first",
			StrategyOverrides:         map[string]string{},
			LockBackend:               "memory",
			LockTTL:                   time.Minute,
		},
		Cache: config.CacheConfig{
			TTL:              time.Hour,
			MaxMemoryEntries: 100,
			SessionCacheTTL:  time.Minute,
		},
		Storage: config.StorageConfig{RetryAttempts: 1},
		Events:  config.EventsConfig{SessionWrittenTopic: "SESSION_WRITTEN"},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, srv *Server, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.GetApp().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func TestSessionToDatasetOverHTTP(t *testing.T) {
	cfg := testConfig(t)
	container := bootstrap.NewContainer(nil, cfg)
	defer container.Close()
	srv := New(cfg, container)

	dest := "Santorini, Greece"
	base := "/api/dataset/v1/" + url.PathEscape(dest)

	status, _ := do(t, srv, http.MethodGet, base+"/latest", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env := do(t, srv, http.MethodPost, "/api/session/v1", map[string]any{
		"session_id":     "session_20250101_120000",
		"destination_id": dest,
		"created_at":     "2025-01-01T12:00:00Z",
		"records": map[string]any{
			"sunset-cruise": map[string]any{
				"kind":          "theme",
				"quality_score": 0.8,
				"payload":       map[string]any{"title": "Sunset cruise"},
				"evidence": []map[string]any{
					{"source_url": "https://www.greeka.com/santorini", "authority_score": 0.7, "excerpt": "Boats leave at dusk."},
				},
			},
		},
	})
	require.Equal(t, http.StatusCreated, status, env.Message)

	status, env = do(t, srv, http.MethodGet, "/api/session/v1/"+url.PathEscape(dest), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), "session_20250101_120000")

	status, env = do(t, srv, http.MethodPost, base+"/consolidate", nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Equal(t, "Consolidation created", env.Message)

	status, env = do(t, srv, http.MethodGet, base+"/latest", nil)
	require.Equal(t, http.StatusOK, status)
	var view struct {
		Manifest struct {
			VersionSequence int64 `json:"version_sequence"`
			IsLatest        bool  `json:"is_latest"`
			RecordCount     int   `json:"record_count"`
		} `json:"manifest"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, int64(1), view.Manifest.VersionSequence)
	assert.True(t, view.Manifest.IsLatest)
	assert.Equal(t, 1, view.Manifest.RecordCount)

	status, _ = do(t, srv, http.MethodGet, base+"/versions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodGet, base+"/history", nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = do(t, srv, http.MethodGet, "/ops/v1/cache/stats", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), "hit_rate")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := srv.GetApp().Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `travel_intel_consolidations_total{destination="Santorini, Greece",outcome="created"} 1`)
}

func TestInvalidSessionIsRejected(t *testing.T) {
	cfg := testConfig(t)
	container := bootstrap.NewContainer(nil, cfg)
	defer container.Close()
	srv := New(cfg, container)

	status, env := do(t, srv, http.MethodPost, "/api/session/v1", map[string]any{
		"destination_id": "Kyoto",
		"records":        map[string]any{"x": map[string]any{"kind": "rumour", "quality_score": 0.5}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)
}

func sessionBody(id string) map[string]any {
	return map[string]any{
		"session_id":     id,
		"destination_id": "Kyoto",
		"records": map[string]any{
			"moss-garden": map[string]any{"kind": "theme", "quality_score": 0.7, "payload": map[string]any{"title": "Saihō-ji"}},
		},
	}
}

func TestSessionIDCannotLeaveSessionsRoot(t *testing.T) {
	cfg := testConfig(t)
	container := bootstrap.NewContainer(nil, cfg)
	defer container.Close()
	srv := New(cfg, container)

	for _, id := range []string{"../escaped", "..", ".hidden", `..\escaped`} {
		status, env := do(t, srv, http.MethodPost, "/api/session/v1", sessionBody(id))
		assert.Equal(t, http.StatusBadRequest, status, id)
		assert.False(t, env.Success)
	}

	parent := filepath.Dir(cfg.Consolidation.SessionsRoot)
	_, err := os.Stat(filepath.Join(parent, "escaped"))
	assert.True(t, os.IsNotExist(err))
}

func TestRewritingSessionConflicts(t *testing.T) {
	cfg := testConfig(t)
	container := bootstrap.NewContainer(nil, cfg)
	defer container.Close()
	srv := New(cfg, container)

	status, env := do(t, srv, http.MethodPost, "/api/session/v1", sessionBody("session_20250101_120000"))
	require.Equal(t, http.StatusCreated, status, env.Message)

	status, env = do(t, srv, http.MethodPost, "/api/session/v1", sessionBody("session_20250101_120000"))
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, env.Success)
}
