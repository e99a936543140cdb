package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hitqueue/internal/config"
	"hitqueue/internal/engine"
	"hitqueue/internal/logger"
	"hitqueue/internal/store"
	"hitqueue/pkg/health"
)

type upstream struct {
	mu   sync.Mutex
	hits []url.Values
}

func newUpstream(t *testing.T) (*upstream, *httptest.Server) {
	u := &upstream{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits = append(u.hits, r.URL.Query())
		u.mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return u, srv
}

func (u *upstream) received() []url.Values {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]url.Values(nil), u.hits...)
}

func setup(t *testing.T, cfg *config.Config) (*engine.Registry, http.Handler, *upstream) {
	t.Helper()
	up, srv := newUpstream(t)

	st := store.NewMemoryStore(0, logger.NopLogger())
	reg := engine.NewRegistry(engine.RegistryConfig{Store: st}, logger.NopLogger())
	t.Cleanup(func() { reg.Shutdown(context.Background()) })

	e, err := reg.Engine("UA-1-1", engine.WithEndpoints(srv.URL, srv.URL))
	require.NoError(t, err)
	require.NoError(t, reg.SetDefault(e))
	_, err = reg.Engine("UA-2-2", engine.WithEndpoints(srv.URL, srv.URL))
	require.NoError(t, err)

	checks := health.NewCheckerRegistry()
	checks.Register(health.NewPingChecker("queue_store", st))

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })

	return reg, NewRouter(cfg, reg, checks, logger.NopLogger(), stop), up
}

func post(t *testing.T, h http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/track", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestTrackQueuesHit(t *testing.T) {
	reg, h, up := setup(t, &config.Config{})

	w := post(t, h, map[string]interface{}{
		"engine_id": "UA-2-2",
		"app":       map[string]string{"name": "cli", "version": "0.1"},
		"type":      "event",
		"category":  "deploy",
		"action":    "finish",
		"value":     3,
		"params":    map[string]string{"cd1": "prod"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp TrackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, TrackResponse{Status: "queued", EngineID: "UA-2-2"}, resp)

	require.NoError(t, reg.WaitForPending(2*time.Second))
	hits := up.received()
	require.Len(t, hits, 1)
	assert.Equal(t, "UA-2-2", hits[0].Get("tid"))
	assert.Equal(t, "event", hits[0].Get("t"))
	assert.Equal(t, "3", hits[0].Get("ev"))
	assert.Equal(t, "prod", hits[0].Get("cd1"))
}

func TestTrackUsesDefaultEngine(t *testing.T) {
	reg, h, up := setup(t, &config.Config{})

	w := post(t, h, map[string]interface{}{
		"app":  map[string]string{"name": "cli"},
		"type": "pageview",
		"path": "/docs",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.NoError(t, reg.WaitForPending(2*time.Second))
	require.Len(t, up.received(), 1)
	assert.Equal(t, "UA-1-1", up.received()[0].Get("tid"))
}

func TestTrackErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"malformed", "not an object", http.StatusBadRequest},
		{"unknown type", map[string]interface{}{"app": map[string]string{"name": "a"}, "type": "bogus"}, http.StatusBadRequest},
		{"missing app name", map[string]interface{}{"app": map[string]string{}, "type": "pageview", "path": "/"}, http.StatusBadRequest},
		{"invalid module", map[string]interface{}{"app": map[string]string{"name": "a"}, "type": "event"}, http.StatusBadRequest},
		{"empty params", map[string]interface{}{"app": map[string]string{"name": "a"}, "type": "params"}, http.StatusBadRequest},
		{"unknown engine", map[string]interface{}{"engine_id": "UA-9", "app": map[string]string{"name": "a"}, "type": "pageview", "path": "/"}, http.StatusNotFound},
	}

	_, h, up := setup(t, &config.Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, h, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error_code"])
		})
	}
	assert.Empty(t, up.received())
}

func TestListEngines(t *testing.T) {
	_, h, _ := setup(t, &config.Config{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/engines", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"engines":["UA-1-1","UA-2-2"]}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	_, h, _ := setup(t, &config.Config{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp health.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusHealthy, resp.Status)
	assert.Contains(t, resp.Checks, "queue_store")
}

func TestRateLimit(t *testing.T) {
	cfg := &config.Config{}
	cfg.Collector.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}
	_, h, _ := setup(t, cfg)

	body := map[string]interface{}{"app": map[string]string{"name": "a"}, "type": "pageview", "path": "/"}
	assert.Equal(t, http.StatusAccepted, post(t, h, body).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, h, body).Code)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "health is not rate limited")
}
