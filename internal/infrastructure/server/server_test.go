package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesara-space/forge/internal/infrastructure/config"
	"github.com/thesara-space/forge/internal/infrastructure/logging"
)

const seed = `id: weather
owner_id: alice
title: Weather
capabilities: {storage: true}
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	apps := filepath.Join(dir, "apps")
	require.NoError(t, os.MkdirAll(apps, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(apps, "weather.yaml"), []byte(seed), 0o644))

	cfg := config.Default()
	cfg.Storage.DataDir = dir
	cfg.Storage.AppsDir = apps
	cfg.Build.Root = dir
	cfg.Build.CacheDir = filepath.Join(dir, "cdn-cache")
	cfg.Access.SweepInterval = time.Hour
	return cfg
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := New(testConfig(t), Options{Logger: logging.NewNop(), Registerer: reg, Gatherer: reg})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, url string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestServerRoutes(t *testing.T) {
	s, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"healthy"`)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, resp.Header.Get("X-Request-ID"), resp.Header.Get("X-Trace-ID"))

	resp, body = get(t, ts.URL+"/admin/apps", http.Header{"X-Auth-User": {"root"}, "X-Auth-Role": {"admin"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var apps struct {
		Apps []struct {
			ID string `json:"id"`
		} `json:"apps"`
	}
	require.NoError(t, json.Unmarshal(body, &apps))
	require.Len(t, apps.Apps, 1)
	assert.Equal(t, "weather", apps.Apps[0].ID)

	resp, _ = get(t, ts.URL+"/admin/apps", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = get(t, ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "forge_http_requests_total")

	resp, _ = get(t, ts.URL+"/builds/bld_missing/events", nil)
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusNotFound}, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}

func TestOpenFailsOnBadCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Build.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Open(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}
