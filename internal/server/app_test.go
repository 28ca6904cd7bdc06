package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Headless.Enabled = false
	cfg.Pool.Capacity = 1
	cfg.Pool.WarmSize = 0
	cfg.Monitor.CycleInterval = 50 * time.Millisecond
	cfg.Monitor.DrainTimeout = time.Second
	cfg.Telemetry.TracingEnabled = false
	return cfg
}

func TestBuildServesHealth(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t), zap.NewNop(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Close(context.Background())) })

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestBuildRejectsUnknownBackends(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"storage", func(c *config.Config) { c.Storage.Backend = "mongo" }},
		{"archive", func(c *config.Config) { c.Archive.Backend = "s3" }},
		{"notify", func(c *config.Config) { c.Notify.Type = "carrier-pigeon" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.mutate(&cfg)
			app, err := Build(context.Background(), cfg, zap.NewNop(), "test")
			require.Error(t, err)
			assert.Nil(t, app)
		})
	}
}

func TestBuildWithSQLiteAndLocalArchive(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.SQLitePath = filepath.Join(dir, "targets.db")
	cfg.Archive.Backend = "local"
	cfg.Archive.BaseDir = filepath.Join(dir, "archive")

	app, err := Build(context.Background(), cfg, zap.NewNop(), "test")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, app.Close(context.Background()))
}

func TestServeAppliesSeedAndStopsOnCancel(t *testing.T) {
	shop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><button class="add">Add to Bag</button></body></html>`))
	}))
	t.Cleanup(shop.Close)

	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	seedYAML := "targets:\n  - url: " + shop.URL + "/products/widget\n    name: Widget\n"
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYAML), 0o600))

	cfg := testConfig(t)
	cfg.Seed.File = seedPath
	app, err := Build(context.Background(), cfg, zap.NewNop(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/v1/targets")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Targets []json.RawMessage `json:"targets"`
		}
		if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil {
			return false
		}
		return len(body.Targets) == 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
