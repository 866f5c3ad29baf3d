package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashdeck/hashdeck/internal/archive"
	"github.com/hashdeck/hashdeck/internal/config"
	"github.com/hashdeck/hashdeck/internal/events"
	wshandler "github.com/hashdeck/hashdeck/internal/handlers/ws"
	"github.com/hashdeck/hashdeck/internal/models"
	"github.com/hashdeck/hashdeck/internal/potfile"
	"github.com/hashdeck/hashdeck/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server  *httptest.Server
	manager *registry.Manager
	shared  *potfile.Shared
	store   *archive.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "sessions"), 0750))

	worker := filepath.Join(dataDir, "fake-worker.sh")
	require.NoError(t, os.WriteFile(worker, []byte("#!/bin/sh\nexec sleep 30\n"), 0755))

	cfg := &config.Config{
		DataDir:       dataDir,
		HashcatBinary: worker,
		StatusTimer:   1,
		PotfilePoll:   100 * time.Millisecond,
	}

	shared, err := potfile.NewShared(cfg.SharedPotfilePath())
	require.NoError(t, err)

	store, err := archive.Open(cfg.ArchivePath())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := events.NewBus()
	manager := registry.NewManager(cfg, shared, bus, store)
	ws := wshandler.NewHandler(bus, manager)

	server := httptest.NewServer(NewRouter(cfg, manager, shared, store, ws))
	t.Cleanup(server.Close)

	return &fixture{server: server, manager: manager, shared: shared, store: store}
}

func (f *fixture) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestStartListStopDelete(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/sessions", map[string]interface{}{
		"name":        "api test",
		"custom_args": []string{"run"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var view models.SessionView
	decode(t, resp, &view)
	assert.Equal(t, "api test", view.Name)
	assert.Equal(t, models.SessionStatusRunning, view.Status)
	require.NotEmpty(t, view.ID)

	resp = f.get(t, "/api/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var views []models.SessionView
	decode(t, resp, &views)
	require.Len(t, views, 1)

	resp = f.post(t, fmt.Sprintf("/api/sessions/%s/stop", view.ID), nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	sess, ok := f.manager.Get(view.ID)
	require.True(t, ok)
	select {
	case <-sess.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("stopped session did not finish")
	}
}

func TestStartRejectsBadConfig(t *testing.T) {
	f := newFixture(t)

	// Dictionary mode without any input
	resp := f.post(t, "/api/sessions", map[string]interface{}{
		"name":      "broken",
		"hash_type": 0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, 0, f.manager.ActiveCount())
}

func TestStopSoleWithNothingActive(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/sessions/stop", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteUnknownSession(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodDelete, f.server.URL+"/api/sessions/no-such-id", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestPotfileEndpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.shared.AppendLine("aa:bb"))
	require.NoError(t, f.shared.AppendLine("cc:dd"))

	resp := f.get(t, "/api/potfile")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lines []string
	decode(t, resp, &lines)
	assert.Equal(t, []string{"aa:bb", "cc:dd"}, lines)
}

func TestHistoryEndpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Record(archive.Summary{
		ID:        "done-1",
		Name:      "finished run",
		StartedAt: time.Now(),
		Recovered: 3,
		Total:     10,
		Status:    models.SessionStatusCompleted,
	}))

	resp := f.get(t, "/api/history?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sums []archive.Summary
	decode(t, resp, &sums)
	require.Len(t, sums, 1)
	assert.Equal(t, "done-1", sums[0].ID)
	assert.Equal(t, 3, sums[0].Recovered)
}
