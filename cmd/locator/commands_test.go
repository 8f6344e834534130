package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/benmeehan/locator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "state_dir: " + filepath.Join(dir, "state") + `
log:
  level: error
location:
  provider: static
  permission: granted
  static:
    latitude: 52.5
    longitude: 13.4
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type receiver struct {
	mu       sync.Mutex
	payloads []models.ReportPayload
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var payload models.ReportPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.payloads = append(r.payloads, payload)
	r.mu.Unlock()
}

func (r *receiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func TestCLI_EnableReportsAndRegisters(t *testing.T) {
	recv := &receiver{}
	srv := httptest.NewServer(recv)
	defer srv.Close()

	config := writeTestConfig(t)

	out, err := runCLI(t, "--config", config, "url", "  "+srv.URL+"  ")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"\n", out)

	out, err = runCLI(t, "--config", config, "enable")
	require.NoError(t, err)
	assert.Equal(t, "Latitude: 52.5, Longitude: 13.4\n", out)
	require.Equal(t, 1, recv.count())
	assert.Equal(t, 52.5, recv.payloads[0].Location.Coords.Latitude)

	out, err = runCLI(t, "--config", config, "status")
	require.NoError(t, err)
	assert.Regexp(t, `enabled:\s+true`, out)
	assert.Regexp(t, `registered:\s+true`, out)
	assert.Contains(t, out, "task share-location:")

	// A second enable leaves a single registration
	_, err = runCLI(t, "--config", config, "enable")
	require.NoError(t, err)
	assert.Equal(t, 2, recv.count())

	out, err = runCLI(t, "--config", config, "find")
	require.NoError(t, err)
	assert.Equal(t, "Latitude: 52.5, Longitude: 13.4\n", out)
	assert.Equal(t, 3, recv.count())

	out, err = runCLI(t, "--config", config, "disable")
	require.NoError(t, err)
	assert.Equal(t, "Location sharing is disabled\n", out)
	assert.Equal(t, 3, recv.count())

	out, err = runCLI(t, "--config", config, "status")
	require.NoError(t, err)
	assert.Regexp(t, `registered:\s+false`, out)
	assert.NotContains(t, out, "task share-location:")
}

func TestCLI_FindWithoutURLReportsFailure(t *testing.T) {
	config := writeTestConfig(t)

	_, err := runCLI(t, "--config", config, "enable")
	require.NoError(t, err)

	out, err := runCLI(t, "--config", config, "find", "--json")
	require.NoError(t, err)

	var outcome models.Outcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.Equal(t, "idle", outcome.State)
	assert.True(t, outcome.Reported())
	assert.NotEmpty(t, outcome.Error)
}

func TestCLI_ConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := runCLI(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	_, err = runCLI(t, "--config", path, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = runCLI(t, "--config", path, "config", "init", "--force")
	assert.NoError(t, err)
}
