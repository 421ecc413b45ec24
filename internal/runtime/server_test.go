// internal/runtime/server_test.go
package runtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"contract-runtime/internal/common/config"
	"contract-runtime/internal/common/httpclient"
	"contract-runtime/internal/common/logger"
	"contract-runtime/internal/common/observability"
	"contract-runtime/internal/dispatch"
	"contract-runtime/internal/events"
	"contract-runtime/internal/extension"
	"contract-runtime/internal/query"
	"contract-runtime/internal/store"
	"contract-runtime/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contractV1 = `
openapi: 3.0.3
info:
  title: petstore
  version: 1.0.0
paths:
  /pets:
    post:
      operationId: createPet
      requestBody:
        content:
          application/json:
            schema:
              $ref: "#/components/schemas/Pet"
      responses:
        "201":
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/Pet"
components:
  schemas:
    Pet:
      type: object
      required: [name]
      properties:
        id:
          type: string
        name:
          type: string
`

const contractV2Invalid = `
openapi: 3.0.3
info:
  title: petstore
  version: 2.0.0
paths:
  /pets:
    post:
      operationId: createPet
      x-runtime-validators: [noSuchValidator]
      requestBody:
        content:
          application/json:
            schema:
              $ref: "#/components/schemas/Pet"
      responses:
        "201":
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/Pet"
components:
  schemas:
    Pet:
      type: object
      properties:
        id:
          type: string
        name:
          type: string
`

type fixture struct {
	server   *Server
	snapshot *Snapshot
	path     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "contract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contractV1), 0o644))

	mem := store.NewMemory()
	registry := validation.NewRegistry()
	validation.RegisterBuiltins(registry, mem)

	log := logger.NewNoOpLogger()
	snapshot := NewSnapshot(path, registry, log)
	require.NoError(t, snapshot.Load())

	dispatcher := dispatch.New(
		mem,
		validation.NewEngine(registry, log),
		query.NewTranslator(25, 200),
		extension.NewProxyExecutor(httpclient.NewClient(time.Second), log),
		events.NewEmitter(events.NewRecorder(), 1, time.Millisecond, log, nil),
		"changes.",
		log,
		&observability.Observability{},
	)

	server := NewServer(config.ServerConfig{Address: ":0"}, snapshot, dispatcher, true, log, nil)
	return &fixture{server: server, snapshot: snapshot, path: path}
}

func (f *fixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.request(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	checks := health["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["contract"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.request(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCatchAllRoutesIntoDispatcher(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/pets", `{"name":"rex"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.request(t, http.MethodGet, "/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, "OPERATION_NOT_FOUND", problem["code"])
}

func TestReloadRejectsInvalidDocumentAndKeepsServing(t *testing.T) {
	f := newFixture(t)

	before := f.snapshot.Current()
	require.NoError(t, os.WriteFile(f.path, []byte(contractV2Invalid), 0o644))

	w := f.request(t, http.MethodPost, "/-/reload", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, "CONTRACT_INVALID", problem["code"])

	// previous snapshot still in force
	assert.Same(t, before, f.snapshot.Current())
	w = f.request(t, http.MethodPost, "/pets", `{"name":"bella"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestReloadSwapsValidDocument(t *testing.T) {
	f := newFixture(t)

	updated := strings.Replace(contractV1, "version: 1.0.0", "version: 1.1.0", 1)
	require.NoError(t, os.WriteFile(f.path, []byte(updated), 0o644))

	w := f.request(t, http.MethodPost, "/-/reload", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "1.1.0", resp["version"])
	assert.Equal(t, "1.1.0", f.snapshot.Current().Version)
}
