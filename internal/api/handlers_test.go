package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scriptoria/weaver/internal/catalog"
	"github.com/scriptoria/weaver/internal/config"
	"github.com/scriptoria/weaver/internal/fetcher"
	"github.com/scriptoria/weaver/internal/model"
	"github.com/scriptoria/weaver/internal/orchestrator"
)

// writeFile creates path (and its parent directories) with the given content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// seedTestServer wires orc, GlobalHub, and ServerConfig the way Start would,
// but against a pre-populated fixture directory so no network call ever
// happens (the Fetcher's own "directory existence is the cache key" rule).
func seedTestServer(t *testing.T) {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "en", "ulb-wa", "tit.usfm"),
		"\\id TIT\n\\c 1\n\\s5\n\\v 1 Paul, a servant of God.\n")

	cat := catalog.Load([]model.CatalogEntry{
		{
			Code: "en",
			Contents: []model.CatalogEntry{
				{
					Code: "ulb-wa",
					Subcontents: []model.CatalogEntry{
						{Code: "tit", Links: []model.Link{{Format: "usfm", URL: "https://example.org/en_tit_ulb.usfm"}}},
					},
				},
			},
		},
	})

	cfg := config.Default()
	cfg.WorkingDir = dir
	cfg.FetchTimeout = 5 * time.Second
	cfg.ParseTimeout = 5 * time.Second
	cfg.AssembleTimeout = 5 * time.Second

	f := fetcher.New(dir, cfg.CatalogURL, cfg.CatalogStale, 4)
	orc = orchestrator.New(cfg, cat, f, orchestrator.NewMemStore())

	GlobalHub = NewHub()
	go GlobalHub.Run()
	GlobalWebSocketRateLimiter = NewWebSocketRateLimiter()

	ServerConfig = Config{Pipeline: cfg}
}

func TestSetupRoutesRegistersEveryEndpoint(t *testing.T) {
	seedTestServer(t)
	mux := setupRoutes()

	routes := []struct {
		path   string
		method string
	}{
		{"/", http.MethodGet},
		{"/health", http.MethodGet},
		{"/documents", http.MethodPost},
		{"/task_status/does-not-exist", http.MethodGet},
		{"/language_codes", http.MethodGet},
		{"/resource_types", http.MethodGet},
		{"/resource_codes", http.MethodGet},
	}

	for _, route := range routes {
		req := httptest.NewRequest(route.method, route.path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code == http.StatusNotFound && route.path != "/task_status/does-not-exist" {
			t.Errorf("route %s not registered (got 404)", route.path)
		}
	}
}

func TestHandleDocumentsAndTaskStatusRoundTrip(t *testing.T) {
	seedTestServer(t)
	mux := setupRoutes()

	body := `{"resources":[{"language_code":"en","resource_type":"ulb-wa","book_code":"tit"}],
	"config":{"strategy":"LANGUAGE_BOOK_ORDER","layout":"ONE_COLUMN","chunk_size":"CHAPTER"}}`

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var accepted APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data, ok := accepted.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape: %#v", accepted.Data)
	}
	taskID, _ := data["task_id"].(string)
	if taskID == "" {
		t.Fatal("expected a non-empty task_id")
	}

	deadline := time.Now().Add(2 * time.Second)
	var statusResp TaskStatusResponse
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/task_status/"+taskID, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		var wrapped APIResponse
		if err := json.Unmarshal(w.Body.Bytes(), &wrapped); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		raw, _ := json.Marshal(wrapped.Data)
		json.Unmarshal(raw, &statusResp)

		if statusResp.State == orchestrator.StateSuccess || statusResp.State == orchestrator.StateFailure {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if statusResp.State != orchestrator.StateSuccess {
		t.Fatalf("expected SUCCESS, got %s (error: %s)", statusResp.State, statusResp.Error)
	}
}

func TestHandleDocumentsRejectsEmptyResources(t *testing.T) {
	seedTestServer(t)
	mux := setupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{"resources":[]}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleTaskStatusUnknownID(t *testing.T) {
	seedTestServer(t)
	mux := setupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/task_status/does-not-exist", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleLanguageResourceEnumerations(t *testing.T) {
	seedTestServer(t)
	mux := setupRoutes()

	for _, path := range []string{"/language_codes", "/resource_types", "/resource_codes"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}
}
