package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apiary-labs/apiary/internal/config"
	"github.com/apiary-labs/apiary/internal/core"
	"github.com/apiary-labs/apiary/internal/store"
)

type stubGenerator struct {
	text string
	err  error
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string, params core.GenerationParams) (*core.GenerationResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &core.GenerationResult{Text: g.text, Model: "stub-model"}, nil
}

func (g *stubGenerator) ModelID() string { return "stub-model" }

func newTestServer(t *testing.T) (http.Handler, *store.SQLiteStore, *stubGenerator) {
	t.Helper()
	config.LoadConfig()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Skip("sqlite not available:", err)
	}
	t.Cleanup(func() { db.Close() })
	gen := &stubGenerator{}
	handler := NewAPIHandler(core.NewCatalogService(db, gen), db)
	return NewRouter(handler), db, gen
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router, db, gen := newTestServer(t)
	gen.text = `{"apis": [{"name": "Weather API", "provider": "Acme", "category": "Weather", "description": "d"}]}`

	rec := doJSON(t, router, http.MethodPost, "/api/search", SearchRequest{Keyword: "weather"})
	if rec.Code != http.StatusOK {
		t.Fatalf("search returned %d: %s", rec.Code, rec.Body.String())
	}
	entries := decodeBody[[]store.APIEntry](t, rec)
	if len(entries) != 1 || entries[0].Name != "Weather API" {
		t.Fatalf("unexpected search result: %+v", entries)
	}

	stored, _ := db.GetAllAPIs()
	if len(stored) != 1 {
		t.Fatalf("search result not persisted")
	}
}

func TestSearchEmptyKeyword(t *testing.T) {
	router, _, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/api/search", SearchRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing key", core.ErrNoAPIKey, http.StatusPreconditionFailed},
		{"timeout", core.ErrTimeout, http.StatusGatewayTimeout},
		{"upstream", &core.UpstreamError{Message: "quota"}, http.StatusBadGateway},
		{"transport", fmt.Errorf("%w: connection refused", core.ErrTransport), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _, gen := newTestServer(t)
			gen.err = tc.err
			rec := doJSON(t, router, http.MethodPost, "/api/search", SearchRequest{Keyword: "weather"})
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMalformedResponseMapsToBadGateway(t *testing.T) {
	router, _, gen := newTestServer(t)
	gen.text = "no json here"
	rec := doJSON(t, router, http.MethodPost, "/api/search", SearchRequest{Keyword: "weather"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestCatalogCRUD(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/apis", store.APIEntry{
		Name: "Manual API", Provider: "Me", Category: "Test", Description: "d",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[store.APIEntry](t, rec)
	if created.ID == "" || created.CreatedAt == 0 {
		t.Fatalf("created entry missing metadata: %+v", created)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/apis/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d", rec.Code)
	}

	created.Name = "Renamed API"
	rec = doJSON(t, router, http.MethodPut, "/api/apis/"+created.ID, created)
	if rec.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[store.APIEntry](t, rec)
	if updated.Name != "Renamed API" || updated.ID != created.ID {
		t.Fatalf("update mismatch: %+v", updated)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/apis/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete returned %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/apis/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestListAPIsWithFilters(t *testing.T) {
	router, db, _ := newTestServer(t)
	entries := []store.APIEntry{
		{ID: "a", Name: "Weather API", Provider: "Acme", Category: "Weather", Description: "d", Status: store.StatusActive, CreatedAt: 300, IsFavorite: true},
		{ID: "b", Name: "Maps API", Provider: "Geo", Category: "Maps", Description: "d", Status: store.StatusActive, CreatedAt: 200},
		{ID: "c", Name: "Old API", Provider: "Acme", Category: "Weather", Description: "d", Status: store.StatusEOL, CreatedAt: 100},
	}
	if err := db.UpsertAPIs(entries); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/apis?category=Weather&status=active", nil)
	got := decodeBody[[]store.APIEntry](t, rec)
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("filter mismatch: %+v", got)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/apis?favorites=true", nil)
	got = decodeBody[[]store.APIEntry](t, rec)
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("favorites filter mismatch: %+v", got)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/apis?q=maps", nil)
	got = decodeBody[[]store.APIEntry](t, rec)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("keyword filter mismatch: %+v", got)
	}
}

func TestTagAndFavoriteEndpoints(t *testing.T) {
	router, db, _ := newTestServer(t)
	entry := store.APIEntry{ID: "a", Name: "Weather API", Provider: "Acme", Category: "Weather", Description: "d", Status: store.StatusActive, CreatedAt: 100}
	if err := db.UpsertAPI(&entry); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doJSON(t, router, http.MethodPost, "/api/apis/a/tags", TagRequest{Tag: "rest"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add tag returned %d", rec.Code)
	}
	got := decodeBody[store.APIEntry](t, rec)
	if len(got.Tags) != 1 || got.Tags[0] != "rest" {
		t.Fatalf("tag not added: %v", got.Tags)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/apis/a/tags/rest", nil)
	got = decodeBody[store.APIEntry](t, rec)
	if len(got.Tags) != 0 {
		t.Fatalf("tag not removed: %v", got.Tags)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/apis/a/favorite", nil)
	got = decodeBody[store.APIEntry](t, rec)
	if !got.IsFavorite {
		t.Fatalf("favorite not toggled on")
	}
}

func TestGenerateCodeEndpoint(t *testing.T) {
	router, db, gen := newTestServer(t)
	entry := store.APIEntry{ID: "a", Name: "Weather API", Provider: "Acme", Category: "Weather", Description: "d", Status: store.StatusActive, CreatedAt: 100}
	if err := db.UpsertAPI(&entry); err != nil {
		t.Fatalf("seed: %v", err)
	}
	gen.text = "```python\nimport requests\n```"

	rec := doJSON(t, router, http.MethodPost, "/api/apis/a/code", GenerateCodeRequest{Language: "python"})
	if rec.Code != http.StatusOK {
		t.Fatalf("code returned %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[map[string]string](t, rec)
	if got["language"] != "python" || got["code"] != "import requests" {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestExportAndImportEndpoints(t *testing.T) {
	router, db, _ := newTestServer(t)
	entry := store.APIEntry{ID: "a", Name: "Weather API", Provider: "Acme", Category: "Weather", Description: "d", Status: store.StatusActive, CreatedAt: 100}
	if err := db.UpsertAPI(&entry); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/export/json", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("json export: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	dump := rec.Body.String()

	rec = doJSON(t, router, http.MethodGet, "/api/export/csv", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("csv export: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = doJSON(t, router, http.MethodGet, "/api/export/xml", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown format should 400, got %d", rec.Code)
	}

	if err := db.ClearAPIs(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	rec = doJSON(t, router, http.MethodPost, "/api/import", dump)
	if rec.Code != http.StatusOK {
		t.Fatalf("import returned %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[core.ImportResult](t, rec)
	if result.Imported != 1 || result.Total != 1 {
		t.Fatalf("unexpected import result: %+v", result)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/import?strategy=theirs", dump)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown strategy should 400, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPost, "/api/import", "not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid dump should 400, got %d", rec.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	router, _, gen := newTestServer(t)
	gen.text = `{"apis": [{"name": "Weather API", "provider": "Acme", "category": "Weather", "description": "d"}]}`
	if rec := doJSON(t, router, http.MethodPost, "/api/search", SearchRequest{Keyword: "weather"}); rec.Code != http.StatusOK {
		t.Fatalf("seed search failed: %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/history", nil)
	history := decodeBody[[]store.HistoryEntry](t, rec)
	if len(history) != 1 || history[0].Keyword != "weather" {
		t.Fatalf("unexpected history: %+v", history)
	}
	id := history[0].ID

	rec = doJSON(t, router, http.MethodGet, "/api/history/stats", nil)
	stats := decodeBody[store.HistoryStats](t, rec)
	if stats.TotalSearches != 1 || stats.SuccessfulSearches != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/history/export", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), id) {
		t.Fatalf("history export missing entry: %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/history/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete history returned %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/history/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/history", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear history returned %d", rec.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	router, db, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/settings", nil)
	settings := decodeBody[SettingsResponse](t, rec)
	if settings.Model == "" {
		t.Fatalf("settings must always report a model: %+v", settings)
	}

	key := "user-supplied-key"
	model := "gemini-2.5-pro"
	rec = doJSON(t, router, http.MethodPut, "/api/settings", SettingsRequest{APIKey: &key, Model: &model})
	if rec.Code != http.StatusOK {
		t.Fatalf("update settings returned %d: %s", rec.Code, rec.Body.String())
	}
	settings = decodeBody[SettingsResponse](t, rec)
	if !settings.APIKeyConfigured || settings.Model != model {
		t.Fatalf("settings not applied: %+v", settings)
	}
	if strings.Contains(rec.Body.String(), key) {
		t.Fatalf("response must never echo the key")
	}

	stored, err := db.GetPreference(store.PrefAPIKey)
	if err != nil || stored != key {
		t.Fatalf("key not persisted: %q %v", stored, err)
	}
}
