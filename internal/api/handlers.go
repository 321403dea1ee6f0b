package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/apiary-labs/apiary/internal/config"
	"github.com/apiary-labs/apiary/internal/core"
	"github.com/apiary-labs/apiary/internal/store"
)

type APIHandler struct {
	catalogService *core.CatalogService
	dbStore        *store.SQLiteStore
}

func NewAPIHandler(cs *core.CatalogService, db *store.SQLiteStore) *APIHandler {
	return &APIHandler{catalogService: cs, dbStore: db}
}

// writeError maps the service error taxonomy onto HTTP statuses. All bodies
// are human-readable text; there is no programmatic consumer of error codes.
func writeError(w http.ResponseWriter, err error, operation string) {
	var upstream *core.UpstreamError
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, core.ErrNoAPIKey):
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
	case errors.Is(err, core.ErrTimeout):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, core.ErrMalformedResponse),
		errors.Is(err, core.ErrTransport):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, core.ErrInvalidFormat),
		errors.Is(err, core.ErrNoValidEntries),
		errors.Is(err, core.ErrUnknownStrategy):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &upstream):
		http.Error(w, upstream.Error(), http.StatusBadGateway)
	default:
		log.Printf("Error in %s: %v", operation, err)
		http.Error(w, "Failed to "+operation, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

type SearchRequest struct {
	Keyword string `json:"keyword"`
}

func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Keyword == "" {
		http.Error(w, "Keyword cannot be empty", http.StatusBadRequest)
		return
	}

	entries, err := h.catalogService.SearchAPIs(r.Context(), req.Keyword)
	if err != nil {
		writeError(w, err, "search APIs")
		return
	}
	if entries == nil {
		entries = []store.APIEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type AnalyzeURLRequest struct {
	URL string `json:"url"`
}

func (h *APIHandler) AnalyzeURLHandler(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "URL cannot be empty", http.StatusBadRequest)
		return
	}

	analysis, err := h.catalogService.AnalyzeURL(r.Context(), req.URL)
	if err != nil {
		writeError(w, err, "analyze URL")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (h *APIHandler) CreateAPIHandler(w http.ResponseWriter, r *http.Request) {
	var entry store.APIEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if entry.Name == "" {
		http.Error(w, "Entry name cannot be empty", http.StatusBadRequest)
		return
	}

	if err := h.catalogService.RegisterEntry(&entry); err != nil {
		writeError(w, err, "register entry")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *APIHandler) ListAPIsHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.dbStore.GetAllAPIs()
	if err != nil {
		writeError(w, err, "list entries")
		return
	}

	q := r.URL.Query()
	filter := core.Filter{
		Categories:    q["category"],
		Statuses:      q["status"],
		AuthTypes:     q["authType"],
		Pricing:       q["pricing"],
		Tags:          q["tag"],
		FavoritesOnly: q.Get("favorites") == "true",
		Keyword:       q.Get("q"),
	}
	entries = filter.Apply(entries)
	if entries == nil {
		entries = []store.APIEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *APIHandler) GetAPIHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := h.dbStore.GetAPIByID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "get entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) UpdateAPIHandler(w http.ResponseWriter, r *http.Request) {
	var updated store.APIEntry
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := h.catalogService.UpdateEntry(chi.URLParam(r, "id"), &updated)
	if err != nil {
		writeError(w, err, "update entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) DeleteAPIHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.dbStore.DeleteAPI(chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "delete entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type TagRequest struct {
	Tag string `json:"tag"`
}

func (h *APIHandler) AddTagHandler(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Tag == "" {
		http.Error(w, "Tag cannot be empty", http.StatusBadRequest)
		return
	}

	entry, err := h.catalogService.AddTag(chi.URLParam(r, "id"), req.Tag)
	if err != nil {
		writeError(w, err, "add tag")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) RemoveTagHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := h.catalogService.RemoveTag(chi.URLParam(r, "id"), chi.URLParam(r, "tag"))
	if err != nil {
		writeError(w, err, "remove tag")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) ToggleFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := h.catalogService.ToggleFavorite(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "toggle favorite")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) CheckStatusHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.catalogService.CheckStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "check status")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.catalogService.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "verify entry")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) ApplyVerificationHandler(w http.ResponseWriter, r *http.Request) {
	var fields core.VerifiedFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := h.catalogService.ApplyVerification(chi.URLParam(r, "id"), &fields)
	if err != nil {
		writeError(w, err, "apply verification")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type GenerateCodeRequest struct {
	Language string `json:"language"`
}

func (h *APIHandler) GenerateCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req GenerateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Language == "" {
		http.Error(w, "Language cannot be empty", http.StatusBadRequest)
		return
	}

	code, err := h.catalogService.GenerateCode(r.Context(), chi.URLParam(r, "id"), req.Language)
	if err != nil {
		writeError(w, err, "generate code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"language": req.Language, "code": code})
}

func (h *APIHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	var (
		out         string
		err         error
		contentType string
	)
	switch format := chi.URLParam(r, "format"); format {
	case "json":
		out, err = h.dbStore.ExportCatalogJSON()
		contentType = "application/json"
	case "csv":
		out, err = h.dbStore.ExportCatalogCSV()
		contentType = "text/csv"
	case "markdown":
		out, err = h.dbStore.ExportCatalogMarkdown()
		contentType = "text/markdown"
	default:
		http.Error(w, "Unknown export format: "+format, http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err, "export catalog")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write([]byte(out))
}

func (h *APIHandler) ImportHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	result, err := h.catalogService.ImportCatalog(string(body), r.URL.Query().Get("strategy"))
	if err != nil {
		writeError(w, err, "import catalog")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	history, err := h.dbStore.GetAllHistory()
	if err != nil {
		writeError(w, err, "list history")
		return
	}
	if history == nil {
		history = []store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *APIHandler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := h.dbStore.GetHistoryByID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "get history entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) DeleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.dbStore.DeleteHistory(chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "delete history entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.dbStore.ClearHistory(); err != nil {
		writeError(w, err, "clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) HistoryStatsHandler(w http.ResponseWriter, r *http.Request) {
	topN := 0
	if v := r.URL.Query().Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			topN = n
		}
	}

	stats, err := h.dbStore.GetHistoryStats(topN)
	if err != nil {
		writeError(w, err, "compute history stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) ExportHistoryHandler(w http.ResponseWriter, r *http.Request) {
	out, err := h.dbStore.ExportHistoryJSON()
	if err != nil {
		writeError(w, err, "export history")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(out))
}

type SettingsResponse struct {
	APIKeyConfigured bool   `json:"apiKeyConfigured"`
	Model            string `json:"model"`
}

type SettingsRequest struct {
	APIKey *string `json:"apiKey,omitempty"`
	Model  *string `json:"model,omitempty"`
}

func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	key, err := h.dbStore.GetPreference(store.PrefAPIKey)
	if err != nil {
		writeError(w, err, "read settings")
		return
	}
	model, err := h.dbStore.GetPreference(store.PrefModel)
	if err != nil {
		writeError(w, err, "read settings")
		return
	}
	if model == "" {
		model = config.AppConfig.GeminiModel
	}

	// The key itself is never echoed back.
	writeJSON(w, http.StatusOK, SettingsResponse{
		APIKeyConfigured: key != "" || config.AppConfig.GeminiAPIKey != "",
		Model:            model,
	})
}

func (h *APIHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.APIKey != nil {
		if err := h.dbStore.SetPreference(store.PrefAPIKey, *req.APIKey); err != nil {
			writeError(w, err, "update settings")
			return
		}
	}
	if req.Model != nil {
		if err := h.dbStore.SetPreference(store.PrefModel, *req.Model); err != nil {
			writeError(w, err, "update settings")
			return
		}
	}
	h.GetSettingsHandler(w, r)
}
