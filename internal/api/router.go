package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes live under /api; the browser UI is the only client.
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Generation flows
		r.Post("/search", apiHandler.SearchHandler)
		r.Post("/analyze-url", apiHandler.AnalyzeURLHandler)

		// Catalog
		r.Post("/apis", apiHandler.CreateAPIHandler)
		r.Get("/apis", apiHandler.ListAPIsHandler)
		r.Get("/apis/{id}", apiHandler.GetAPIHandler)
		r.Put("/apis/{id}", apiHandler.UpdateAPIHandler)
		r.Delete("/apis/{id}", apiHandler.DeleteAPIHandler)
		r.Post("/apis/{id}/tags", apiHandler.AddTagHandler)
		r.Delete("/apis/{id}/tags/{tag}", apiHandler.RemoveTagHandler)
		r.Post("/apis/{id}/favorite", apiHandler.ToggleFavoriteHandler)
		r.Post("/apis/{id}/check-status", apiHandler.CheckStatusHandler)
		r.Post("/apis/{id}/verify", apiHandler.VerifyHandler)
		r.Post("/apis/{id}/verify/apply", apiHandler.ApplyVerificationHandler)
		r.Post("/apis/{id}/code", apiHandler.GenerateCodeHandler)

		// File exchange
		r.Get("/export/{format}", apiHandler.ExportHandler)
		r.Post("/import", apiHandler.ImportHandler)

		// History
		r.Get("/history", apiHandler.ListHistoryHandler)
		r.Get("/history/stats", apiHandler.HistoryStatsHandler)
		r.Get("/history/export", apiHandler.ExportHistoryHandler)
		r.Get("/history/{id}", apiHandler.GetHistoryHandler)
		r.Delete("/history/{id}", apiHandler.DeleteHistoryHandler)
		r.Delete("/history", apiHandler.ClearHistoryHandler)

		// Settings
		r.Get("/settings", apiHandler.GetSettingsHandler)
		r.Put("/settings", apiHandler.UpdateSettingsHandler)
	})

	return r
}
