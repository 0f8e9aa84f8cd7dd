package web

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter wires every endpoint. The handlers hold all state; the router is
// pure routing.
func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Request logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("REQUEST: %s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})

	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		// Model catalog
		r.Route("/models", func(r chi.Router) {
			r.Get("/", h.ListModels)
			r.Put("/", h.SaveModel)
			r.Get("/selected", h.GetSelectedModel)
			r.Get("/{id}", h.GetModel)
			r.Delete("/{id}", h.DeleteModel)
			r.Post("/{id}/select", h.SelectModel)
			r.Post("/{id}/prompts", h.AddPrompt)
			r.Post("/{id}/describe", h.DescribeModel)
			r.Post("/{id}/thumbnail", h.FindModelThumbnail)
		})

		r.Get("/tags", h.ListTags)

		// Combination recipes
		r.Route("/combinations", func(r chi.Router) {
			r.Get("/", h.ListCombinations)
			r.Post("/", h.SaveRecipe)
			r.Get("/{id}", h.GetCombination)
			r.Delete("/{id}", h.DeleteCombination)
		})

		// Import paths: bulk export scan and staged single-file
		r.Route("/import", func(r chi.Router) {
			r.Post("/invokeai", h.ImportInvokeAI)
			r.Post("/file", h.StageImport)
			r.Get("/staged", h.GetStaged)
			r.Post("/staged/confirm", h.ConfirmStaged)
			r.Delete("/staged", h.DiscardStaged)
		})

		// Prompt enrichment
		r.Post("/prompts/enhance", h.EnhancePrompt)

		// Cache-backed auxiliary data
		r.Get("/settings", h.GetPreferences)
		r.Put("/settings", h.PutPreferences)
		r.Get("/reference", h.GetReference)
		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.GetHistory)
			r.Post("/", h.AddHistory)
			r.Delete("/", h.ClearHistory)
		})

		// Session
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Put("/", h.PutSession)
			r.Delete("/", h.DeleteSession)
		})

		// Live state change stream
		r.Get("/events", h.GetEventStream)
	})

	return r
}
