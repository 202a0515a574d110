package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/parley-labs/parley/internal/api"
	"github.com/parley-labs/parley/internal/api/handlers"
	"github.com/parley-labs/parley/internal/api/middleware"
)

type RouterConfig struct {
	AuthValidator  middleware.AuthValidator
	PersonaHandler *handlers.PersonaHandler
	ChatHandler    *handlers.ChatHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if cfg.AuthValidator != nil {
			r.Use(middleware.BearerAuth(cfg.AuthValidator))
		}

		r.Route("/personas", func(r chi.Router) {
			r.Post("/", cfg.PersonaHandler.Create)
			r.Get("/", cfg.PersonaHandler.List)
			r.Get("/{id}", cfg.PersonaHandler.Get)
			r.Put("/{id}", cfg.PersonaHandler.Update)
			r.Delete("/{id}", cfg.PersonaHandler.Delete)

			r.Post("/{id}/chat", cfg.ChatHandler.Send)
			r.Get("/{id}/messages", cfg.ChatHandler.History)
		})
	})

	return r
}
