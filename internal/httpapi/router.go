package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kestrelai/localrag"
)

// RouterConfig configures NewRouter's middleware chain.
type RouterConfig struct {
	APIKey      string // empty disables auth (development mode)
	CORSOrigins string // comma-separated; empty disables CORS
}

// NewRouter builds the full localrag HTTP surface over eng: recovery ->
// cors -> logging -> auth -> routes, matching the teacher's
// middleware-chain shape. Shared by cmd/server and cmd/localrag's serve
// subcommand so both binaries expose the identical API.
func NewRouter(eng *localrag.Engine, cfg RouterConfig) http.Handler {
	h := NewHandler(eng)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if origins := corsOriginList(cfg.CORSOrigins); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: false,
			MaxAge:           86400,
		}))
	}
	r.Use(requestLogMiddleware)

	r.Get("/health", h.handleHealth)

	// Authenticated by its own bearer JWT (spec §4.7), not the API-key
	// group below.
	r.Get("/ws", h.handleExtensionAttach)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(cfg.APIKey))

		r.Post("/ingest", h.handleIngest)
		r.Get("/documents", h.handleListDocuments)
		r.Delete("/documents/{id}", h.handleDeleteDocument)

		r.Post("/query", h.handleQuery)
		r.Post("/search", h.handleSearchWeb)

		r.Post("/conversations", h.handleCreateConversation)
		r.Get("/conversations", h.handleListConversations)
		r.Get("/conversations/{id}/messages", h.handleConversationMessages)

		r.Get("/settings/{key}", h.handleGetSetting)
		r.Put("/settings/{key}", h.handlePutSetting)
	})

	return r
}
