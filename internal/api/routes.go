package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mrwolf/journal-server/internal/ai"
	"github.com/mrwolf/journal-server/internal/catalog"
	"github.com/mrwolf/journal-server/internal/config"
	"github.com/mrwolf/journal-server/internal/db"
)

func NewRouter(cfg *config.Config, database *db.DB, cat *catalog.Catalog, gen ai.Generator) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)

	handlers := NewHandlers(cfg, database, cat, gen)

	// Conversation requests fan out to the model backend, so they get
	// a tighter budget than the rest of the API.
	aiLimiter := NewRateLimiter(10, time.Minute)

	// Public endpoints
	r.Get("/health", handlers.Health)

	// API v1 routes (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg))
		r.Use(JSONContentType)

		r.Post("/guided/questions", handlers.GuidedQuestions)
		r.Post("/entries/guided", handlers.CreateGuidedEntry)
		r.Post("/entries/quick", handlers.CreateQuickEntry)
		r.Get("/entries", handlers.ListEntries)
		r.Get("/entries/{id}", handlers.GetEntry)
		r.Delete("/entries/{id}", handlers.DeleteEntry)
		r.Get("/insights/mood", handlers.MoodInsights)

		r.With(RateLimitMiddleware(aiLimiter)).Post("/ai/conversation", handlers.Conversation)
	})

	return r
}
