package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docoutline/internal/cache"
	"github.com/dgallion1/docoutline/internal/config"
	"github.com/dgallion1/docoutline/internal/marker"
	"github.com/dgallion1/docoutline/internal/pathstore"
	"github.com/dgallion1/docoutline/internal/pipeline"
	"github.com/dgallion1/docoutline/internal/stats"
)

// DocumentStore is the part of the pathstore client used to manage stored
// documents.
type DocumentStore interface {
	GetNode(ctx context.Context, key string) (*pathstore.NodeResponse, error)
	DeleteNode(ctx context.Context, key string, recursive bool) error
	ListChildren(ctx context.Context, key string, limit int) ([]pathstore.ListChildrenResponse, error)
}

// Deps are the collaborators the server routes to. Orchestrator and
// Documents are nil when ingest is disabled.
type Deps struct {
	Catalogs     *marker.Registry
	Cache        cache.Cache
	Stats        *stats.ParseStats
	Orchestrator *pipeline.Orchestrator
	Documents    DocumentStore
}

// Server is the HTTP API server for docoutline.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	if deps.Catalogs == nil {
		deps.Catalogs = marker.NewRegistry()
	}
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/api/catalogs", s.handleCatalogs)
		r.Post("/api/parse", s.handleParse)
		r.Post("/api/chunks", s.handleChunks)
		r.Post("/api/analyze", s.handleAnalyze)
		r.Get("/api/stats/parse", s.handleParseStats)

		r.Group(func(r chi.Router) {
			r.Use(s.requireIngest)

			r.Post("/api/ingest", s.handleIngest)
			r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)
			r.Post("/api/ingest/batch", s.handleBatchIngest)

			r.Get("/api/documents", s.handleListDocuments)
			r.Delete("/api/documents/{docID}", s.handleDeleteDocument)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ingest": s.deps.Orchestrator != nil,
	})
}

// requireIngest rejects ingest routes when no pathstore is configured.
func (s *Server) requireIngest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Orchestrator == nil || s.deps.Documents == nil {
			jsonError(w, "ingest is disabled: PATHSTORE_URL is not set", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}
