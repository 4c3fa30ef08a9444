// Package api exposes the engine over HTTP: POST /ingest and POST /chat,
// the exact contract the browser client consumes, plus a health check.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dgallion1/ragserve/internal/engine"
)

// Server is the HTTP API server.
type Server struct {
	router         chi.Router
	ingestor       *engine.Ingestor
	chat           *engine.Orchestrator
	log            *slog.Logger
	maxUploadBytes int64
}

// Options configures the server.
type Options struct {
	MaxUploadBytes int64
	CORSOrigin     string
}

// NewServer creates and configures the HTTP server.
func NewServer(ingestor *engine.Ingestor, chat *engine.Orchestrator, log *slog.Logger, opts Options) *Server {
	s := &Server{
		ingestor:       ingestor,
		chat:           chat,
		log:            log,
		maxUploadBytes: opts.MaxUploadBytes,
	}
	s.setupRoutes(opts)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes(opts Options) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{opts.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/ingest", s.handleIngest)
	r.Post("/chat", s.handleChat)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
