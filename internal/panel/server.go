// Package panel exposes the engine over HTTP: a JSON API for spawning and
// collapsing nodes, jq-filtered history queries, scene loading, and an SSE
// stream of engine events for live visualizers.
package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/nodefold/nodefold/internal/engine"
	"github.com/nodefold/nodefold/internal/query"
	"github.com/nodefold/nodefold/internal/store"
	"github.com/nodefold/nodefold/internal/streaming"
	"github.com/nodefold/nodefold/internal/validation"
)

// Deps holds the dependencies for the panel server. Store is optional; the
// persisted-event endpoints return 503 without one.
type Deps struct {
	Engine    *engine.Engine
	Hub       streaming.EventHub
	Query     *query.Runner
	Validator *validation.SceneValidator
	Store     store.Store
	Logger    *slog.Logger
}

// Server serves the panel API.
type Server struct {
	deps Deps
}

// NewServer creates a panel Server, filling optional dependencies.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Hub == nil && deps.Engine != nil {
		deps.Hub = deps.Engine.Hub()
	}
	if deps.Query == nil {
		deps.Query = query.NewRunner()
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Read surfaces.
	mux.HandleFunc("GET /api/nodes", s.handleNodes)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	// Mutations.
	mux.HandleFunc("POST /api/spawn", s.handleSpawn)
	mux.HandleFunc("POST /api/collapse", s.handleCollapse)
	mux.HandleFunc("POST /api/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/scene", s.handleScene)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/batches/{id}", s.handleSSEBatch)

	return mux
}
