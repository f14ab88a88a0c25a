// Package server exposes the streaming proxy over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zero5yt/StreamixBot2.0/pkg/chunk"
	"github.com/zero5yt/StreamixBot2.0/pkg/linkstore"
	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/metrics"
	"github.com/zero5yt/StreamixBot2.0/pkg/pool"
	"github.com/zero5yt/StreamixBot2.0/pkg/stream"
)

type Server struct {
	httpServer *http.Server
	router     chi.Router
	pool       *pool.Pool
	links      linkstore.Store
	streamer   *stream.Streamer
	opts       *Options
}

type Options struct {
	Address string
	// BaseURL prefixes generated download links, without a trailing slash.
	BaseURL   string
	ChunkSize int64
}

func New(p *pool.Pool, links linkstore.Store, streamer *stream.Streamer, opts *Options) *Server {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunk.DefaultSize
	}
	s := &Server{
		pool:     p,
		links:    links,
		streamer: streamer,
		opts:     opts,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              opts.Address,
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// streams last as long as the player keeps reading
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)

	r.Get("/", s.handleHealth)
	r.Get("/dl/{messageId}/{fileName}", s.handleDownload)
	r.Get("/show/{uniqueId}", s.handleShow)
	r.Get("/api/file/{uniqueId}", s.handleFileInfo)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	logger := logging.GetLogger()
	logger.Info().Str("address", s.opts.Address).Msg("Listening on")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Message: "Server is healthy and running!"})
}
