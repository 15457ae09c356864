package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"collab-playlist/internal/playlist"
	"collab-playlist/internal/realtime"
)

const maxBodyBytes = 16 << 10

// Options tunes the HTTP surface.
type Options struct {
	// RateLimitRPS caps mutating requests per client IP. Zero disables it.
	RateLimitRPS      int
	CORSAllowedOrigin string
	RequestTimeout    time.Duration
}

type Server struct {
	svc    *playlist.Service
	hub    *realtime.Hub
	stream *realtime.Server
	opts   Options
	log    *zap.Logger
}

func NewServer(svc *playlist.Service, hub *realtime.Hub, stream *realtime.Server, opts Options, log *zap.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		svc:    svc,
		hub:    hub,
		stream: stream,
		opts:   opts,
		log:    log.Named("api"),
	}
}

// Router serves every route both at the root and under /api.
func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}
	r.Use(corsMiddleware(s.opts.CORSAllowedOrigin))

	limit := rateLimitMiddleware(s.opts.RateLimitRPS)
	routes := func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Long-lived streams stay outside the request timeout.
		r.Get("/stream", s.stream.HandleSSE)
		r.Get("/ws", s.stream.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.opts.RequestTimeout))

			r.Get("/tracks", s.handleListTracks)
			r.Get("/playlist", s.handleListPlaylist)

			r.Group(func(r chi.Router) {
				r.Use(limit, bodySizeLimitMiddleware(maxBodyBytes))

				r.Post("/playlist", s.handleAddTrack)
				r.Patch("/playlist/{id}", s.handleUpdateItem)
				r.Post("/playlist/{id}/vote", s.handleVote)
				r.Delete("/playlist/{id}", s.handleRemove)
			})
		})
	}

	r.Route("/api", routes)
	routes(r)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"service":     "playlist-service",
		"subscribers": s.hub.Subscribers(),
	})
}
