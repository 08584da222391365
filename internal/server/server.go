package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/opencampus/trail/internal/api/ws"
	"github.com/opencampus/trail/internal/config"
	"github.com/opencampus/trail/internal/query"
	"github.com/opencampus/trail/internal/server/middleware"
	redisstore "github.com/opencampus/trail/internal/store/redis"
)

// Server is the operator-facing HTTP surface of the audit trail: search,
// export and the live feed. Capture has no HTTP surface of its own; producers
// call the capture package in-process.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	engine     *query.Engine
	wsHub      *ws.Hub // nil when Redis is not configured
	cfg        *config.Config
}

// New creates a Server with all routes wired. pubsub may be nil; the live
// feed route then answers 501 and everything else works unchanged.
func New(ctx context.Context, cfg *config.Config, engine *query.Engine, pubsub *redisstore.PubSub) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		engine: engine,
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	if pubsub != nil {
		s.wsHub = ws.NewHub(pubsub)
	}

	// Operator API: admin-only, rate limited per IP.
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT.Secret))
		r.Use(middleware.RequireAdmin())
		r.Use(middleware.RateLimitByIP(ctx, 20, 40))

		apiConfig := huma.DefaultConfig("Trail Audit API", "1.0.0")
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)
		registerAPIRoutes(api, r, engine)
	})

	// WebSocket live feed.
	router.Route("/ws", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT.Secret))
		r.Use(middleware.RequireAdmin())
		if s.wsHub != nil {
			registerWSRoutes(r, s.wsHub)
		} else {
			r.Get("/audit/feed", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotImplemented)
			})
		}
	})

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus scrape endpoint.
	router.Handle("/metrics", promhttp.Handler())

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
