// Package server exposes path search and relation scoring over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/driver"
	"github.com/soundprediction/kgpath/pkg/metrics"
	"github.com/soundprediction/kgpath/pkg/search"
	"github.com/soundprediction/kgpath/pkg/server/handlers"
	"github.com/soundprediction/kgpath/pkg/types"
	"github.com/soundprediction/kgpath/pkg/utils"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Dependencies are the services the server routes to. Any of them may be
// nil; the matching endpoints then answer 501 or report unhealthy.
type Dependencies struct {
	Graph   driver.GraphDriver
	Loader  driver.Loader
	Finder  search.PathFinder
	Scorer  handlers.Scorer
	Metrics http.Handler

	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	config *config.Config
	deps   Dependencies
	router *gin.Engine
	server *http.Server
	logger *slog.Logger
}

// New creates a new server instance
func New(cfg *config.Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deps.Recorder = metrics.OrNoop(deps.Recorder)
	return &Server{config: cfg, deps: deps, logger: logger}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	if s.config.Server.Mode != "" {
		gin.SetMode(s.config.Server.Mode)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(contextMiddleware())
	s.router.Use(loggingMiddleware(s.logger, s.deps.Recorder))
	s.router.Use(corsMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the configured router. Setup must have been called.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.server.Addr }

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Graph, s.deps.Scorer)
	scoreHandler := handlers.NewScoreHandler(s.deps.Scorer, s.logger)
	pathsHandler := handlers.NewPathsHandler(s.deps.Finder, s.config.Search.MaxPath, s.config.Runner.SampleTimeout, s.logger)
	ingestHandler := handlers.NewIngestHandler(s.deps.Loader, s.logger)

	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck)
	s.router.GET("/health/detailed", healthHandler.DetailedHealthCheck)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/score", scoreHandler.Score)
		v1.POST("/score/batch", scoreHandler.ScoreBatch)
		v1.POST("/paths", pathsHandler.FindPaths)
		v1.POST("/ingest/triples", ingestHandler.AddTriples)
	}
}

// Start starts the server
func (s *Server) Start() error {
	s.logger.Info("Starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping server")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+RequestIDHeader)
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// contextMiddleware attaches a request id to the request context and the
// response.
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = utils.GenerateUUID()
		}
		c.Header(RequestIDHeader, id)
		ctx := context.WithValue(c.Request.Context(), types.RequestIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func loggingMiddleware(logger *slog.Logger, recorder metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		took := time.Since(start)
		status := c.Writer.Status()
		recorder.ObserveHTTPRequest(route, status, took.Seconds())

		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "HTTP request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", took,
			"request_id", c.Writer.Header().Get(RequestIDHeader))
	}
}
