package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/comercialav/services/deliveries/api/handlers"
	"example.com/comercialav/services/deliveries/api/middleware"
	"example.com/comercialav/services/deliveries/api/routes"
	"example.com/comercialav/services/deliveries/config"
	"example.com/comercialav/services/deliveries/internal/commands"
	"example.com/comercialav/services/deliveries/internal/identity"
	"example.com/comercialav/services/deliveries/internal/metrics"
	"example.com/comercialav/services/deliveries/internal/photos"
	"example.com/comercialav/services/deliveries/internal/search"
	"example.com/comercialav/services/deliveries/internal/syncengine"
	"example.com/comercialav/services/deliveries/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	router     *gin.Engine
	config     config.Config
	httpServer *http.Server
}

// Dependencies carries everything the server mounts
type Dependencies struct {
	Identity identity.Provider
	Engine   *syncengine.Engine
	Commands *commands.Service
	Photos   *photos.Service
	Elastic  *search.ElasticClient
	Tracer   tracing.Tracer
	Metrics  *metrics.Metrics
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, deps Dependencies) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	if cfg.CorsEnabled {
		router.Use(middleware.CORS())
	}
	if app := deps.Tracer.Application(); app != nil {
		router.Use(middleware.NewRelicMiddleware(app))
	}

	routes.SetupRoutes(router, deps.Identity, routes.Handlers{
		Deliveries: handlers.NewDeliveryHandler(deps.Engine, deps.Commands, deps.Tracer, deps.Metrics),
		Photos:     handlers.NewPhotoHandler(deps.Photos),
		History:    handlers.NewHistoryHandler(deps.Elastic),
		Metrics:    handlers.NewMetricsHandler(deps.Metrics),
	})

	return &Server{
		router: router,
		config: cfg,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress,
			Handler:      router,
			ReadTimeout:  cfg.ServerTimeout,
			WriteTimeout: cfg.ServerTimeout,
		},
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
