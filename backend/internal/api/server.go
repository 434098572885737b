// Package api serves the fractal graph over HTTP with gin.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fractal-graph/backend/internal/graph"
	"fractal-graph/backend/internal/metrics"
	"fractal-graph/backend/pkg/logger"
)

// Server holds the dependencies of the HTTP handlers
type Server struct {
	repo     *graph.Repository
	registry *metrics.Registry
	logger   *zap.Logger
}

// NewServer creates a server over repo. A nil registry disables /metrics.
func NewServer(repo *graph.Repository, registry *metrics.Registry) *Server {
	return &Server{
		repo:     repo,
		registry: registry,
		logger:   logger.Named("api"),
	}
}

// Router builds the gin engine with middleware and all routes
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(s.logger))
	router.Use(gin.Recovery())
	router.Use(cors())
	if s.registry != nil {
		router.Use(requestMetrics(s.registry.Metrics))
	}

	router.GET("/health", s.health)
	if s.registry != nil {
		router.GET("/metrics", gin.WrapH(s.registry.Handler()))
	}

	api := router.Group("/api")
	{
		api.GET("/fractals", s.getFractalByName)
		api.GET("/fractals/root", s.getRootFractal)
		api.POST("/fractals", s.createFractal)
		api.GET("/fractals/:id/:relation", s.getRelations)
		api.DELETE("/fractals/:id", s.deleteFractal)

		api.POST("/relations", s.addRelation)
		api.POST("/contexts", s.addContext)

		api.POST("/knowledge", s.addKnowledge)
		api.GET("/knowledge", s.queryKnowledge)
	}

	return router
}

func (s *Server) health(c *gin.Context) {
	if err := s.repo.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func requestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		m.ObserveHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status())
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
