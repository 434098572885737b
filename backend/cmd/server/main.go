package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fractal-graph/backend/internal/api"
	"fractal-graph/backend/internal/constants"
	"fractal-graph/backend/internal/graph"
	"fractal-graph/backend/internal/graphstore"
	"fractal-graph/backend/internal/metrics"
	"fractal-graph/backend/pkg/config"
	"fractal-graph/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting fractal graph API server...",
		zap.String("backend", cfg.GraphBackend),
		zap.String("env", cfg.Env),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	router, repo, err := setup(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize graph", zap.Error(err))
	}
	defer func() {
		if err := repo.Close(context.Background()); err != nil {
			log.Warn("Failed to close graph store", zap.Error(err))
		}
	}()

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeoutSeconds*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// setup opens the configured store, ensures the Root fractal exists and
// builds the router. The caller owns the returned repository.
func setup(ctx context.Context, cfg *config.Config) (*gin.Engine, *graph.Repository, error) {
	store, err := graphstore.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.GraphBackend, err)
	}

	var registry *metrics.Registry
	if cfg.MetricsEnabled {
		registry = metrics.NewRegistry()
		store = graphstore.WithMetrics(store, registry.Metrics)
	}

	repo := graph.NewRepository(store)
	if err := graph.Initialize(ctx, store, repo.Fractals); err != nil {
		_ = repo.Close(ctx)
		return nil, nil, err
	}
	if cfg.SeedExample {
		if err := graph.SeedExample(ctx, repo.Fractals); err != nil {
			_ = repo.Close(ctx)
			return nil, nil, err
		}
	}

	return api.NewServer(repo, registry).Router(), repo, nil
}
