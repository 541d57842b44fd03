package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"spatialization-module/internal/adapters/primary/http/handlers"
	"spatialization-module/internal/adapters/primary/http/middleware"
	"spatialization-module/internal/adapters/secondary/boundaries"
	"spatialization-module/internal/adapters/secondary/geotiff"
	"spatialization-module/internal/adapters/secondary/gonumsolver"
	"spatialization-module/internal/adapters/secondary/postgis"
	"spatialization-module/internal/adapters/secondary/projection"
	"spatialization-module/internal/config"
	"spatialization-module/internal/core/services"
	"spatialization-module/internal/logger"
	"spatialization-module/internal/metrics"
	"spatialization-module/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(cfg.Logger)

	shutdownTracing, err := tracing.Setup(context.Background(), cfg.Tracing)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	// Boundary database (Optional - based on config)
	var (
		pool *pgxpool.Pool
		db   handlers.Pinger
	)
	if cfg.Database.Enabled {
		pool, err = postgis.NewPool(context.Background(), cfg.Database)
		if err != nil {
			log.Fatalf("boundary database: %v", err)
		}
		defer pool.Close()
		db = pool
	} else {
		log.Info("PostGIS boundaries disabled")
	}

	// ============================================================================
	// Hexagonal Architecture Wiring
	// ============================================================================

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Secondary Adapters (Output Ports)
	fs := afero.NewOsFs()
	store := geotiff.NewStore(fs)
	resolver := boundaries.NewCachingResolver(boundaries.NewResolver(fs, pool))
	solver := gonumsolver.New()

	// Core Services (Application Layer)
	masker := services.NewRasterMaskService(fs, store, projection.NewReprojector(), m)
	pipeline := services.NewPipelineService(fs, resolver, masker, m)
	runSvc := services.NewRunService(pipeline)
	regionalSvc := services.NewRegionalFitService(solver, m)
	curveSvc := services.NewCurveFitService(solver, m)
	statsSvc := services.NewRasterStatsService(store)

	// Primary Adapter (HTTP Handlers)
	h := handlers.New(runSvc, regionalSvc, curveSvc, statsSvc, handlers.RunDefaults{
		Options:    cfg.Pipeline.RunOptions(),
		FlatSubdir: cfg.Pipeline.FlatSubdir,
	}, db)

	// Setup router
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(), gin.Recovery())

	api := router.Group("/api/v1/spatialization")
	h.RegisterRoutes(api)

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("server forced shutdown: %v", err)
	}
	if err := runSvc.Shutdown(ctx); err != nil {
		log.Warnf("runs still in progress at shutdown: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Warnf("flush traces: %v", err)
	}

	log.Info("server stopped")
}
