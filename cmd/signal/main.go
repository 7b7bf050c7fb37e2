package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campuschat/internal/core/services"
	httphandlers "campuschat/internal/handlers/http"
	"campuschat/internal/infrastructure/middleware"
	"campuschat/internal/infrastructure/monitoring"
	"campuschat/internal/infrastructure/repositories"
	signalinfra "campuschat/internal/infrastructure/signal"
	"campuschat/pkg/config"
	"campuschat/pkg/logger"
	"campuschat/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/campuschat/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Distributed tracing (optional)
	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(tracing.Config{
			Enabled:     true,
			ServiceName: "campuschat-signal",
			JaegerURL:   cfg.Tracing.JaegerURL,
			Environment: cfg.Tracing.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			log.Fatalw("failed to initialize tracing", "error", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Errorw("error shutting down tracer provider", "error", err)
			}
		}()
	}

	// Initialize repository factory (Redis when enabled, memory otherwise)
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	userRepo := repoFactory.CreateUserRepository()
	presenceRepo := repoFactory.CreatePresenceRepository()

	// Initialize services
	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL.Std(),
		cfg.Auth.DefaultAvatar,
		userRepo,
	)

	// Initialize monitoring
	collector := monitoring.NewCollector(prometheus.DefaultRegisterer)

	// Initialize presence registry
	registryOpts := signalinfra.Options{
		PingInterval: cfg.Signal.PingInterval.Std(),
		WriteTimeout: cfg.Signal.WriteTimeout.Std(),
	}
	if cfg.RateLimiting.Enabled {
		registryOpts.MessageRate = cfg.RateLimiting.WebSocket.MessagesPerSecond
		registryOpts.MessageBurst = cfg.RateLimiting.WebSocket.Burst
	}
	registry := signalinfra.NewRegistry(authService, presenceRepo, collector, log, registryOpts)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go registry.Run(sweepCtx)

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService)
	usersHandler := httphandlers.NewUsersHandler(registry)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.ErrorHandlerMiddleware(logger.NewContextLogger(zapLogger)))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	// Public auth routes
	authHandler.SetupRoutes(router)

	// Authenticated API routes
	usersHandler.SetupRoutes(router, middleware.AuthMiddleware(authService))

	// WebSocket endpoint; authentication happens inside the registry via
	// the token query parameter.
	router.GET(cfg.Signal.Path, gin.WrapF(registry.HandleWebSocket))

	// Health check endpoint
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("repositories", repoFactory.HealthCheck, 2*time.Second)

	router.GET("/health", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":      status,
			"uptime":      time.Since(startTime).String(),
			"connections": registry.ConnectionCount(),
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout.Std(),
		// WriteTimeout is left unset: it would tear down long-lived
		// WebSocket connections served through the same listener.
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting campuschat signaling server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down campuschat signaling server...")

	sweepCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("campuschat signaling server stopped")
}
