package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/taskstream/backend/internal/api/graph"
	"github.com/taskstream/backend/internal/api/handlers"
	"github.com/taskstream/backend/internal/api/middleware"
	"github.com/taskstream/backend/internal/api/routes"
	"github.com/taskstream/backend/internal/domain/events"
	"github.com/taskstream/backend/internal/domain/task"
	"github.com/taskstream/backend/internal/infrastructure/store"
	"github.com/taskstream/backend/pkg/config"
	"github.com/taskstream/backend/pkg/logger"
	"github.com/taskstream/backend/pkg/security/auth"
)

// RequestLoggerMiddleware logs all incoming HTTP requests
func RequestLoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("Request completed",
			zap.String("path", path),
			zap.String("method", method),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("")
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.NewLogger(cfg.Logging.Level)
	defer log.Sync()

	log.Info("Configuration loaded successfully")
	log.Info("Server mode: " + cfg.Server.Mode)

	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggerMiddleware(log))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins:  len(cfg.CORS.AllowedOrigins) == 0,
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	db, err := store.Open(cfg)
	if err != nil {
		log.Fatal("Failed to open task store", zap.Error(err))
	}

	taskRepo := task.NewRepository(db)
	bus := events.NewBus(cfg.Events.SubscriberBuffer, log.Logger)
	taskService := task.NewService(taskRepo, bus, log.Logger)

	keySource := auth.NewKeySource(cfg.Auth.KeyEndpoints, cfg.Auth.KeyFetchTimeout, log)
	verifier := auth.NewVerifier(keySource, log)

	// Fetch the signing key before the first request needs it; failures
	// are retried lazily on demand.
	go verifier.WarmUp(context.Background())

	// Optional periodic key refresh for identity-service key rotation.
	var keyRefresher *cron.Cron
	if cfg.Auth.KeyRefreshCron != "" {
		keyRefresher = cron.New()
		_, err := keyRefresher.AddFunc(cfg.Auth.KeyRefreshCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Auth.KeyFetchTimeout)
			defer cancel()
			if err := verifier.Refresh(ctx); err != nil {
				log.Warn("Scheduled key refresh failed", zap.Error(err))
			}
		})
		if err != nil {
			log.Fatal("Invalid key refresh cron expression",
				zap.String("cron", cfg.Auth.KeyRefreshCron),
				zap.Error(err))
		}
		keyRefresher.Start()
		defer keyRefresher.Stop()
		log.Info("Key refresh schedule active", zap.String("cron", cfg.Auth.KeyRefreshCron))
	}

	schema, err := graph.NewSchema(taskService, bus, log)
	if err != nil {
		log.Fatal("Failed to build GraphQL schema", zap.Error(err))
	}

	identityMiddleware := middleware.Identity(verifier, cfg.Auth.TrustedHeaderAuth, log)

	graphqlHandler := handlers.NewGraphQLHandler(schema, log)
	subscriptionHandler := handlers.NewSubscriptionHandler(schema, log)

	graphqlRoutes := routes.NewGraphQLRoutes(graphqlHandler, subscriptionHandler)
	graphqlRoutes.RegisterRoutes(router, identityMiddleware)
	log.Info("Registered GraphQL routes at /graphql and /graphql/ws")

	routes.SetupHealthRoutes(router, taskService)
	log.Info("Registered health check route at /health")

	// No read/write timeouts on the server itself, the websocket endpoint
	// holds connections open; the subscription handler enforces its own
	// deadlines.
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info(fmt.Sprintf("Server starting on port %d", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	log.Info("Shutting down server...")
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited properly")
}
