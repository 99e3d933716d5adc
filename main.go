package main

import (
	"context"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/installations-scheduling-api/config"
	"github.com/kendall-kelly/installations-scheduling-api/controllers"
	"github.com/kendall-kelly/installations-scheduling-api/logger"
	"github.com/kendall-kelly/installations-scheduling-api/middleware"
	"github.com/kendall-kelly/installations-scheduling-api/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// placementLockTTL bounds how long one capacity reservation may hold a slot lock
const placementLockTTL = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger("info").Fatal("Failed to load configuration", "error", err)
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	log.Info("Starting Installations Scheduling API server...", "env", cfg.GoEnv)

	ctx := context.Background()

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := config.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database", "error", err)
	}
	log.Info("Database migration completed successfully")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics("installations", registry)

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize blob storage", "provider", cfg.StorageProvider, "error", err)
	}

	schedulerOpts := []services.SchedulerOption{
		services.WithSchedulerMetrics(metrics),
		services.WithMaxProbeDays(cfg.MaxProbeDays),
	}
	var sequence services.Sequence
	if cfg.RedisAddress != "" {
		rdb, err := config.ConnectRedis(ctx, cfg.RedisAddress)
		if err != nil {
			log.Fatal("Failed to connect to redis", "error", err)
		}
		defer func() { _ = rdb.Close() }()
		schedulerOpts = append(schedulerOpts, services.WithPlacementLocker(
			services.NewRedisPlacementLocker(config.NewLocker(rdb), placementLockTTL, log)))
		sequence = services.NewRedisSequence(rdb, services.OrderCountSeed(db))
	}

	var events services.EventLog
	if cfg.MongoURI != "" {
		client, err := config.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatal("Failed to connect to mongodb", "error", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		events, err = services.NewMongoEventLog(ctx, client.Database(cfg.MongoDatabase))
		if err != nil {
			log.Fatal("Failed to prepare the transition log", "error", err)
		}
	}

	var publisher services.Publisher
	if cfg.PubSubProjectID != "" && cfg.PubSubTopic != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			log.Fatal("Failed to create pubsub client", "error", err)
		}
		defer func() { _ = client.Close() }()
		p := services.NewPubSubPublisher(client, cfg.PubSubTopic, log)
		defer p.Stop()
		publisher = p
	}

	scheduler := services.NewCapacityScheduler(db, log, cfg.StoreTimeout, schedulerOpts...)
	directory := services.NewDirectoryCache(db, cfg.StoreTimeout)
	if err := directory.Load(ctx); err != nil {
		log.Warn("Directory preload failed; lookups will retry", "error", err)
	}

	handlers := controllers.NewHandlers(services.Dependencies{
		DB:          db,
		Directory:   directory,
		Scheduler:   scheduler,
		Sequence:    sequence,
		Blobs:       blobs,
		Events:      events,
		Metrics:     metrics,
		Log:         log,
		Timeout:     cfg.StoreTimeout,
		Concurrency: cfg.BatchConcurrency,
	}, services.NotificationConfig{
		CountryCode:     cfg.CountryCode,
		DeepLinkBaseURL: cfg.DeepLinkBaseURL,
		ChatLinkBaseURL: cfg.ChatLinkBaseURL,
	}, publisher)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(cfg, db, handlers, registry, log)

	// Start server
	port := ":" + cfg.Port
	log.Info("Server is running", "address", "http://localhost"+port)
	if err := router.Run(port); err != nil {
		log.Fatal("Failed to start server", "error", err)
	}
}

// newBlobStore picks the attachment and evidence image backend
func newBlobStore(ctx context.Context, cfg *config.Config) (services.BlobStore, error) {
	switch cfg.StorageProvider {
	case "gcs":
		return services.NewGCSBlobStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsJSON)
	case "memory":
		return services.NewMockBlobStore(), nil
	default:
		return services.NewS3BlobStore(ctx, cfg.AWSRegion, cfg.AWSS3Bucket, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	}
}

// setupRouter wires middleware and routes. Without an identity provider the
// operator comes from the X-Operator-ID header and deletion is unguarded.
func setupRouter(cfg *config.Config, db *gorm.DB, h *controllers.Handlers, registry *prometheus.Registry, log logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(log), middleware.RequestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.DeepLinkBaseURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.OperatorHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Database status endpoint
		v1.GET("/database/status", databaseStatus(db))
	}

	api := v1.Group("")
	var deleteGuard []gin.HandlerFunc
	if cfg.AuthEnabled() {
		api.Use(middleware.EnsureValidToken(cfg, log))
		deleteGuard = append(deleteGuard, middleware.RequireScope(middleware.ScopeDeleteOrders))
	} else {
		log.Warn("Token validation disabled; trusting the operator header")
		api.Use(middleware.TrustOperatorHeader())
	}
	controllers.RegisterRoutes(api, h, deleteGuard...)

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Installations Scheduling API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get the underlying SQL database to check connection
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to get database instance",
				},
			})
			return
		}

		// Ping the database to verify connection
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_CONNECTION_ERROR",
					"message": "Database connection failed",
				},
			})
			return
		}

		tables, err := db.Migrator().GetTables()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_QUERY_ERROR",
					"message": "Failed to query tables",
				},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Database connected",
			"tables":  tables,
		})
	}
}
