package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/petabersih/petabersih/config"
	"github.com/petabersih/petabersih/internal/agent"
	"github.com/petabersih/petabersih/internal/api/handlers"
	"github.com/petabersih/petabersih/internal/api/middleware"
	"github.com/petabersih/petabersih/internal/api/routes"
	"github.com/petabersih/petabersih/internal/cache"
	"github.com/petabersih/petabersih/internal/logger"
	"github.com/petabersih/petabersih/internal/providers/embedding"
	"github.com/petabersih/petabersih/internal/providers/grading"
	"github.com/petabersih/petabersih/internal/providers/live"
	mongorepo "github.com/petabersih/petabersih/internal/repositories/mongo"
	pgrepo "github.com/petabersih/petabersih/internal/repositories/postgres"
	"github.com/petabersih/petabersih/internal/services"
	"github.com/petabersih/petabersih/internal/storage"
	"github.com/petabersih/petabersih/internal/workers"
)

func main() {
	_ = godotenv.Load()

	l := logger.New()
	ctx := context.Background()

	// Init MongoDB
	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	l.Info("MongoDB connected")

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	l.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	l.Info("Redis connected")

	mongoDBName := os.Getenv("MONGO_DB")
	if mongoDBName == "" {
		mongoDBName = "petabersih"
	}
	mongoDB := config.MongoClient.Database(mongoDBName)

	// Repositories
	locationRepo := pgrepo.NewLocationRepo(config.PostgresDB)
	reportRepo := pgrepo.NewReportRepo(config.PostgresDB)
	chatRepo := mongorepo.NewChatRepo(mongoDB)
	sessionLogRepo := mongorepo.NewSessionLogRepo(mongoDB)

	// Providers
	uploader, err := storage.NewGCSUploader(ctx, os.Getenv("GCS_BUCKET"))
	if err != nil {
		log.Fatalf("GCS init error: %v", err)
	}

	projectID := os.Getenv("GCP_PROJECT_ID")
	gcpLocation := os.Getenv("GCP_LOCATION")
	if gcpLocation == "" {
		gcpLocation = "us-central1"
	}

	grader, err := grading.NewVertexGemini(ctx, projectID, gcpLocation, os.Getenv("GRADING_MODEL"))
	if err != nil {
		log.Fatalf("Vertex grading init error: %v", err)
	}

	var embedder embedding.Provider
	if os.Getenv("EMBEDDING_DISABLED") != "true" {
		embedder, err = embedding.NewVertexEmbedding(ctx, projectID, gcpLocation, os.Getenv("EMBEDDING_MODEL"))
		if err != nil {
			log.Fatalf("Vertex embedding init error: %v", err)
		}
	}

	dialer, err := live.NewGeminiDialer(os.Getenv("GEMINI_API_KEY"), os.Getenv("GEMINI_LIVE_MODEL"), l)
	if err != nil {
		log.Fatalf("Gemini live init error: %v", err)
	}

	// Services
	redisCache := cache.NewRedisCache(config.RedisClient)
	locationSvc := services.NewLocationService(locationRepo, embedder, redisCache)
	reportSvc := services.NewReportService(reportRepo, locationRepo, uploader, config.RedisClient)
	chatSvc := services.NewChatService(chatRepo)
	sessionLogSvc := services.NewSessionLogService(sessionLogRepo, 0)

	// Agent bridge
	pending := agent.NewPendingRequests()
	manager := &agent.Manager{
		Dialer:    dialer,
		Locations: services.NewAgentFinder(locationSvc),
		Log:       l,
	}

	// Grading workers
	pool := &workers.GradingWorkerPool{
		Redis:     config.RedisClient,
		Reports:   reportRepo,
		Locations: locationRepo,
		Grader:    grader,
		Embedder:  embedder,
		Logger:    l,
	}
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("grading worker init error: %v", err)
	}

	// HTTP server
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(l))

	routes.RegisterRoutes(r, routes.Deps{
		Agent:    handlers.NewAgentHandler(manager, pending, sessionLogSvc, l),
		Report:   handlers.NewReportHandler(reportSvc),
		Location: handlers.NewLocationHandler(locationSvc),
		Chat:     handlers.NewChatHandler(chatSvc),
		WS:       handlers.NewWSHandler(reportSvc, config.RedisClient),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	l.WithField("port", port).Info("starting server")
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
