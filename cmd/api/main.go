package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/config"
	"github.com/noah-isme/autograde-api/internal/database"
	"github.com/noah-isme/autograde-api/internal/events"
	"github.com/noah-isme/autograde-api/internal/extractor"
	"github.com/noah-isme/autograde-api/internal/grading"
	"github.com/noah-isme/autograde-api/internal/handler"
	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/repository"
	"github.com/noah-isme/autograde-api/internal/router"
	"github.com/noah-isme/autograde-api/internal/segmenter"
	"github.com/noah-isme/autograde-api/internal/service"
	"github.com/noah-isme/autograde-api/internal/similarity"
	"github.com/noah-isme/autograde-api/internal/worker"
	"github.com/noah-isme/autograde-api/pkg/ai"
	cloud "github.com/noah-isme/autograde-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.DefaultPoolOptions())
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to access database pool: %v", err)
	}
	probes := map[string]handler.Probe{"database": sqlDB.PingContext}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, 3*time.Second)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		probes["redis"] = func(ctx context.Context) error {
			return database.Ping(ctx, redisClient, 0)
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return fmt.Errorf("nats connection %s", natsConn.Status())
			}
			return nil
		}
	}

	var archive service.DocumentArchive
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if cloudCfg.Enabled() {
		documentArchive, err := cloud.New(cloudCfg, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		archive = documentArchive
	} else {
		logger.Warn().Msg("cloudinary not configured, raw documents will not be archived")
	}

	embedder, err := buildEmbedder(cfg, redisClient, logger)
	if err != nil {
		log.Fatalf("failed to build embedder: %v", err)
	}

	seg, err := segmenter.New(cfg.Grammar())
	if err != nil {
		log.Fatalf("invalid segmenter grammar: %v", err)
	}
	gradeEngine, err := grading.NewEngine(cfg.Weights())
	if err != nil {
		log.Fatalf("invalid grading weights: %v", err)
	}
	simEngine, err := similarity.NewEngine(embedder, cfg.Thresholds(), logger)
	if err != nil {
		log.Fatalf("invalid similarity thresholds: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	publisher := events.NewNATSPublisher(natsConn, logger)

	examRepo := repository.NewExamRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	flagRepo := repository.NewSimilarityFlagRepository(db)
	documentRepo := repository.NewSourceDocumentRepository(db)

	examService := service.NewExamService(examRepo, validate, logger)
	similarityService := service.NewSimilarityService(examRepo, submissionRepo, flagRepo, simEngine, publisher, validate, cfg.SimilarityTimeout, logger)
	trigger := service.NewSimilarityTrigger(cfg.SimilarityMode, similarityService, publisher, logger)
	gradingService := service.NewGradingService(submissionRepo, examRepo, gradeEngine, trigger, publisher, logger)
	ingestionService := service.NewIngestionService(
		examRepo, submissionRepo, documentRepo,
		extractor.New(extractor.DefaultRegistry()), seg,
		gradingService, archive, validate,
		service.IngestionConfig{ExtractionTimeout: cfg.ExtractionTimeout, MaxUploadBytes: cfg.UploadMaxBytes()},
		logger,
	)
	submissionService := service.NewSubmissionService(submissionRepo, validate, logger)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if cfg.SimilarityMode == config.SimilarityModeDeferred {
		similarityWorker := worker.NewSimilarityWorker(natsConn, similarityService, cfg.SimilarityTimeout, logger)
		if err := similarityWorker.Start(workerCtx); err != nil {
			log.Fatalf("failed to start similarity worker: %v", err)
		}
	}

	uploadLimiter := middleware.RateLimit("uploads", cfg.UploadRateLimit, cfg.UploadRateWindow)
	examHandler := handler.NewExamHandler(examService, ingestionService, validate, logger).WithUploadLimiter(uploadLimiter)
	submissionHandler := handler.NewSubmissionHandler(examService, submissionService, ingestionService, gradingService, logger).WithUploadLimiter(uploadLimiter)
	similarityHandler := handler.NewSimilarityHandler(examService, similarityService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes()) + 1<<20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		ExamHandler:       examHandler,
		SubmissionHandler: submissionHandler,
		SimilarityHandler: similarityHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		HealthProbes:      probes,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopWorker)
}

func buildEmbedder(cfg config.Config, redisClient *redis.Client, logger zerolog.Logger) (ai.Embedder, error) {
	var base ai.Embedder
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		embedder, err := ai.NewOpenAIEmbedder(ai.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			Dimensions: cfg.EmbeddingDimensions,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		base = embedder
	default:
		embedder, err := ai.NewHashingEmbedder(cfg.EmbeddingDimensions)
		if err != nil {
			return nil, err
		}
		base = embedder
	}

	if redisClient != nil {
		base = ai.NewCachedEmbedder(base, redisClient, cfg.EmbeddingCacheTTL, logger)
	}

	return ai.WithTimeout(base, cfg.EmbeddingTimeout), nil
}

func waitForShutdown(app *fiber.App, stopWorkers context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
