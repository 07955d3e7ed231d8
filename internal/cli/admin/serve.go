package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/api/handlers"
	"github.com/cloo-solutions/coursetutor/internal/chatmemory"
	"github.com/cloo-solutions/coursetutor/internal/config"
	"github.com/cloo-solutions/coursetutor/internal/database"
	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/extract"
	"github.com/cloo-solutions/coursetutor/internal/jobs"
	"github.com/cloo-solutions/coursetutor/internal/logger"
	"github.com/cloo-solutions/coursetutor/internal/metrics"
	"github.com/cloo-solutions/coursetutor/internal/openai"
	"github.com/cloo-solutions/coursetutor/internal/repository"
	"github.com/cloo-solutions/coursetutor/internal/server"
	"github.com/cloo-solutions/coursetutor/internal/service"
	"github.com/cloo-solutions/coursetutor/internal/storage"
	"github.com/cloo-solutions/coursetutor/internal/telemetry"
	"github.com/cloo-solutions/coursetutor/internal/vector"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	shutdownTimeout    = 30 * time.Second
	queryEmbeddingSize = 4096
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the course tutor API server and the background ingestion workers",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides TUTOR_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("memory-index", false, "Keep passages in process memory instead of pgvector")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	if !cfg.HasOpenAI() {
		return errors.New("TUTOR_OPENAI_API_KEY is required: ingestion and chat need embeddings and completions")
	}

	log, err := logger.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.HasSentry() {
		sampleRate := 0.1
		if cfg.SentryEnvironment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			Release:          "coursetutor@" + cmd.Root().Version,
			TracesSampleRate: sampleRate,
		}, log)
		if err != nil {
			log.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
		} else {
			defer shutdownTelemetry()
		}
	}

	db, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("connected to database")

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		if err := database.Migrate(cfg.DatabaseURL, cfg.MigrationsDir, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	m := metrics.New()

	courseRepo := repository.NewCourseRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gateLogRepo := repository.NewGateLogRepository(db)
	userRepo := repository.NewUserRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)
	txRunner := repository.NewTxRunner(db)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(userRepo, apiKeyRepo, uuidGen)
	if cfg.InitInstructor != "" {
		if err := bootstrapInstructor(ctx, cfg, authSvc, log); err != nil {
			return fmt.Errorf("failed to bootstrap instructor: %w", err)
		}
	}

	var (
		blobs  service.BlobStore
		signer handlers.URLSigner
	)
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Info("blob store ready", zap.String("backend", "s3"), zap.String("bucket", cfg.S3Bucket))
		blobs, signer = s3Client, s3Client
	} else {
		blobs = repository.NewPayloadRepository(db)
		log.Info("blob store ready", zap.String("backend", "postgres"))
	}

	ai := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ChatModel:           cfg.ChatModel,
	})
	queryEmbedder, err := service.NewCachedEmbedder(ai, queryEmbeddingSize)
	if err != nil {
		return err
	}

	var backend service.PassageBackend = repository.NewPassageRepository(db)
	if memIndex, _ := cmd.Flags().GetBool("memory-index"); memIndex {
		backend = vector.NewMemoryBackend()
		log.Warn("passages are kept in process memory and are lost on restart")
	}
	storeCfg := service.DefaultKnowledgeStoreConfig()
	storeCfg.RegistrySize = cfg.StoreRegistrySize
	store, err := service.NewKnowledgeStore(backend, ai, queryEmbedder, uuidGen, storeCfg, m, log)
	if err != nil {
		return err
	}

	var memory service.ChatMemory
	if cfg.HasRedis() {
		redisMemory, err := chatmemory.NewRedis(ctx, cfg.RedisURL, cfg.MemoryWindow, cfg.MemoryTTL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisMemory.Close()
		memory = redisMemory
		log.Info("chat memory ready", zap.String("backend", "redis"))
	} else {
		inProcess, err := chatmemory.NewInProcess(cfg.MemoryWindow, 0)
		if err != nil {
			return err
		}
		memory = inProcess
		log.Info("chat memory ready", zap.String("backend", "in-process"))
	}

	workers := jobs.NewPool(cfg.IngestWorkers, cfg.IngestQueueSize, m, log)
	ingestionSvc := service.NewIngestionService(
		courseRepo, documentRepo, blobs, extract.NewExtractor(), ai, store, workers,
		service.IngestionConfig{Chunk: service.DefaultChunkConfig(), StaleAfter: cfg.IngestStaleAfter},
		log,
	)
	if n, err := ingestionSvc.RecoverInterrupted(ctx); err != nil {
		log.Error("failed to recover interrupted ingestion", zap.Error(err))
	} else if n > 0 {
		log.Warn("marked interrupted documents failed", zap.Int("count", n))
		telemetry.CaptureMessage(ctx, fmt.Sprintf("marked %d interrupted documents failed", n))
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	sweeper := jobs.NewWorker(ingestionSvc, cfg.IngestSweepPeriod, log)
	go sweeper.Start(sweepCtx)

	access := service.NewCourseAccess(courseRepo, enrollmentRepo)
	courseSvc := service.NewCourseService(courseRepo, documentRepo, enrollmentRepo, store, blobs, log)
	enrollmentSvc := service.NewEnrollmentService(courseRepo, enrollmentRepo, log)
	documentSvc := service.NewDocumentService(courseRepo, access, documentRepo, store, blobs, txRunner, log)
	chatSvc := service.NewChatService(service.ChatDeps{
		Access:        access,
		Documents:     documentRepo,
		Conversations: conversationRepo,
		GateLogs:      gateLogRepo,
		Store:         store,
		Gate:          service.NewRelevanceGate(store, cfg.GateThreshold, m, log),
		Guard:         service.NewHomeworkGuard(store, ai, cfg.HomeworkThreshold, m, log),
		Memory:        memory,
		Completer:     ai,
		RetrievalK:    cfg.RetrievalK,
		UUIDGen:       uuidGen,
		Logger:        log,
	})
	quizSvc := service.NewQuizService(access, ai, log)
	reportSvc := service.NewReportService(courseRepo, gateLogRepo)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   authSvc,
		AuthHandler:     handlers.NewAuthHandler(authSvc),
		CourseHandler:   handlers.NewCourseHandler(courseSvc, enrollmentSvc, quizSvc, reportSvc),
		DocumentHandler: handlers.NewDocumentHandler(documentSvc, ingestionSvc, blobs, signer, cfg.MaxUploadBytes),
		ChatHandler:     handlers.NewChatHandler(chatSvc),
		Logger:          log,
		Metrics:         m,
		MaxBodyBytes:    cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	sweeper.Stop()
	// Ingestion tasks write to the database, so the pool drains before db.Close.
	if err := workers.Shutdown(shutdownCtx); err != nil {
		log.Error("ingestion pool did not drain", zap.Error(err))
	}

	log.Info("server exited")
	return nil
}

func bootstrapInstructor(ctx context.Context, cfg *config.Config, authSvc *service.AuthService, log *zap.Logger) error {
	if cfg.InitPassword == "" {
		return errors.New("TUTOR_INIT_PASSWORD is required with TUTOR_INIT_INSTRUCTOR")
	}
	user, created, err := authSvc.EnsureUser(ctx, cfg.InitInstructor, cfg.InitPassword, domain.UserRoleInstructor)
	if err != nil {
		return err
	}
	if created {
		log.Info("bootstrap: created instructor", zap.String("username", user.Username), zap.String("user_id", user.ID))
	} else {
		log.Info("bootstrap: instructor already exists", zap.String("username", user.Username))
	}
	return nil
}
