package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/camden-git/framesys/ai"
	"github.com/camden-git/framesys/config"
	"github.com/camden-git/framesys/database"
	"github.com/camden-git/framesys/enhance"
	"github.com/camden-git/framesys/export"
	"github.com/camden-git/framesys/framestore"
	"github.com/camden-git/framesys/handlers"
	"github.com/camden-git/framesys/media"
	"github.com/camden-git/framesys/pipeline"
	"github.com/camden-git/framesys/realtime"
	"github.com/camden-git/framesys/repository"
	"github.com/camden-git/framesys/session"
	"github.com/camden-git/framesys/workers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: "15:04:05",
	}))
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file loaded", "error", envErr)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	stagingPath := filepath.Join(cfg.MediaStoragePath, "staging")
	storagePaths := []string{cfg.ThumbnailsPath, cfg.ArchivesPath, stagingPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		logger.Debug("ensuring storage directory exists", "path", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory %s: %w", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	if err := database.AutoMigrateModels(db, logger); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	defer sqlDB.Close()

	archiveSubDir := filepath.Base(cfg.ArchivesPath)
	mediaStore, err := media.NewLocalStorage(cfg.MediaStoragePath, map[media.AssetType]string{
		media.AssetTypeThumbnail: filepath.Base(cfg.ThumbnailsPath),
		media.AssetTypeArchive:   archiveSubDir,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media store: %w", err)
	}
	processor := media.NewProcessor(mediaStore, media.ImageProcessingOptions{
		MaxDimension: cfg.FrameMaxDimension,
		Quality:      cfg.FrameJPEGQuality,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providerCfg := ai.ProviderConfig{
		FunctionsURL:  cfg.FunctionsURL,
		FunctionsKey:  cfg.FunctionsKey,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiBaseURL: cfg.GeminiBaseURL,
		Ollama: ai.OllamaOptions{
			BaseURL: cfg.OllamaBaseURL,
			Port:    cfg.OllamaPort,
			Model:   cfg.OllamaModel,
		},
	}
	analysisProvider, err := ai.NewAnalysisProvider(cfg.AnalysisProvider, providerCfg, logger)
	if err != nil {
		return err
	}
	enhancementProvider, err := ai.NewEnhancementProvider(cfg.EnhancementProvider, providerCfg)
	if err != nil {
		return err
	}
	retry := ai.DefaultRetryPolicy(logger)
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialDelay = cfg.RetryInitialDelay
	logger.Info("ai providers configured",
		"analysis", analysisProvider.Name(),
		"enhancement", enhancementProvider.Name(),
		"retry_attempts", retry.MaxAttempts)

	hub := realtime.NewHub(logger)
	go hub.Run()

	projectRepo := repository.NewProjectRepository(db)
	frameRepo := repository.NewFrameRepository(db)
	store := framestore.New(frameRepo, logger)
	store.OnDurableError(func(op, frameID string, err error) {
		hub.Notify("error", fmt.Sprintf("Could not save frame changes (%s): %v", op, err))
	})

	orch := pipeline.NewOrchestrator(store, ai.NewAnalysisClient(analysisProvider, retry, logger), pipeline.Options{
		ClusterDelay: cfg.ClusterDelay,
	}, logger)
	orch.Subscribe(hub.PipelineStatus)
	orch.OnNotify(hub.Notify)

	ffmpegOpts := media.FFmpegOptions{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		GrabTimeout: cfg.GrabTimeout,
	}
	sess := session.New(session.Config{
		Projects:     projectRepo,
		Frames:       frameRepo,
		Store:        store,
		Orchestrator: orch,
		Suggester: ai.NewCategorySuggester(
			ai.CategoryProviderFor(analysisProvider, enhancementProvider), retry, logger),
		OpenSource: func(path string) (media.Source, error) {
			return media.NewFFmpegSource(path, ffmpegOpts, processor, logger)
		},
		Events:          hub,
		DefaultInterval: cfg.DefaultScanInterval,
	}, logger)

	manager := enhance.NewManager(store, ai.NewEnhancementClient(enhancementProvider, retry, logger), logger)
	manager.OnChange(sess.FrameChanged)

	queue := workers.NewEnhanceQueue(manager, sess, cfg.EnhanceQueueSize, func(job workers.EnhanceJob, err error) {
		if err != nil {
			hub.Notify("error", workers.FailureMessage(job, err))
		}
	}, logger)

	packager := export.NewPackager(logger)
	targets := []export.Target{export.NewLocalTarget(mediaStore)}
	if cfg.MinioEndpoint != "" {
		minioTarget, err := export.NewMinioTarget(export.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.MinioBucket,
		})
		if err != nil {
			return err
		}
		if err := minioTarget.EnsureBucket(ctx); err != nil {
			logger.Warn("minio bucket unavailable, export target disabled", "bucket", cfg.MinioBucket, "error", err)
			targets = append(targets, export.NewUnavailableTarget(export.TargetMinio))
		} else {
			targets = append(targets, minioTarget)
		}
	} else {
		targets = append(targets, export.NewUnavailableTarget(export.TargetMinio))
	}
	targets = append(targets,
		export.NewUnavailableTarget(export.TargetGoogleDrive),
		export.NewUnavailableTarget(export.TargetDropbox))
	exporter := export.NewExporter(packager, stagingPath, logger, targets...)

	archives, err := handlers.AssetServer(cfg.MediaStoragePath, archiveSubDir, logger)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	handlers.Routes{
		Projects: &handlers.ProjectHandler{Session: sess, DB: sqlDB, Logger: logger},
		Session:  &handlers.SessionHandler{Session: sess, Logger: logger},
		Frames: &handlers.FrameHandler{
			Session:          sess,
			Enhancer:         manager,
			Queue:            queue,
			Processor:        processor,
			ThumbnailMaxSize: cfg.ThumbnailMaxSize,
			Logger:           logger,
		},
		Library: &handlers.LibraryHandler{
			Session:  sess,
			DB:       sqlDB,
			Packager: packager,
			Exporter: exporter,
			Logger:   logger,
		},
		ArchivesSubDir: archiveSubDir,
		Archives:       archives,
		WebSocket:      hub.Handler(realtime.Upgrader(cfg.CORSAllowedOrigins)),
	}.Mount(r)
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// exports stream whole archives
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr, "database", cfg.DatabasePath, "media", cfg.MediaStoragePath)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}
	queue.Stop()
	hub.Stop()
	return nil
}
