package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/proxi-ai/proxi/internal/ai"
	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/config"
	"github.com/proxi-ai/proxi/internal/embedcache"
	"github.com/proxi-ai/proxi/internal/filestore"
	"github.com/proxi-ai/proxi/internal/handler"
	"github.com/proxi-ai/proxi/internal/indexer"
	"github.com/proxi-ai/proxi/internal/job"
	"github.com/proxi-ai/proxi/internal/middleware"
	"github.com/proxi-ai/proxi/internal/orchestrator"
	"github.com/proxi-ai/proxi/internal/pkg/logutil"
	"github.com/proxi-ai/proxi/internal/ratelimit"
	"github.com/proxi-ai/proxi/internal/repo"
	"github.com/proxi-ai/proxi/internal/schedule"
	"github.com/proxi-ai/proxi/internal/search"
	"github.com/proxi-ai/proxi/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "proxi",
		Short:        "document question answering service",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the api server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, db)
		},
	}

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "run the background indexing worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			return runWorker(cfg, db)
		},
	}

	rootCmd.AddCommand(runCmd, workerCmd)
	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func bootstrap(configPath string) (*config.Config, *sql.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logutil.Init(cfg.LogConfig)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	db, err := repo.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := repo.ApplyMigrations(db); err != nil {
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, db, nil
}

type deps struct {
	cache     *cache.Cache
	docRepo   *repo.DocumentRepo
	chunkRepo *repo.ChunkRepo
	orgRepo   *repo.OrgRepo
	logRepo   *repo.QueryLogRepo
	embedder  ai.IEmbedder
	indexer   *indexer.Indexer
	files     filestore.Store
}

func buildDeps(cfg *config.Config, db *sql.DB) (*deps, error) {
	store, err := cache.NewStore(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}
	c := cache.New(store, cfg.Cache)

	embedProvider, err := ai.NewEmbedProvider(cfg.AI.Embed.Provider, cfg.AI.Embed.Data)
	if err != nil {
		return nil, fmt.Errorf("embed provider: %w", err)
	}
	embedder := ai.NewEmbedder(embedProvider, cfg.AI.Embed.Model)
	embedder = embedcache.WrapStoreCache(embedder, c)
	embedder = embedcache.WrapLRUCache(embedder, cfg.Cache.EmbedLRUSize,
		time.Duration(cfg.Cache.EmbedLRUTTLSecs)*time.Second)

	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}

	docRepo := repo.NewDocumentRepo(db)
	chunkRepo := repo.NewChunkRepo(db)
	idx := indexer.New(docRepo, chunkRepo, embedder, c, cfg.Indexer)

	return &deps{
		cache:     c,
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		orgRepo:   repo.NewOrgRepo(db),
		logRepo:   repo.NewQueryLogRepo(db),
		embedder:  embedder,
		indexer:   idx,
		files:     files,
	}, nil
}

func runServer(cfg *config.Config, db *sql.DB) error {
	d, err := buildDeps(cfg, db)
	if err != nil {
		return err
	}

	chatProvider, err := ai.NewChatProvider(cfg.AI.Chat.Provider, cfg.AI.Chat.Data)
	if err != nil {
		return fmt.Errorf("chat provider: %w", err)
	}
	var fallbackProvider ai.IChatProvider
	if cfg.AI.EnableFallback && cfg.AI.FallbackChat.Provider != "" {
		fallbackProvider, err = ai.NewChatProvider(cfg.AI.FallbackChat.Provider, cfg.AI.FallbackChat.Data)
		if err != nil {
			return fmt.Errorf("fallback chat provider: %w", err)
		}
	}
	generator := ai.NewGenerator(chatProvider, cfg.AI.Chat.Model, fallbackProvider, cfg.AI.FallbackChat.Model,
		ai.GeneratorConfig{
			MaxTokens:      cfg.AI.MaxTokens,
			Timeout:        time.Duration(cfg.AI.TimeoutSecs) * time.Second,
			EnableFallback: cfg.AI.EnableFallback,
		})

	var transcriber *ai.Transcriber
	if cfg.AI.Speech.Provider != "" {
		speechProvider, err := ai.NewSpeechProvider(cfg.AI.Speech.Provider, cfg.AI.Speech.Data)
		if err != nil {
			return fmt.Errorf("speech provider: %w", err)
		}
		transcriber = ai.NewTranscriber(speechProvider, cfg.AI.Speech.Model)
	}

	limiter := ratelimit.NewLimiter(d.cache.Store(), cfg.RateLimit)
	engine := search.NewEngine(d.docRepo, d.chunkRepo, d.embedder, d.cache, cfg.Search)
	orch := orchestrator.New(d.cache, engine, generator, transcriber, limiter, d.logRepo, d.orgRepo, cfg.Search.DefaultK)
	docService := service.NewDocumentService(d.docRepo, d.chunkRepo, d.files, d.cache, d.indexer)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingSweepJob(d.indexer), "*/10 * * * *"); err != nil {
		return err
	}

	jwtSecret := []byte(cfg.JWTSecret)
	jwtTTL := time.Duration(cfg.JWTTTLHours) * time.Hour
	if jwtTTL <= 0 {
		jwtTTL = 24 * time.Hour
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(nil))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	api := router.Group("/api/v1")
	handler.RegisterRoutes(api, handler.RouterDeps{
		Chat:      handler.NewChatHandler(orch),
		Voice:     handler.NewVoiceHandler(orch, d.files),
		Search:    handler.NewSearchHandler(engine),
		Documents: handler.NewDocumentHandler(docService),
		Admin: handler.NewAdminHandler(d.cache, docService, generator, limiter,
			d.orgRepo, d.logRepo, jwtSecret, jwtTTL),
		JWTSecret: jwtSecret,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	scheduler.Start(ctx)
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
	errCh := make(chan error, 1)
	go func() {
		logutil.GetLogger(ctx).Info("server listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logutil.GetLogger(context.Background()).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runWorker(cfg *config.Config, db *sql.DB) error {
	d, err := buildDeps(cfg, db)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingSweepJob(d.indexer), "*/10 * * * *"); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("worker started")
	if err := d.indexer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
