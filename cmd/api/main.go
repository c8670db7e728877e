package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"prospect-portal/internal/changelog"
	"prospect-portal/internal/cleanup"
	"prospect-portal/internal/config"
	"prospect-portal/internal/database"
	"prospect-portal/internal/handlers"
	"prospect-portal/internal/listing"
	"prospect-portal/internal/logger"
	"prospect-portal/internal/prospect"
	"prospect-portal/internal/ratelimit"
	"prospect-portal/internal/scheduler"
	"prospect-portal/internal/search"
)

// storage is the repository picked by database.type plus the services that
// need direct SQL access. changes and cleaner stay nil on backends without
// the side tables.
type storage struct {
	repo    prospect.Repository
	changes *changelog.Service
	cleaner *cleanup.Service
	close   func() error
}

func main() {
	envErr := config.LoadEnvFiles(".env")

	configPath := config.GetEnv("CONFIG_PATH", "config/config.yaml")
	appConfig, cfgErr := config.LoadConfig(configPath)
	if cfgErr != nil {
		appConfig = config.DefaultConfig()
	}
	appConfig.ApplyEnv()

	log := logger.New(appConfig.Logging.Level, appConfig.Logging.Format)
	defer func() { _ = log.Sync() }()
	if cfgErr != nil {
		log.Warn("failed to load config, using defaults", zap.String("path", configPath), zap.Error(cfgErr))
	} else {
		log.Info("loaded configuration", zap.String("path", configPath))
	}
	if envErr != nil {
		log.Warn("failed to load .env", zap.Error(envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var searchClient *search.SearchClient
	if appConfig.Search.Meilisearch.Enabled {
		searchClient = search.NewSearchClient(appConfig.Search.Meilisearch.Host, appConfig.Search.Meilisearch.APIKey, log)
		if err := searchClient.InitIndex(); err != nil {
			log.Warn("failed to initialize search index", zap.Error(err))
		}
	}

	store, err := openStorage(ctx, appConfig, searchClient, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.String("type", appConfig.Database.Type), zap.Error(err))
	}
	defer func() {
		if err := store.close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	opts := []prospect.Option{prospect.WithLocation(appConfig.Location())}
	if searchClient != nil {
		opts = append(opts, prospect.WithIndexer(searchClient))
	}
	if store.changes != nil {
		opts = append(opts, prospect.WithChangeRecorder(store.changes))
	}
	service := prospect.NewService(store.repo, log, opts...)

	if searchClient != nil {
		go reindexAll(ctx, service, searchClient, log)
	}

	fetcher := listing.NewFetcher(appConfig.Watcher.ToFetcherConfig(), log)
	watcher := scheduler.NewPriceWatcher(service, fetcher, appConfig.Watcher.StopOnError, log)

	var cleanupRunner scheduler.CleanupRunner
	if store.cleaner != nil {
		cleanupRunner = store.cleaner
	}
	rateLimiter := ratelimit.NewRateLimiter(
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.RequestsPerDay,
		appConfig.RateLimit.Enabled,
	)
	log.Info("rate limiter initialized",
		zap.Int("per_minute", appConfig.RateLimit.RequestsPerMinute),
		zap.Int("per_hour", appConfig.RateLimit.RequestsPerHour),
		zap.Int("per_day", appConfig.RateLimit.RequestsPerDay),
		zap.Bool("enabled", appConfig.RateLimit.Enabled))

	appScheduler := scheduler.NewScheduler(appConfig, watcher, cleanupRunner, log)
	if appConfig.RateLimit.Enabled {
		appScheduler.SetPruner(rateLimiter)
	}
	if err := appScheduler.Start(); err != nil {
		log.Warn("failed to start scheduler", zap.Error(err))
	}
	defer appScheduler.Stop()

	if appConfig.Server.Mode != "" {
		gin.SetMode(appConfig.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if appConfig.Logging.LogRequests {
		r.Use(handlers.RequestLogger(log))
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     appConfig.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	r.GET("/health", healthCheck(appConfig.Database.Type, searchClient != nil))

	api := r.Group("/api")
	var searcher handlers.Searcher
	if searchClient != nil {
		searcher = searchClient
	}
	handlers.NewProspectHandler(service, searcher, log).Register(api, handlers.RateLimitMiddleware(rateLimiter))
	api.GET("/ratelimit/stats", handlers.RateLimitStats(rateLimiter))

	deps := handlers.AdminDeps{
		Watcher:    watcher,
		CleanupCfg: appConfig.Cleanup.ToCleanupConfig(),
		Breaker:    fetcher.Breaker(),
	}
	if store.changes != nil {
		deps.Changes = store.changes
	}
	if store.cleaner != nil {
		deps.Cleaner = store.cleaner
	}
	handlers.NewAdminHandler(service, deps, log).Register(api.Group("/admin"))

	srv := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
}

func openStorage(ctx context.Context, cfg *config.Config, searchClient *search.SearchClient, log *zap.Logger) (*storage, error) {
	switch cfg.Database.Type {
	case "memory":
		log.Warn("using in-memory storage, data is lost on restart")
		return &storage{repo: database.NewMemoryRepository(), close: func() error { return nil }}, nil

	case "postgres":
		pg := cfg.Database.Postgres
		db, err := database.NewPostgresDB(pg.Host, strconv.Itoa(pg.Port), pg.User, pg.Password, pg.Database, pg.SSLMode)
		if err != nil {
			return nil, err
		}
		if err := db.InitSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("using PostgreSQL", zap.String("host", pg.Host), zap.String("database", pg.Database))
		return &storage{repo: db, close: db.Close}, nil

	default:
		my := cfg.Database.MySQL
		level := gormlogger.Warn
		if cfg.Logging.Level == "debug" {
			level = gormlogger.Info
		}
		gdb, err := database.NewGormDB(my.Host, strconv.Itoa(my.Port), my.User, my.Password, my.Database, level)
		if err != nil {
			return nil, err
		}
		if err := gdb.InitSchema(); err != nil {
			_ = gdb.Close()
			return nil, err
		}
		log.Info("using MySQL with GORM", zap.String("host", my.Host), zap.String("database", my.Database))

		var remover cleanup.Remover
		if searchClient != nil && cfg.Cleanup.DeleteFromSearch {
			remover = searchClient
		}
		return &storage{
			repo:    gdb,
			changes: changelog.NewService(gdb.DB(), log),
			cleaner: cleanup.NewService(gdb.DB(), remover, log),
			close:   gdb.Close,
		}, nil
	}
}

// reindexAll pushes every stored prospect to the search index at startup
func reindexAll(ctx context.Context, service *prospect.Service, searchClient *search.SearchClient, log *zap.Logger) {
	list, err := service.List(ctx)
	if err != nil {
		log.Warn("failed to list prospects for reindex", zap.Error(err))
		return
	}
	if err := searchClient.IndexProspects(ctx, list); err != nil {
		log.Warn("failed to reindex prospects", zap.Error(err))
		return
	}
	log.Info("search index rebuilt", zap.Int("count", len(list)))
}

func healthCheck(dbType string, searchEnabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"database": dbType,
			"search":   searchEnabled,
		})
	}
}
