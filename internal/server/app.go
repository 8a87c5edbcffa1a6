// Package server provides the core application wiring and lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"trendsync/internal/api"
	gcsarchive "trendsync/internal/archive/gcs"
	"trendsync/internal/clock/system"
	"trendsync/internal/config"
	"trendsync/internal/fetcher"
	"trendsync/internal/logging"
	"trendsync/internal/metrics"
	"trendsync/internal/normalize"
	"trendsync/internal/pipeline"
	memorypublisher "trendsync/internal/publisher/memory"
	gcppublisher "trendsync/internal/publisher/pubsub"
	"trendsync/internal/source"
	"trendsync/internal/storage/postgres"
	"trendsync/internal/trends"
)

// App contains the application's dependencies.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	apiServer     *api.Server
	orchestrator  *pipeline.Orchestrator
	pubPublisher  *gcppublisher.Publisher
	storageClient *storage.Client
	trendStore    *postgres.TrendStore
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("keywords", len(cfg.Pipeline.Keywords)),
		zap.Int("markets", len(cfg.Pipeline.Markets)),
	)

	if err := setupDatabase(ctx, app); err != nil {
		return nil, err
	}

	srcClient, err := source.New(source.Config{
		BaseURL: cfg.Source.BaseURL,
		APIKey:  cfg.Source.APIKey,
		Timeout: cfg.SourceTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("source client init failed: %w", err)
	}

	fetch := fetcher.New(srcClient, fetcher.Config{
		MinInterval: cfg.RequestDelay(),
		MaxAttempts: cfg.Source.MaxAttempts,
		BackoffBase: cfg.BackoffInitial(),
		BackoffMax:  cfg.BackoffMax(),
	}, logger.Named("fetcher"))

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	archiver, err := setupArchiver(ctx, app)
	if err != nil {
		return nil, err
	}

	app.orchestrator = pipeline.New(
		fetch,
		normalize.New(),
		app.trendStore,
		archiver,
		publisher,
		system.New(),
		pipeline.Config{
			Keywords:        cfg.Pipeline.Keywords,
			Markets:         cfg.Pipeline.Markets,
			FetchWindowDays: cfg.Pipeline.FetchWindowDays,
			ExclusionDays:   cfg.Pipeline.ExclusionDays,
			OutcomeTopic:    cfg.PubSub.TopicName,
			ArchivePrefix:   cfg.Archive.Prefix,
		},
		logger.Named("pipeline"),
	)

	app.apiServer = api.NewServer(app.orchestrator, logger.Named("api"))
	return app, nil
}

// RunOnce executes a single pipeline run and returns its outcome.
func (a *App) RunOnce(ctx context.Context) (trends.RunOutcome, error) {
	return a.orchestrator.Run(ctx)
}

// Run starts the HTTP trigger server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close()
}

// Close gracefully shuts down the application's clients.
func (a *App) Close() error {
	if a.pubPublisher != nil {
		if err := a.pubPublisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.trendStore != nil {
		a.trendStore.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.Migrate {
		if err := postgres.RunMigrations(app.cfg.DB.DSN); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		app.logger.Info("migrations applied")
	}
	store, err := postgres.NewTrendStore(ctx, postgres.Config{
		DSN:      app.cfg.DB.DSN,
		Table:    app.cfg.DB.Table,
		MaxConns: int32(app.cfg.DB.MaxConns),
	})
	if err != nil {
		return fmt.Errorf("trend store init failed: %w", err)
	}
	app.trendStore = store
	app.logger.Info("trend store initialized", zap.String("table", app.cfg.DB.Table))
	return nil
}

func setupPublisher(ctx context.Context, app *App) (trends.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	pub, err := gcppublisher.New(client)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.pubPublisher = pub
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func setupArchiver(ctx context.Context, app *App) (trends.Archiver, error) {
	if app.cfg.Archive.GCSBucket == "" {
		app.logger.Info("raw payload archiving disabled")
		return nil, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	app.storageClient = client
	archiver, err := gcsarchive.New(client, gcsarchive.Config{Bucket: app.cfg.Archive.GCSBucket})
	if err != nil {
		return nil, fmt.Errorf("gcs archiver init failed: %w", err)
	}
	app.logger.Info("raw payload archiving enabled", zap.String("bucket", app.cfg.Archive.GCSBucket))
	return archiver, nil
}
