// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/api"
	"github.com/JakeFAU/catalog-enricher/internal/clock/system"
	"github.com/JakeFAU/catalog-enricher/internal/config"
	"github.com/JakeFAU/catalog-enricher/internal/dispatcher"
	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/extractor/oembed"
	"github.com/JakeFAU/catalog-enricher/internal/extractor/ytdlp"
	"github.com/JakeFAU/catalog-enricher/internal/hash/sha256"
	"github.com/JakeFAU/catalog-enricher/internal/id/uuid"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
	"github.com/JakeFAU/catalog-enricher/internal/pipeline"
	queuememory "github.com/JakeFAU/catalog-enricher/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/catalog-enricher/internal/storage/gcs"
	localstorage "github.com/JakeFAU/catalog-enricher/internal/storage/local"
	memorystorage "github.com/JakeFAU/catalog-enricher/internal/storage/memory"
	pgstore "github.com/JakeFAU/catalog-enricher/internal/storage/postgres"
	"github.com/JakeFAU/catalog-enricher/internal/thumbnail"
	"github.com/JakeFAU/catalog-enricher/internal/tool"
	pubsubtrigger "github.com/JakeFAU/catalog-enricher/internal/trigger/pubsub"
	"github.com/JakeFAU/catalog-enricher/internal/updater"
)

// App holds the shared, long-lived services for one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	records  enrich.RecordStore
	pg       *pgstore.RecordStore
	archive  enrich.BlobStore
	gcs      *storage.Client
	tool     *tool.Bootstrap
	pipeline *pipeline.Orchestrator
	queue    *queuememory.Queue
	dispatch *dispatcher.Dispatcher
	api      *api.Server

	pubsubClient *gpubsub.Client
	subscriber   *pubsubtrigger.Subscriber

	closeOnce sync.Once
}

// New builds every service named by cfg. It fails fast when a configured
// backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	logger.Info("initializing application services",
		zap.String("store", cfg.Store.Provider),
		zap.String("archive", cfg.Archive.Provider),
		zap.Bool("pubsub", cfg.Trigger.PubSub.Enabled),
	)

	if err := a.setupStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.setupArchive(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.tool = tool.New(tool.Config{
		Binary:       cfg.Tool.Binary,
		InstallDir:   cfg.Tool.InstallDir,
		ReleaseURL:   cfg.Tool.ReleaseURL,
		ProbeTimeout: cfg.Tool.ProbeTimeout,
	}, nil, logger.Named("tool"))

	thumbs := thumbnail.New(nil, thumbnail.Config{
		BaseURL:   cfg.Thumbnail.BaseURL,
		Timeout:   cfg.Thumbnail.Timeout,
		UserAgent: cfg.Tool.UserAgent,
	}, logger.Named("thumbnail"))

	primary := ytdlp.New(a.tool, thumbs, a.archive, sha256.New(), ytdlp.Config{
		UserAgent:     cfg.Tool.UserAgent,
		CacheDir:      cfg.Tool.CacheDir,
		ArchivePrefix: cfg.Archive.Prefix,
	}, logger.Named("ytdlp"))

	fallback := oembed.New(nil, thumbs, oembed.Config{
		Endpoint:      cfg.Fallback.OEmbedURL,
		ThumbnailBase: cfg.Thumbnail.BaseURL,
		Timeout:       cfg.Fallback.Timeout,
	}, logger.Named("oembed"))

	a.pipeline = pipeline.New(
		a.records,
		[]enrich.Strategy{primary, fallback},
		updater.New(updater.Config{Placeholder: cfg.Pipeline.Placeholder, MaxTags: cfg.Pipeline.MaxTags}),
		system.New(),
		logger,
	)

	a.queue = queuememory.NewQueue(cfg.Pipeline.QueueDepth)
	a.dispatch = dispatcher.New(a.queue, a.pipeline, uuid.New(), dispatcher.Config{
		RunBudget: cfg.Pipeline.RunBudget,
	}, logger)

	var checks []api.ReadinessCheck
	if a.pg != nil {
		checks = append(checks, a.pg.Ping)
	}
	a.api = api.NewServer(a.records, a.dispatch, cfg.Auth, logger, checks...)

	if cfg.Trigger.PubSub.Enabled {
		if err := a.setupSubscriber(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Store.Provider {
	case config.StorePostgres:
		a.logger.Info("connecting to postgres", zap.String("table", a.cfg.Store.Table))
		store, err := pgstore.NewRecordStore(ctx, pgstore.Config{
			DSN:             a.cfg.Store.DSN,
			Table:           a.cfg.Store.Table,
			MaxConns:        a.cfg.Store.MaxConns,
			MaxConnLifetime: a.cfg.Store.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("init record store: %w", err)
		}
		a.pg = store
		a.records = store
	case config.StoreMemory, "":
		a.logger.Warn("using in-memory record store, records do not survive restarts")
		a.records = memorystorage.NewRecordStore()
	default:
		return fmt.Errorf("unknown store provider: %s", a.cfg.Store.Provider)
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	switch a.cfg.Archive.Provider {
	case config.ArchiveMemory:
		a.logger.Warn("using in-memory archive, raw documents do not survive restarts")
		a.archive = memorystorage.NewBlobStore()
	case config.ArchiveLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		a.archive = store
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.gcs = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs archive: %w", err)
		}
		a.archive = store
	case config.ArchiveNone, "":
	default:
		return fmt.Errorf("unknown archive provider: %s", a.cfg.Archive.Provider)
	}
	return nil
}

func (a *App) setupSubscriber(ctx context.Context) error {
	ps := a.cfg.Trigger.PubSub
	client, err := gpubsub.NewClient(ctx, ps.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	a.pubsubClient = client
	sub, err := pubsubtrigger.New(client, pubsubtrigger.Config{
		ProjectID:      ps.ProjectID,
		SubscriptionID: ps.SubscriptionID,
		MaxOutstanding: ps.MaxOutstanding,
	}, a.dispatch, a.logger)
	if err != nil {
		return fmt.Errorf("init pubsub subscriber: %w", err)
	}
	a.subscriber = sub
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Records returns the catalog record store.
func (a *App) Records() enrich.RecordStore { return a.records }

// Tool returns the extraction tool bootstrap.
func (a *App) Tool() *tool.Bootstrap { return a.tool }

// Pipeline returns the orchestrator for synchronous runs.
func (a *App) Pipeline() *pipeline.Orchestrator { return a.pipeline }

// Archive returns the raw document archive, nil when archiving is off.
func (a *App) Archive() enrich.BlobStore { return a.archive }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Serve runs the HTTP server, the dispatcher and the optional subscriber
// until ctx is canceled. Events already accepted are still run before it
// returns, along with runs in flight.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	errCh := make(chan error, 2)
	subDone := make(chan struct{})
	if a.subscriber == nil {
		close(subDone)
	} else {
		go func() {
			defer close(subDone)
			a.logger.Info("pubsub subscriber started")
			if err := a.subscriber.Run(ctx); err != nil {
				errCh <- fmt.Errorf("pubsub subscriber: %w", err)
				stop()
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	<-dispatchDone
	<-subDone
	a.queue.Close()
	a.dispatch.Drain(context.Background())
	a.logger.Info("waiting for in-flight runs")
	a.dispatch.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// Close releases backend clients. It is safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		if a.pubsubClient != nil {
			if err := a.pubsubClient.Close(); err != nil {
				a.logger.Warn("pubsub client close failed", zap.Error(err))
			}
		}
		if a.gcs != nil {
			if err := a.gcs.Close(); err != nil {
				a.logger.Warn("gcs client close failed", zap.Error(err))
			}
		}
		if a.pg != nil {
			a.pg.Close()
		}
		a.logger.Info("application services closed")
	})
}
