// Package app initializes and holds long-lived application services, acting as
// a dependency injection container.
package app

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/categories"
	"github.com/keystonedata/inspections-pipeline/internal/cleaner"
	"github.com/keystonedata/inspections-pipeline/internal/clock/system"
	"github.com/keystonedata/inspections-pipeline/internal/config"
	"github.com/keystonedata/inspections-pipeline/internal/dispatcher"
	"github.com/keystonedata/inspections-pipeline/internal/exporter"
	"github.com/keystonedata/inspections-pipeline/internal/geocode"
	"github.com/keystonedata/inspections-pipeline/internal/geocode/geocodio"
	"github.com/keystonedata/inspections-pipeline/internal/hash/sha256"
	iduuid "github.com/keystonedata/inspections-pipeline/internal/id/uuid"
	"github.com/keystonedata/inspections-pipeline/internal/logging"
	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
	"github.com/keystonedata/inspections-pipeline/internal/progress"
	"github.com/keystonedata/inspections-pipeline/internal/progress/sinks"
	memorypub "github.com/keystonedata/inspections-pipeline/internal/publisher/memory"
	nooppub "github.com/keystonedata/inspections-pipeline/internal/publisher/noop"
	pubsubpub "github.com/keystonedata/inspections-pipeline/internal/publisher/pubsub"
	queuemem "github.com/keystonedata/inspections-pipeline/internal/queue/memory"
	"github.com/keystonedata/inspections-pipeline/internal/runs"
	"github.com/keystonedata/inspections-pipeline/internal/storage/gcs"
	"github.com/keystonedata/inspections-pipeline/internal/storage/local"
	memoryblob "github.com/keystonedata/inspections-pipeline/internal/storage/memory"
	noopblob "github.com/keystonedata/inspections-pipeline/internal/storage/noop"
	"github.com/keystonedata/inspections-pipeline/internal/storage/s3"
	storemem "github.com/keystonedata/inspections-pipeline/internal/store/memory"
	storepg "github.com/keystonedata/inspections-pipeline/internal/store/postgres"
	"github.com/keystonedata/inspections-pipeline/internal/violations"
	"github.com/keystonedata/inspections-pipeline/internal/worker"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and passed to the commands that need it.
type App struct {
	Cfg        config.Config
	Logger     *zap.Logger
	RunStore   pipeline.RunStore
	BlobStore  pipeline.BlobStore
	Queue      *queuemem.Queue
	Hub        *progress.Hub
	Dispatcher *dispatcher.Dispatcher
	Runs       *runs.Service
	Prober     pipeline.Prober
	Exporter   pipeline.Exporter

	publisher    pipeline.Publisher
	pubsubPub    *pubsubpub.Publisher
	pubsubClient *pubsub.Client
	pgStore      *storepg.RunStore
	chromedp     *exporter.ChromedpExporter
}

// New creates and initializes an App from configuration. It fails fast if any
// critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("initializing application services")

	a := &App{Cfg: cfg, Logger: logger}

	if err := a.initBlobStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initRunStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		return nil, err
	}
	if err := a.initExporter(); err != nil {
		return nil, err
	}
	a.initPipeline()

	logger.Info("resolved configuration", zap.Any("config", cfg.Redacted()))
	return a, nil
}

func (a *App) initBlobStore(ctx context.Context) error {
	cfg := a.Cfg.Storage
	switch cfg.Provider {
	case "s3":
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("storage provider is 's3' but storage.s3.bucket is not set")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		a.Logger.Info("using S3 storage provider", zap.String("bucket", cfg.S3.Bucket), zap.String("region", cfg.S3.Region))
		store, err := s3.New(awss3.NewFromConfig(awsCfg), s3.Config{Bucket: cfg.S3.Bucket, Region: cfg.S3.Region})
		if err != nil {
			return fmt.Errorf("init s3 storage: %w", err)
		}
		a.BlobStore = store
	case "gcs":
		if cfg.GCS.Bucket == "" {
			return fmt.Errorf("storage provider is 'gcs' but storage.gcs.bucket is not set")
		}
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.Logger.Info("using GCS storage provider", zap.String("bucket", cfg.GCS.Bucket))
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCS.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		a.BlobStore = store
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		a.Logger.Info("using local storage provider", zap.String("base_dir", cfg.Local.BaseDir))
		a.BlobStore = store
	case "memory":
		a.BlobStore = memoryblob.NewBlobStore()
	case "noop":
		a.Logger.Info("using no-op storage provider, uploads will be discarded")
		a.BlobStore = noopblob.NewBlobStore()
	default:
		return fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
	return nil
}

func (a *App) initRunStore(ctx context.Context) error {
	switch a.Cfg.Store.Provider {
	case "postgres":
		if a.Cfg.Store.Postgres.DSN == "" {
			return fmt.Errorf("store provider is 'postgres' but store.postgres.dsn is not set")
		}
		a.Logger.Info("connecting to PostgreSQL")
		store, err := storepg.NewRunStore(ctx, storepg.Config{DSN: a.Cfg.Store.Postgres.DSN})
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.pgStore = store
		a.RunStore = store
	case "memory":
		a.RunStore = storemem.NewRunStore()
	default:
		return fmt.Errorf("unknown store provider: %s", a.Cfg.Store.Provider)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.Cfg.Publisher.Provider {
	case "pubsub":
		if a.Cfg.Publisher.ProjectID == "" || a.Cfg.Publisher.Topic == "" {
			return fmt.Errorf("publisher provider is 'pubsub' but project_id or topic is not set")
		}
		client, err := pubsub.NewClient(ctx, a.Cfg.Publisher.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		a.Logger.Info("connecting to Pub/Sub", zap.String("topic", a.Cfg.Publisher.Topic))
		a.pubsubClient = client
		a.pubsubPub = pubsubpub.New(client.Topic(a.Cfg.Publisher.Topic))
		a.publisher = a.pubsubPub
	case "memory":
		a.publisher = memorypub.New()
	case "noop":
		a.Logger.Info("using no-op publisher, no messages will be sent")
		a.publisher = nooppub.New()
	default:
		return fmt.Errorf("unknown publisher provider: %s", a.Cfg.Publisher.Provider)
	}
	return nil
}

func (a *App) initExporter() error {
	cfg := exporter.Config{
		URL:                  a.Cfg.Report.URL,
		Tab:                  a.Cfg.Report.Tab,
		UserAgent:            a.Cfg.Report.UserAgent,
		ProbeTimeout:         a.Cfg.Report.ProbeTimeout,
		LoadTimeout:          a.Cfg.Report.LoadTimeout,
		ExportTimeout:        a.Cfg.Report.ExportTimeout,
		DownloadDir:          a.Cfg.Report.DownloadDir,
		DownloadPollInterval: a.Cfg.Report.DownloadPollInterval,
	}

	prober, err := exporter.NewCollyProber(cfg, a.Logger)
	if err != nil {
		return fmt.Errorf("init prober: %w", err)
	}
	a.Prober = prober

	chrome, err := exporter.NewChromedpExporter(cfg, a.Logger)
	if err != nil {
		return fmt.Errorf("init exporter: %w", err)
	}
	a.chromedp = chrome
	a.Exporter = chrome
	return nil
}

func (a *App) initPipeline() {
	clk := system.New()
	a.Queue = queuemem.NewQueue(a.Cfg.Queue.Depth)

	hubSinks := []progress.Sink{
		sinks.NewLogSink(a.Logger),
		sinks.NewStoreSink(a.RunStore, a.Logger),
	}
	if promSink, err := sinks.NewPrometheusSink(nil); err != nil {
		a.Logger.Warn("prometheus sink unavailable", zap.Error(err))
	} else {
		hubSinks = append(hubSinks, promSink)
	}
	a.Hub = progress.NewHub(progress.Config{}, hubSinks...)

	var geocoder geocode.Geocoder
	if a.Cfg.Geocodio.APIKey != "" {
		client, err := geocodio.New(a.Logger, geocodio.Config{
			APIKey:  a.Cfg.Geocodio.APIKey,
			BaseURL: a.Cfg.Geocodio.BaseURL,
			QPS:     a.Cfg.Geocodio.QPS,
			Timeout: a.Cfg.Geocodio.Timeout,
		})
		if err != nil {
			a.Logger.Warn("geocodio client unavailable, new addresses will be reported only", zap.Error(err))
		} else {
			geocoder = client
		}
	} else {
		a.Logger.Info("no geocodio api key, new addresses will be reported only")
	}

	w := worker.New(
		a.Queue,
		a.RunStore,
		a.BlobStore,
		a.publisher,
		sha256.New(),
		clk,
		a.Prober,
		a.Exporter,
		cleaner.New(a.Logger),
		geocode.NewEnricher(a.Logger, a.BlobStore, geocoder, a.objectKey(a.Cfg.Dataset.AddressesKey), a.objectKey(a.Cfg.Dataset.MissingKey)),
		violations.NewJoiner(a.Logger, a.BlobStore, a.objectKey(a.Cfg.Dataset.FoodCodesKey)),
		categories.NewManager(a.Logger, a.BlobStore, a.objectKey(a.Cfg.Dataset.CategoriesKey)),
		a.Hub,
		worker.Config{
			ObjectPrefix: a.Cfg.Storage.Prefix,
			ObjectName:   a.Cfg.Dataset.ObjectName,
			ContentType:  a.Cfg.Storage.ContentType,
			Topic:        a.Cfg.Publisher.Topic,
		},
		a.Logger,
	)
	a.Dispatcher = dispatcher.New(a.Queue, []*worker.Worker{w})
	a.Runs = runs.NewService(a.RunStore, a.Dispatcher, iduuid.NewUUIDGenerator(), clk, a.Logger)
}

// objectKey places a dataset object under the configured storage prefix.
func (a *App) objectKey(name string) string {
	prefix := strings.Trim(a.Cfg.Storage.Prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close(ctx context.Context) {
	if a.Hub != nil {
		if err := a.Hub.Close(ctx); err != nil {
			a.Logger.Warn("error closing progress hub", zap.Error(err))
		}
	}
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.chromedp != nil {
		if err := a.chromedp.Close(ctx); err != nil {
			a.Logger.Warn("error closing browser", zap.Error(err))
		}
	}
	if a.pubsubPub != nil {
		a.pubsubPub.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("error closing pubsub client", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	// Best effort, stderr sync failures are expected on some platforms.
	_ = a.Logger.Sync()
}
