package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"scholarbridge/internal/app"
	"scholarbridge/internal/cache"
	"scholarbridge/internal/config"
	"scholarbridge/internal/metrics"
	mysqlClient "scholarbridge/internal/platform/mysql"
	rabbitmqClient "scholarbridge/internal/platform/rabbitmq"
	redisClient "scholarbridge/internal/platform/redis"
	"scholarbridge/internal/recordstore"
	"scholarbridge/internal/render"
	"scholarbridge/internal/repository"
	"scholarbridge/internal/storage"
	"scholarbridge/internal/worker"
)

type App struct {
	Config  *config.Config
	MySQL   *gorm.DB
	Redis   *redis.Client
	MQConn  *amqp.Connection
	Metrics *metrics.Metrics

	Intake          *app.IntakeService
	Documents       *app.DocumentService
	Reconcile       *app.ReconcileService
	ProvisionWorker *worker.ProvisionWorker

	closers   []func() error
	StartedAt time.Time
}

type Options struct {
	// StartWorker starts the queue consumer when intake runs in queue mode.
	StartWorker bool
}

// New connects every backing service and wires both pipelines.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		Config:    cfg,
		Metrics:   metrics.New(),
		StartedAt: time.Now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		db, err := mysqlClient.New(gctx, cfg.MySQLDSN())
		a.MySQL = db
		return err
	})
	g.Go(func() error {
		cli, err := redisClient.New(gctx, cfg.Redis)
		a.Redis = cli
		return err
	})
	if cfg.Intake.Mode == app.IntakeModeQueue {
		g.Go(func() error {
			conn, err := rabbitmqClient.New(gctx, cfg.RabbitMQ)
			a.MQConn = conn
			return err
		})
	}
	if err := g.Wait(); err != nil {
		_ = a.Close()
		return nil, err
	}

	ledger := repository.NewReconciliationRepository(a.MySQL)
	if err := ledger.AutoMigrate(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	provisioner, err := a.newProvisioner(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	store := newRecordStore(cfg)
	links := app.NewProfileLinks(cfg.App.PublicBaseURL, cfg.Auth.JWTSecret, cfg.LinkTokenTTL(), cfg.Documents.RequireToken)

	var publisher app.EventPublisher
	if a.MQConn != nil {
		publisher = rabbitmqClient.NewEventPublisher(a.MQConn, cfg.RabbitMQ.IntakeQueue)
	}

	a.Intake = app.NewIntakeService(
		store,
		provisioner,
		ledger,
		cache.NewRecordLock(a.Redis, cfg.LockTTL()),
		publisher,
		links,
		a.Metrics,
		app.IntakeOptions{
			TableID:    cfg.Baserow.TableID,
			NameColumn: cfg.Record.Columns.Name,
			Mode:       cfg.Intake.Mode,
		},
	)
	a.Reconcile = app.NewReconcileService(ledger, store, a.Intake)

	photoCache := cache.NewPhotoCache(a.Redis, time.Duration(cfg.Render.PhotoCacheSeconds)*time.Second)
	a.Documents, err = newDocuments(cfg, store, photoCache, a.Metrics)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	if opts.StartWorker && a.MQConn != nil {
		a.ProvisionWorker = worker.NewProvisionWorker(a.MQConn, a.Intake, cfg.RabbitMQ.IntakeQueue, cfg.RabbitMQ.Prefetch)
		if err := a.ProvisionWorker.Start(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("start provision worker failed: %w", err)
		}
	}

	slog.Info("application wired",
		"storage_provider", cfg.Storage.Provider,
		"intake_mode", cfg.Intake.Mode,
		"require_link_token", cfg.Documents.RequireToken,
	)
	return a, nil
}

// NewDocuments wires pipeline B alone, without MySQL, Redis or RabbitMQ.
// Photos are fetched without a cache.
func NewDocuments(cfg *config.Config) (*app.DocumentService, error) {
	return newDocuments(cfg, newRecordStore(cfg), nil, nil)
}

func newRecordStore(cfg *config.Config) *recordstore.Client {
	return recordstore.New(cfg.Baserow, cfg.Record.Columns, recordstore.StaticToken(cfg.Baserow.Token), cfg.RetryPolicy())
}

func newDocuments(cfg *config.Config, store app.RecordStore, photoCache app.PhotoCache, m *metrics.Metrics) (*app.DocumentService, error) {
	renderer, err := render.New(render.Options{
		TemplateDir:     cfg.Render.TemplateDir,
		DefaultTemplate: cfg.Render.DefaultTemplate,
		Compress:        cfg.Render.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("load templates failed: %w", err)
	}
	photos := app.NewHTTPPhotoFetcher(
		time.Duration(cfg.Retry.AttemptTimeoutSeconds)*time.Second,
		cfg.Render.PhotoMaxBytes,
		photoCache,
		cfg.RetryPolicy(),
	)
	profiles := app.NewProfileService(store, photos)
	return app.NewDocumentService(profiles, renderer, cfg.Render.MaxConcurrent, cfg.RenderTimeout(), m), nil
}

func (a *App) newProvisioner(ctx context.Context) (app.FolderProvisioner, error) {
	cfg := a.Config
	switch cfg.Storage.Provider {
	case "gcs":
		p, err := storage.NewGCSProvisioner(ctx, cfg.Storage.GCS, cfg.RetryPolicy())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	case "minio":
		p, err := storage.NewMinioProvisioner(cfg.Storage.Minio, cfg.RetryPolicy())
		if err != nil {
			return nil, err
		}
		if err := p.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return p, nil
	default:
		p, err := storage.NewDriveProvisioner(ctx, cfg.Storage.Drive, cfg.RetryPolicy())
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.ProvisionWorker != nil {
		a.ProvisionWorker.Close()
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
