package bootstrap

import (
	"context"
	"fmt"
	"log"

	"travel-intel/internal/config"
	"travel-intel/internal/controller"
	"travel-intel/internal/metrics"
	"travel-intel/internal/pkg/logger"
	"travel-intel/internal/repository/contract"
	"travel-intel/internal/repository/filesystem"
	"travel-intel/internal/repository/implementation"
	"travel-intel/internal/repository/memory"
	"travel-intel/internal/service"
	"travel-intel/pkg/cache"
	"travel-intel/pkg/events"
	"travel-intel/pkg/lock"
	pktNats "travel-intel/pkg/nats"
	"travel-intel/pkg/storage"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	DatasetController controller.IDatasetController
	SessionController controller.ISessionController
	OpsController     controller.IOpsController

	// Services (exposed for cmd/ entry points)
	ConsolidationService service.IConsolidationService
	ExportService        service.IExportService
	SessionService       service.ISessionService
	ConsumerService      service.IConsumerService
	PublisherService     service.IPublisherService

	Sessions contract.SessionRepository
	Datasets contract.DatasetRepository
	Cache    *cache.VersionedCache
	Metrics  *metrics.Metrics
	Logger   *logger.ZapLogger

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	ctx := context.Background()

	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	cacheLogger := logger.NewIsolatedLogger(cfg.App.CacheLogFilePath)
	m := metrics.New()
	retry := storage.RetryPolicy{Attempts: cfg.Storage.RetryAttempts, Delay: cfg.Storage.RetryDelay}

	c := &Container{Metrics: m, Logger: sysLogger}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)
	c.closers = append(c.closers, func() { pubSub.Close() })

	var remotePub events.Publisher
	var remoteSub service.RemoteSubscriber
	if cfg.Events.NatsEnabled {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			remotePub = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
		natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		} else {
			remoteSub = natsSub
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	topics := map[string]string{events.TypeSessionWritten: cfg.Events.SessionWrittenTopic}
	publisherService := service.NewPublisherService(pubSub, topics, remotePub)

	// 3. Consolidation lock
	locker, closeLocker, err := NewLocker(ctx, cfg)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	if closeLocker != nil {
		c.closers = append(c.closers, closeLocker)
	}

	// 4. Cache
	cacheOpts := []cache.Option{
		cache.WithMaxEntries(cfg.Cache.MaxMemoryEntries),
		cache.WithDefaultTTL(cfg.Cache.TTL),
		cache.WithLogger(cacheLogger),
		cache.WithObserver(m),
	}
	durable, err := cache.NewDurableStore(ctx, cfg.Cache.DurableAddress, retry)
	if err != nil {
		log.Printf("[WARN] Durable cache tier unavailable: %v. Using memory only", err)
	} else if durable != nil {
		cacheOpts = append(cacheOpts, cache.WithDurable(durable))
	}
	versionedCache := cache.New(cacheOpts...)
	c.Cache = versionedCache
	c.closers = append(c.closers, func() { versionedCache.Close() })

	// 5. Repositories
	var sessions contract.SessionRepository
	switch cfg.Consolidation.SessionBackend {
	case "memory":
		sessions = memory.NewSessionRepository(publisherService)
	default:
		sessions = filesystem.NewSessionRepository(cfg.Consolidation.SessionsRoot, retry, publisherService, sysLogger)
	}
	loader := memory.NewCachedSessionLoader(sessions, cfg.Cache.SessionCacheTTL)

	var datasets contract.DatasetRepository
	switch cfg.Consolidation.DatasetBackend {
	case "postgres":
		if db == nil {
			log.Fatalf("[FATAL] DATASET_BACKEND=postgres but no database connection")
		}
		datasets = implementation.NewDatasetRepository(db)
	case "memory":
		datasets = memory.NewDatasetRepository()
	default:
		datasets = filesystem.NewDatasetRepository(cfg.Consolidation.DatasetRoot, retry)
	}
	c.Sessions = sessions
	c.Datasets = datasets

	// 6. Services
	consolidationService := service.NewConsolidationService(service.ConsolidationDeps{
		Index:     sessions,
		Loader:    loader,
		Datasets:  datasets,
		Locker:    locker,
		Cache:     versionedCache,
		Publisher: publisherService,
		Recorder:  m,
		Logger:    sysLogger,
	}, cfg.Consolidation)
	exportService := service.NewExportService(datasets)
	sessionService := service.NewSessionService(sessions, sysLogger)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Events.SessionWrittenTopic,
		remoteSub,
		cfg.Events.ConsumerDurable,
		consolidationService,
		sysLogger,
		service.DefaultContentionRetry,
	)

	c.ConsolidationService = consolidationService
	c.ExportService = exportService
	c.SessionService = sessionService
	c.ConsumerService = consumerService
	c.PublisherService = publisherService

	// 7. Controllers
	c.DatasetController = controller.NewDatasetController(consolidationService, exportService)
	c.SessionController = controller.NewSessionController(sessionService)
	c.OpsController = controller.NewOpsController(versionedCache, sysLogger, m.Handler())

	return c
}

// NewLocker builds the per-destination consolidation lock. A configured Redis
// backend that cannot be reached is an error: falling back to an in-process
// lock would let two processes consolidate the same destination at once.
func NewLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.Consolidation.LockBackend != "redis" {
		return lock.NewMemoryLocker(), nil, nil
	}
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("LOCK_BACKEND=redis but Redis is unreachable: %w", err)
	}
	return lock.NewRedisLocker(rdb, cfg.Consolidation.LockTTL), func() { rdb.Close() }, nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}
