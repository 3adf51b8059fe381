package container

import (
	"context"
	"fmt"
	"time"

	"mercari/monitor/internal/client"
	"mercari/monitor/internal/config"
	"mercari/monitor/internal/export"
	"mercari/monitor/internal/extract"
	"mercari/monitor/internal/filter"
	"mercari/monitor/internal/notify"
	"mercari/monitor/internal/proxy"
	"mercari/monitor/internal/quality"
	"mercari/monitor/internal/queue"
	"mercari/monitor/internal/repository"
	"mercari/monitor/internal/service"
	"mercari/monitor/internal/state"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config  *config.Config
	Service *service.Service

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	proxySupplier, err := proxy.NewProxySupplier(context.Background(), cfg.Scraper.Proxies, cfg.Scraper.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize proxy supplier: %w", err)
	}

	db, err := pgxpool.New(context.Background(),
		fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Name,
		))
	if err != nil {
		return nil, err
	}
	container.db = db

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	container.redis = rdb
	log.Info("✅ Connected to Redis successfully")

	redisQueue, err := queue.NewRedisQueue(rdb, cfg.Redis)
	if err != nil {
		return nil, err
	}

	csvWriter, err := export.NewCSVWriter(cfg.Monitor.ResultsDir)
	if err != nil {
		return nil, err
	}

	var classifier *quality.Classifier
	if cfg.ImageFilter.Enabled {
		classifier = quality.NewClassifier(cfg.ImageFilter.Quality)
	}

	mercariClient := client.NewMercariClient(cfg.Scraper, proxySupplier)
	imageFetcher := client.NewImageFetcher(cfg.Scraper.UserAgent, time.Duration(cfg.Scraper.Timeout)*time.Second)
	seenStore := repository.NewSeenStore(db)

	container.Service = service.NewService(cfg, service.Deps{
		Client:       mercariClient,
		Images:       imageFetcher,
		Resolver:     extract.NewResolver(extract.DefaultSpec()),
		Novelty:      filter.NewNovelty(seenStore, cfg.ImageFilter.HammingThreshold),
		Classifier:   classifier,
		Repository:   repository.NewProductRepository(db),
		Queue:        redisQueue,
		StateManager: state.NewRedisStateManager(rdb),
		Notifier:     notify.NewNotifier(cfg.Notify),
		CSV:          csvWriter,
	})

	return container, nil
}

// Run executes the monitor until the context is cancelled
func (c *Container) Run(ctx context.Context) error {
	return c.Service.Run(ctx)
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	c.db.Close()
	if err := c.redis.Close(); err != nil {
		return err
	}

	log.Info("Container shut down successfully")
	return nil
}
