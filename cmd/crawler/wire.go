package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/adapter/discuz"
	"github.com/user/forum-crawler/internal/adapter/httpfetch"
	"github.com/user/forum-crawler/internal/adapter/imagestore"
	"github.com/user/forum-crawler/internal/adapter/postgres"
	redis_adapter "github.com/user/forum-crawler/internal/adapter/redis"
	"github.com/user/forum-crawler/internal/adapter/sqlstore"
	"github.com/user/forum-crawler/internal/delivery/http/handler"
	"github.com/user/forum-crawler/internal/repository"
	"github.com/user/forum-crawler/internal/usecase"
	"github.com/user/forum-crawler/pkg/config"
	"github.com/user/forum-crawler/pkg/metrics"
)

// scraper bundles the components that only talk to the forum.
type scraper struct {
	urls      usecase.SiteURLs
	fetcher   *httpfetch.Fetcher
	extractor *discuz.Extractor
	enricher  *usecase.DetailEnricher
}

func newScraper(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*scraper, error) {
	rotator := httpfetch.NewRotator(cfg.Proxies, cfg.UserAgents)
	fetcher := httpfetch.New(httpfetch.Options{
		Timeout:           cfg.HTTPTimeout,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Kind:              "page",
	}, rotator, m, logger)

	extractor, err := discuz.NewExtractor(cfg.BaseURL, logger)
	if err != nil {
		return nil, err
	}

	images := imagestore.New(imagestore.Options{
		BasePath:    cfg.ImageBasePath,
		TokenPrefix: cfg.ImageTokenPrefix,
		Timeout:     cfg.ImageTimeout,
		UserAgent:   rotator.UserAgent(),
	}, m, logger)

	return &scraper{
		urls: usecase.SiteURLs{
			Base:            cfg.BaseURL,
			ListingTemplate: cfg.ListingURLTemplate,
			DetailTemplate:  cfg.DetailURLTemplate,
		},
		fetcher:   fetcher,
		extractor: extractor,
		enricher:  usecase.NewDetailEnricher(fetcher, extractor, images, m, logger),
	}, nil
}

// store is the post table and execution log of the configured database.
type store struct {
	posts repository.PostRepository
	logs  repository.ExecutionLogRepository
	close func() error
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for DB_DRIVER=%s", cfg.DBDriver)
	}

	if cfg.DBDriver == "postgres" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("unable to reach postgres: %w", err)
		}
		logger.Info("postgres connection pool established")
		return &store{
			posts: postgres.NewPostRepo(pool, cfg.PostTable),
			logs:  postgres.NewExecutionLogRepo(pool, cfg.LogTable),
			close: func() error { pool.Close(); return nil },
		}, nil
	}

	dialect, err := sqlstore.DialectFor(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	db, err := sqlstore.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.DBDriver == "sqlite" {
		if err := sqlstore.InitSchema(ctx, db, dialect, cfg.PostTable, cfg.LogTable); err != nil {
			db.Close()
			return nil, err
		}
	}
	logger.Info("database connection established", zap.String("driver", dialect.Name))
	return &store{
		posts: sqlstore.NewPostRepo(db, dialect, cfg.PostTable),
		logs:  sqlstore.NewExecutionLogRepo(db, dialect, cfg.LogTable),
		close: db.Close,
	}, nil
}

// runLock picks the Redis lock when REDIS_ADDR is set and a process-local
// lock otherwise. The returned checks include Redis for /api/health.
func runLock(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.RunLock, map[string]handler.Pinger, func() error, error) {
	checks := map[string]handler.Pinger{}
	if cfg.RedisAddr == "" {
		return usecase.NewLocalRunLock(), checks, func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lock := redis_adapter.NewRunLock(rdb, cfg.BaseURL, cfg.LockTTL)
	if err := lock.Ping(ctx); err != nil {
		rdb.Close()
		return nil, nil, nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	logger.Info("redis connection established")
	checks["redis"] = lock
	return lock, checks, rdb.Close, nil
}

func newRunner(cfg *config.Config, sc *scraper, st *store, lock repository.RunLock, m *metrics.Metrics, logger *zap.Logger) *usecase.CrawlRunner {
	detailMin, detailMax := cfg.DetailDelayRange()
	walker := usecase.NewSectionWalker(usecase.WalkerConfig{
		URLs:           sc.urls,
		StickyPolicy:   cfg.StickyPolicy,
		DetailDelayMin: detailMin,
		DetailDelayMax: detailMax,
	}, sc.fetcher, sc.extractor, st.posts, sc.enricher, usecase.NewBatchWriter(st.posts, m, logger), m, logger)
	recorder := usecase.NewExecutionRecorder(st.logs, m, logger)
	return usecase.NewCrawlRunner(lock, recorder, walker, cfg.Environment, logger)
}
