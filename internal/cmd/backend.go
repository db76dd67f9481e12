package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/skorper/harmony/internal/cache"
	"github.com/skorper/harmony/internal/cloud"
	"github.com/skorper/harmony/internal/config"
	"github.com/skorper/harmony/internal/service"
	"github.com/skorper/harmony/internal/store"
	"github.com/skorper/harmony/pkg/models"
)

// keyStore is the API key surface the keys commands use.
type keyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, username string) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// jobAdmin is the job surface the jobs commands use.
type jobAdmin interface {
	ListJobs(ctx context.Context, username string, page, limit int) (*store.JobPage, error)
	ListAllJobs(ctx context.Context, page, limit int) (*store.JobPage, error)
	AdminGetJob(ctx context.Context, requestID uuid.UUID) (*models.Job, error)
	AdminCancelJob(ctx context.Context, requestID uuid.UUID) (*models.Job, error)
	FailStalledJobs(ctx context.Context, minutes, batchSize int) (int, error)
}

type backend struct {
	keys    keyStore
	jobs    jobAdmin
	urlRoot string
	close   func()
}

// openBackend is replaced in tests.
var openBackend = connectBackend

func connectBackend(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create redis cache: %w", err)
	}

	region, err := cloud.ResolveRegion(ctx, cfg.AWS.DefaultRegion)
	if err != nil {
		pool.Close()
		_ = redisCache.Close()
		return nil, fmt.Errorf("resolve aws region: %w", err)
	}

	pgStore := store.NewPostgresStore(pool)
	jobs := store.NewJobRepository(models.NewJobSettings(region))

	return &backend{
		keys:    pgStore,
		jobs:    service.NewJobService(pgStore, jobs, redisCache, cfg.Jobs.CacheTTL),
		urlRoot: cfg.Server.URLRoot,
		close: func() {
			_ = redisCache.Close()
			pool.Close()
		},
	}, nil
}
