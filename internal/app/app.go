// Package app wires configuration, storage and services into the object
// graph shared by the pulse CLI and the API server.
package app

import (
	"context"

	"github.com/community-pulse/internal/config"
	"github.com/community-pulse/internal/hive"
	"github.com/community-pulse/internal/logging"
	"github.com/community-pulse/internal/report"
	"github.com/community-pulse/internal/service"
	"github.com/community-pulse/internal/storage"
)

// App holds every long-lived dependency
type App struct {
	Config *config.Config

	Postgres   *storage.PostgresDB
	Redis      *storage.RedisCache
	ClickHouse *storage.ClickHouseDB
	Hive       *hive.Client

	Store      *storage.PostgresStore
	Cache      *storage.StatsCache
	Lock       *storage.RedisRunLock
	Membership *service.MembershipService
	Activity   *service.ActivityService
	Stats      *service.CommunityStatsService
	Cleaner    *service.MaintenanceService
	Pipeline   *service.Pipeline
	Renderer   *report.Renderer

	logger *logging.Logger
}

// InitLogging configures the global logger from cfg
func InitLogging(cfg *config.Config) *logging.Logger {
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")
	return logger
}

// New connects to every configured backend and builds the services.
// ClickHouse is optional; everything else must be reachable.
func New(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, logger: logging.WithComponent("app")}

	a.logger.Info("Connecting to databases...")

	var err error
	if a.Postgres, err = storage.NewPostgresDB(&cfg.Database.Postgres); err != nil {
		return nil, err
	}
	if a.Redis, err = storage.NewRedisCache(&cfg.Database.Redis); err != nil {
		a.Close()
		return nil, err
	}

	// A nil interface, not a typed nil, disables archiving
	var archive service.OperationArchive
	if cfg.Database.ClickHouse.Enabled() {
		if a.ClickHouse, err = storage.NewClickHouseDB(&cfg.Database.ClickHouse); err != nil {
			a.Close()
			return nil, err
		}
		archive = storage.NewOperationArchive(a.ClickHouse)
	} else {
		a.logger.Info("ClickHouse not configured, operation archive disabled")
	}

	if a.Hive, err = hive.NewClient(cfg.Hive); err != nil {
		a.Close()
		return nil, err
	}

	a.logger.Info("Database connections established")

	a.Store = storage.NewPostgresStore(a.Postgres)
	a.Cache = storage.NewStatsCache(a.Redis, cfg.Database.Redis.StatsCacheTTL)
	a.Lock = storage.NewRedisRunLock(a.Redis, cfg.Database.Redis.RunLockTTL)

	a.Membership = service.NewMembershipService(a.Hive, a.Store, a.Store, cfg.Hive.Community)
	a.Activity = service.NewActivityService(a.Hive, a.Store, a.Store, archive)
	a.Stats = service.NewCommunityStatsService(a.Store, a.Store)
	a.Cleaner = service.NewMaintenanceService(a.Store, a.Store, cfg.Retention.Days)
	a.Pipeline = service.NewPipeline(service.PipelineConfig{
		Membership: a.Membership,
		Activity:   a.Activity,
		Stats:      a.Stats,
		Lock:       a.Lock,
		Cache:      a.Cache,
	})

	if a.Renderer, err = report.NewRenderer(cfg.Hive.Community, cfg.Report.LeaderboardSize); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// HealthChecks returns a ping per backend
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"postgres": a.Postgres.Ping,
		"redis":    a.Redis.Ping,
	}
	if a.ClickHouse != nil {
		checks["clickhouse"] = a.ClickHouse.Ping
	}
	return checks
}

// Close releases every connection that was opened
func (a *App) Close() {
	if a.Hive != nil {
		a.Hive.Close()
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.logger.WithError(err).Warn("Error closing ClickHouse")
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.WithError(err).Warn("Error closing Redis")
		}
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}
