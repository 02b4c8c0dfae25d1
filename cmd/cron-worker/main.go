package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/crewplanner-backend/internal/bootstrap"
	"github.com/angelmondragon/crewplanner-backend/internal/cron"
	"github.com/angelmondragon/crewplanner-backend/internal/planner"
	"github.com/angelmondragon/crewplanner-backend/internal/reassign"
	"github.com/angelmondragon/crewplanner-backend/internal/routing"
	"github.com/angelmondragon/crewplanner-backend/pkg/config"
	"github.com/angelmondragon/crewplanner-backend/pkg/db"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/maps"
	"github.com/angelmondragon/crewplanner-backend/pkg/metrics"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox"
	"github.com/angelmondragon/crewplanner-backend/pkg/redis"
)

const lockKeyFormat = "crewplanner:cron-worker:lock:%s"

func main() {
	rt := bootstrap.MustStart("cron-worker")
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger
	ctx, stop := rt.SignalContext()
	defer stop()

	dbClient, err := rt.Database(ctx)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap database", err)
	}
	redisClient, err := rt.Redis(ctx)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap redis", err)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	plannerMetrics := metrics.NewPlannerMetrics(prometheus.DefaultRegisterer)

	lock, err := redis.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		rt.Fatal(ctx, "failed to create cron lock", err)
	}

	repo := planner.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	plannerSvc, err := buildPlanner(cfg, logg, dbClient, redisClient, repo, outboxRepo, plannerMetrics)
	if err != nil {
		rt.Fatal(ctx, "failed to create planner service", err)
	}
	jobs, err := buildJobs(cfg, logg, dbClient, repo, outboxRepo, plannerSvc)
	if err != nil {
		rt.Fatal(ctx, "failed to create cron jobs", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Jobs:       jobs,
		Lock:       lock,
		Metrics:    cronMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		rt.Fatal(ctx, "failed to create cron service", err)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()

	logg.Info(logg.WithField(ctx, "jobs", len(jobs)), "cron worker running")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Fatal(ctx, "cron worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "cron worker drained")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

// buildPlanner wires the planner without a slot recommender; the worker only rebalances and
// sequences routes.
func buildPlanner(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, repo planner.Repository, outboxRepo *outbox.Repository, plannerMetrics *metrics.PlannerMetrics) (*planner.Service, error) {
	outboxSvc := outbox.NewService(outboxRepo, logg)

	commitLock := func() (redis.Lock, error) {
		return redis.NewRedisLock(redisClient, redisClient.LockKey("planner-commit"), cfg.Planner.CommitLockTTL)
	}
	committer, err := reassign.NewCommitter(reassign.CommitterParams{
		Logger:  logg,
		DB:      dbClient,
		Jobs:    repo,
		Outbox:  outboxSvc,
		NewLock: commitLock,
		Metrics: plannerMetrics,
	})
	if err != nil {
		return nil, err
	}

	var geocoder routing.Geocoder
	if cfg.GoogleMaps.APIKey != "" {
		mapsClient, err := maps.NewClient(cfg.GoogleMaps.APIKey, maps.WithRegion(cfg.GoogleMaps.Region))
		if err != nil {
			return nil, err
		}
		geocoder = mapsClient
	}

	return planner.NewService(planner.ServiceParams{
		Logger:    logg,
		Repo:      repo,
		DB:        dbClient,
		Outbox:    outboxSvc,
		Committer: committer,
		Geocoder:  geocoder,
		Metrics:   plannerMetrics,
		Config:    cfg.Planner,
	})
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, repo planner.Repository, outboxRepo *outbox.Repository, plannerSvc *planner.Service) ([]cron.Job, error) {
	scan, err := cron.NewViolationScanJob(cron.ViolationScanJobParams{
		Logger:     logg,
		Planner:    plannerSvc,
		ScanDays:   cfg.Cron.ScanDays,
		AutoCommit: cfg.Cron.AutoCommit,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Events:           outboxRepo,
		DLQ:              outbox.NewDLQRepository(dbClient.DB()),
		RetentionDays:    cfg.Outbox.RetentionDays,
		DLQRetentionDays: cfg.Outbox.DLQRetentionDays,
		MinAttempts:      cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	jobs := []cron.Job{scan, retention}

	if cfg.Cron.SequenceRoute {
		routes, err := cron.NewRouteSequenceJob(cron.RouteSequenceJobParams{
			Logger:    logg,
			Planner:   plannerSvc,
			Crews:     repo,
			DaysAhead: 1,
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, routes)
	}
	return jobs, nil
}
