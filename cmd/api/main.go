package main

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/crewplanner-backend/api/routes"
	"github.com/angelmondragon/crewplanner-backend/internal/bootstrap"
	"github.com/angelmondragon/crewplanner-backend/internal/oracle"
	"github.com/angelmondragon/crewplanner-backend/internal/planner"
	"github.com/angelmondragon/crewplanner-backend/internal/reassign"
	"github.com/angelmondragon/crewplanner-backend/internal/routing"
	"github.com/angelmondragon/crewplanner-backend/internal/slots"
	"github.com/angelmondragon/crewplanner-backend/pkg/config"
	"github.com/angelmondragon/crewplanner-backend/pkg/db"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/maps"
	"github.com/angelmondragon/crewplanner-backend/pkg/metrics"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox"
	"github.com/angelmondragon/crewplanner-backend/pkg/redis"
)

func main() {
	rt := bootstrap.MustStart("api")
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	plannerMetrics := metrics.NewPlannerMetrics(registry)

	plannerSvc, err := buildPlanner(cfg, logg, dbClient, redisClient, plannerMetrics)
	if err != nil {
		rt.Fatal(ctx, "failed to create planner service", err)
	}

	port := cmp.Or(os.Getenv("PORT"), cfg.App.Port)
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"addr":     addr,
		"instance": cmp.Or(os.Getenv("DYNO"), "local"),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, plannerSvc, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "api server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		rt.Fatal(ctx, "api server stopped unexpectedly", err)
	}
	logg.Info(ctx, "api server drained")
}

func buildPlanner(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, plannerMetrics *metrics.PlannerMetrics) (*planner.Service, error) {
	repo := planner.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

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

	recommenderParams := slots.RecommenderParams{
		Logger:         logg,
		Metrics:        plannerMetrics,
		OracleTimeout:  cfg.Planner.OracleTimeout,
		CandidateLimit: cfg.Planner.OracleCandidateLimit,
		FallbackCount:  cfg.Planner.SlotFallbackCount,
		DefaultHorizon: cfg.Planner.SlotHorizonDays,
	}
	if oracleClient := oracle.New(cfg.OpenAI, nil); oracleClient != nil {
		recommenderParams.Oracle = oracleClient
		if cfg.Planner.OracleRateLimit > 0 {
			limiter, err := redis.NewWindowLimiter(redisClient, "oracle", int64(cfg.Planner.OracleRateLimit), time.Minute)
			if err != nil {
				return nil, err
			}
			recommenderParams.Limiter = limiter
		}
	} else {
		logg.Warn(context.Background(), "openai api key not set, slot recommendations use the fallback only")
	}
	recommender, err := slots.NewRecommender(recommenderParams)
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
		Logger:      logg,
		Repo:        repo,
		DB:          dbClient,
		Outbox:      outboxSvc,
		Committer:   committer,
		Recommender: recommender,
		Geocoder:    geocoder,
		Metrics:     plannerMetrics,
		Config:      cfg.Planner,
	})
}
