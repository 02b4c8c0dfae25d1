package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/crewplanner-backend/api/controllers"
	"github.com/angelmondragon/crewplanner-backend/api/middleware"
	"github.com/angelmondragon/crewplanner-backend/pkg/config"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
)

// NewRouter mounts health, metrics and planner routes. A nil gatherer hides /metrics.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	plannerService controllers.PlannerService,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisP,
		}))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/planner", func(r chi.Router) {
		r.Get("/utilization", controllers.PlannerUtilization(plannerService, logg))
		r.Get("/violations", controllers.PlannerViolations(plannerService, logg))
		r.Post("/rebalance", controllers.PlannerRebalance(plannerService, logg))
		r.Post("/slots", controllers.PlannerSlots(plannerService, logg))
		r.Post("/crews/{crewId}/routes/{date}", controllers.PlannerRoute(plannerService, logg))
	})

	return r
}
