package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/crewplanner-backend/internal/capacity"
	"github.com/angelmondragon/crewplanner-backend/internal/eligibility"
	"github.com/angelmondragon/crewplanner-backend/internal/reassign"
	"github.com/angelmondragon/crewplanner-backend/internal/routing"
	"github.com/angelmondragon/crewplanner-backend/internal/slots"
	"github.com/angelmondragon/crewplanner-backend/internal/territory"
	"github.com/angelmondragon/crewplanner-backend/pkg/config"
	pkgdb "github.com/angelmondragon/crewplanner-backend/pkg/db"
	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/metrics"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/crewplanner-backend/pkg/types"
)

// ServiceParams wires the planner. Committer, Recommender, Geocoder and Metrics are optional;
// without a Committer rebalances can only run dry and without a Recommender slots are refused.
type ServiceParams struct {
	Logger      *logger.Logger
	Repo        Repository
	DB          txRunner
	Outbox      outboxEmitter
	Committer   committer
	Recommender recommender
	Geocoder    routing.Geocoder
	Metrics     *metrics.PlannerMetrics
	Config      config.PlannerConfig
}

// Service fetches a snapshot, runs the engine on it and persists the outcome.
type Service struct {
	logg        *logger.Logger
	repo        Repository
	db          txRunner
	outbox      outboxEmitter
	committer   committer
	recommender recommender
	geocoder    routing.Geocoder
	metrics     *metrics.PlannerMetrics
	cfg         config.PlannerConfig
	startRule   routing.StartRule
	now         func() time.Time
}

// NewService validates dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	rule, err := routing.ParseStartRule(params.Config.RouteStartRule)
	if err != nil {
		return nil, err
	}
	return &Service{
		logg:        params.Logger,
		repo:        params.Repo,
		db:          params.DB,
		outbox:      params.Outbox,
		committer:   params.Committer,
		recommender: params.Recommender,
		geocoder:    params.Geocoder,
		metrics:     params.Metrics,
		cfg:         params.Config,
		startRule:   rule,
		now:         time.Now,
	}, nil
}

type reference struct {
	graph  *territory.Graph
	roster *capacity.Roster
}

func (s *Service) loadReference(ctx context.Context) (*reference, error) {
	areas, err := s.repo.ListAreas(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list areas")
	}
	crews, err := s.repo.ListCrews(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list crews")
	}
	schedules, err := s.repo.ListSchedules(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list crew schedules")
	}
	graph, err := territory.NewGraph(areas)
	if err != nil {
		return nil, err
	}
	roster, err := capacity.NewRoster(crews, schedules, capacity.Options{
		OpenUnrestricted: s.cfg.OpenUnrestricted(),
		Canonical:        graph.Canonical,
	})
	if err != nil {
		return nil, err
	}
	return &reference{graph: graph, roster: roster}, nil
}

func normalizeRange(r DateRange) (DateRange, error) {
	if r.From.IsZero() || r.To.IsZero() {
		return r, pkgerrors.New(pkgerrors.CodeValidation, "from and to are required")
	}
	out := DateRange{From: capacity.DayOf(r.From), To: capacity.DayOf(r.To)}
	if out.To.Before(out.From) {
		return r, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	if out.To.Sub(out.From) >= maxRangeDays*24*time.Hour {
		return r, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("range must not exceed %d days", maxRangeDays))
	}
	return out, nil
}

func (s *Service) listJobs(ctx context.Context, r DateRange) ([]models.Job, error) {
	jobs, err := s.repo.ListJobsBetween(ctx, r.From, r.To)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list jobs")
	}
	return jobs, nil
}

// Utilization returns per crew-day totals of active work in the range, including crew-days
// with no work for active crews.
func (s *Service) Utilization(ctx context.Context, r DateRange) ([]UtilizationRow, error) {
	r, err := normalizeRange(r)
	if err != nil {
		return nil, err
	}
	ref, err := s.loadReference(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := s.listJobs(ctx, r)
	if err != nil {
		return nil, err
	}
	util := capacity.Aggregate(jobs, r.From, r.To, nil)

	rows := []UtilizationRow{}
	for day := r.From; !day.After(r.To); day = day.AddDate(0, 0, 1) {
		for _, crew := range ref.roster.ActiveCrews() {
			total := util.Get(crew.ID, day)
			rows = append(rows, UtilizationRow{
				CrewID:       crew.ID,
				CrewName:     crew.Name,
				Day:          day,
				Total:        total,
				Ceiling:      crew.MaxDailyProduction,
				Remaining:    crew.MaxDailyProduction.Sub(total),
				OverCapacity: total.GreaterThan(crew.MaxDailyProduction),
			})
		}
	}
	return rows, nil
}

// DetectViolations lists wrong-area and over-capacity jobs in the range.
func (s *Service) DetectViolations(ctx context.Context, r DateRange) ([]eligibility.Violation, error) {
	r, err := normalizeRange(r)
	if err != nil {
		return nil, err
	}
	ref, err := s.loadReference(ctx)
	if err != nil {
		return nil, err
	}
	violations, _, err := s.detect(ctx, ref, r)
	return violations, err
}

func (s *Service) detect(ctx context.Context, ref *reference, r DateRange) ([]eligibility.Violation, capacity.Utilization, error) {
	jobs, err := s.listJobs(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	util := capacity.Aggregate(jobs, r.From, r.To, nil)
	violations := eligibility.Detect(jobs, ref.roster, ref.graph, util, r.From)
	for reason, n := range eligibility.CountByReason(violations) {
		s.metrics.AddViolations(string(reason), n)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"from":       r.From.Format(time.DateOnly),
		"to":         r.To.Format(time.DateOnly),
		"jobs":       len(jobs),
		"violations": len(violations),
	}), "violation detection finished")
	return violations, util, nil
}

// Rebalance detects violations, plans reassignments and commits them when asked to.
func (s *Service) Rebalance(ctx context.Context, input RebalanceInput) (*RebalanceResult, error) {
	r, err := normalizeRange(input.DateRange)
	if err != nil {
		return nil, err
	}
	if input.Commit && s.committer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reassignment commits are not configured")
	}
	ref, err := s.loadReference(ctx)
	if err != nil {
		return nil, err
	}
	violations, util, err := s.detect(ctx, ref, r)
	if err != nil {
		return nil, err
	}
	plan := reassign.Propose(violations, ref.roster, util)
	s.metrics.AddUnassignable(len(plan.Unassignable))

	result := &RebalanceResult{Violations: violations, Plan: plan}
	if !input.Commit || len(plan.Reassignments) == 0 {
		return result, nil
	}

	results, err := s.committer.Commit(ctx, plan.Reassignments, input.Actor)
	if err != nil {
		return nil, err
	}
	result.Committed = true
	result.Results = results
	for _, res := range results {
		if res.Committed {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

// RecommendSlots offers crew-days for a prospective job.
func (s *Service) RecommendSlots(ctx context.Context, req slots.Request) (*slots.Result, error) {
	if s.recommender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "slot recommender not configured")
	}
	if req.From.IsZero() {
		req.From = s.now()
	}
	req.From = capacity.DayOf(req.From)
	if req.HorizonDays == 0 {
		req.HorizonDays = s.cfg.SlotHorizonDays
	}
	if req.HorizonDays < 0 || req.HorizonDays > slots.MaxHorizonDays {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("horizonDays must be between 1 and %d", slots.MaxHorizonDays))
	}

	serviceNames, err := s.checkServices(ctx, req.ServiceIDs)
	if err != nil {
		return nil, err
	}

	ref, err := s.loadReference(ctx)
	if err != nil {
		return nil, err
	}
	window := DateRange{From: req.From, To: req.From.AddDate(0, 0, req.HorizonDays-1)}
	jobs, err := s.listJobs(ctx, window)
	if err != nil {
		return nil, err
	}
	return s.recommender.Recommend(ctx, req, slots.Snapshot{
		Roster:       ref.roster,
		Graph:        ref.graph,
		Util:         capacity.Aggregate(jobs, window.From, window.To, nil),
		ServiceNames: serviceNames,
	})
}

// checkServices rejects service ids that are not in the catalogue and returns the names of
// the ones that are.
func (s *Service) checkServices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	known, err := s.repo.ListServicesByID(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list services")
	}
	found := make(map[uuid.UUID]string, len(known))
	for _, svc := range known {
		found[svc.ID] = svc.Name
	}
	var unknown []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			unknown = append(unknown, id.String())
		}
	}
	if len(unknown) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown service ids").
			WithDetails(map[string]any{"serviceIds": unknown})
	}
	return found, nil
}

// SequenceRoute orders one crew-day. With apply the route orders, any newly geocoded
// locations and a route_sequenced event are written in one transaction.
func (s *Service) SequenceRoute(ctx context.Context, crewID uuid.UUID, day time.Time, apply bool) (*RouteResult, error) {
	if crewID == uuid.Nil || day.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "crew and day are required")
	}
	day = capacity.DayOf(day)
	ctx = s.logg.WithCrewID(ctx, crewID.String())

	if _, err := s.repo.FindCrew(ctx, crewID); err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "crew not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load crew")
	}
	jobs, err := s.repo.ListCrewDayJobs(ctx, crewID, day)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list crew day jobs")
	}

	var filled []uuid.UUID
	if s.cfg.GeocodeMissing {
		filled = routing.FillLocations(ctx, s.geocoder, s.logg, jobs)
	}
	order := routing.Sequence(jobs, s.startRule)
	positions := routing.Assign(order)

	byID := make(map[uuid.UUID]models.Job, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
	}
	result := &RouteResult{
		CrewID:   crewID,
		Day:      day,
		Stops:    make([]RouteStop, 0, len(order)),
		Geocoded: filled,
	}
	if result.Geocoded == nil {
		result.Geocoded = []uuid.UUID{}
	}
	for _, id := range order {
		job := byID[id]
		result.Stops = append(result.Stops, RouteStop{
			JobID:      id,
			RouteOrder: positions[id],
			Address:    job.Address,
			Geocoded:   job.Geocoded(),
		})
	}
	if !apply || len(order) == 0 {
		return result, nil
	}

	at := s.now().UTC()
	locations := make(map[uuid.UUID]types.GeographyPoint, len(filled))
	for _, id := range filled {
		locations[id] = *byID[id].Location
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.UpdateRouteOrdersWithTx(tx, positions, at); err != nil {
			return err
		}
		if len(locations) > 0 {
			if err := s.repo.UpdateJobLocationsWithTx(tx, locations, at); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRouteSequenced,
			AggregateType: enums.AggregateCrew,
			AggregateID:   crewID,
			Data: payloads.RouteSequencedEvent{
				CrewID: crewID,
				Day:    day,
				JobIDs: order,
			},
			Version:    1,
			OccurredAt: at,
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply route")
	}
	result.Applied = true
	s.metrics.IncRoutes()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"day":   day.Format(time.DateOnly),
		"stops": len(order),
	}), "route applied")
	return result, nil
}
