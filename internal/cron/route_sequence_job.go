package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/crewplanner-backend/internal/capacity"
	"github.com/angelmondragon/crewplanner-backend/internal/planner"
	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
)

type routeSequencer interface {
	SequenceRoute(ctx context.Context, crewID uuid.UUID, day time.Time, apply bool) (*planner.RouteResult, error)
}

type crewLister interface {
	ListCrews(ctx context.Context) ([]models.Crew, error)
}

// RouteSequenceJobParams configure the job that fixes tomorrow's visiting order for every
// active crew.
type RouteSequenceJobParams struct {
	Logger    *logger.Logger
	Planner   routeSequencer
	Crews     crewLister
	DaysAhead int
}

func NewRouteSequenceJob(params RouteSequenceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Planner == nil {
		return nil, fmt.Errorf("planner required")
	}
	if params.Crews == nil {
		return nil, fmt.Errorf("crew lister required")
	}
	ahead := params.DaysAhead
	if ahead <= 0 {
		ahead = 1
	}
	return &routeSequenceJob{
		logg:    params.Logger,
		planner: params.Planner,
		crews:   params.Crews,
		ahead:   ahead,
		now:     time.Now,
	}, nil
}

type routeSequenceJob struct {
	logg    *logger.Logger
	planner routeSequencer
	crews   crewLister
	ahead   int
	now     func() time.Time
}

func (j *routeSequenceJob) Name() string { return "route-sequence" }

func (j *routeSequenceJob) Run(ctx context.Context) error {
	day := capacity.DayOf(j.now()).AddDate(0, 0, j.ahead)
	crews, err := j.crews.ListCrews(ctx)
	if err != nil {
		return fmt.Errorf("list crews: %w", err)
	}

	var errs error
	routed, stops := 0, 0
	for _, crew := range crews {
		if !crew.Active {
			continue
		}
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		res, err := j.planner.SequenceRoute(ctx, crew.ID, day, true)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("crew %s: %w", crew.ID, err))
			continue
		}
		if res.Applied {
			routed++
			stops += len(res.Stops)
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"day":    day.Format(time.DateOnly),
		"routed": routed,
		"stops":  stops,
		"failed": len(multierr.Errors(errs)),
	}), "route sequencing complete")
	return errs
}
