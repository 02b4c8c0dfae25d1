package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/crewplanner-backend/internal/capacity"
	"github.com/angelmondragon/crewplanner-backend/internal/planner"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox"
)

const defaultScanDays = 14

type rebalancer interface {
	Rebalance(ctx context.Context, input planner.RebalanceInput) (*planner.RebalanceResult, error)
}

// ViolationScanJobParams configure the nightly violation scan. With AutoCommit the proposed
// reassignments are written, otherwise the plan is only logged.
type ViolationScanJobParams struct {
	Logger     *logger.Logger
	Planner    rebalancer
	ScanDays   int
	AutoCommit bool
}

func NewViolationScanJob(params ViolationScanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Planner == nil {
		return nil, fmt.Errorf("planner required")
	}
	days := params.ScanDays
	if days <= 0 {
		days = defaultScanDays
	}
	return &violationScanJob{
		logg:       params.Logger,
		planner:    params.Planner,
		days:       days,
		autoCommit: params.AutoCommit,
		now:        time.Now,
	}, nil
}

type violationScanJob struct {
	logg       *logger.Logger
	planner    rebalancer
	days       int
	autoCommit bool
	now        func() time.Time
}

func (j *violationScanJob) Name() string { return "violation-scan" }

func (j *violationScanJob) Run(ctx context.Context) error {
	from := capacity.DayOf(j.now())
	to := from.AddDate(0, 0, j.days-1)
	res, err := j.planner.Rebalance(ctx, planner.RebalanceInput{
		DateRange: planner.DateRange{From: from, To: to},
		Commit:    j.autoCommit,
		Actor:     &outbox.ActorRef{Kind: "cron", Name: j.Name()},
	})
	if err != nil {
		return fmt.Errorf("violation scan: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"from":          from.Format(time.DateOnly),
		"to":            to.Format(time.DateOnly),
		"violations":    len(res.Violations),
		"proposed":      len(res.Plan.Reassignments),
		"unassignable":  len(res.Plan.Unassignable),
		"resolved":      len(res.Plan.Resolved),
		"committed":     res.Succeeded,
		"commit_failed": res.Failed,
	})
	for _, u := range res.Plan.Unassignable {
		j.logg.Warn(j.logg.WithFields(logCtx, map[string]any{
			"job_id":     u.Violation.Job.ID.String(),
			"reason":     string(u.Violation.Reason),
			"diagnostic": u.Diagnostic,
		}), "violation has no alternative crew")
	}
	j.logg.Info(logCtx, "violation scan complete")

	var failures error
	for _, item := range res.Results {
		if item.Err != nil {
			failures = multierr.Append(failures, fmt.Errorf("job %s: %w", item.JobID, item.Err))
		}
	}
	if failures != nil {
		return fmt.Errorf("violation scan commit: %w", failures)
	}
	return nil
}
