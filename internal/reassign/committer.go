package reassign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/metrics"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox/payloads"
	pkgredis "github.com/angelmondragon/crewplanner-backend/pkg/redis"
)

// JobWriter persists a single reassignment. ReassignJobWithTx must only move the job when it
// is still assigned to fromCrewID and report CodeConflict otherwise.
type JobWriter interface {
	ReassignJobWithTx(tx *gorm.DB, jobID, fromCrewID, toCrewID uuid.UUID, at time.Time) error
	InsertAssignmentWithTx(tx *gorm.DB, assignment *models.CrewAssignment) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// LockFactory builds a fresh lock per commit batch.
type LockFactory func() (pkgredis.Lock, error)

// CommitterParams wires the committer. NewLock and Metrics are optional.
type CommitterParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Jobs    JobWriter
	Outbox  outboxEmitter
	NewLock LockFactory
	Metrics *metrics.PlannerMetrics
}

// Committer applies reassignments, one transaction per job.
type Committer struct {
	logg    *logger.Logger
	db      txRunner
	jobs    JobWriter
	outbox  outboxEmitter
	newLock LockFactory
	metrics *metrics.PlannerMetrics
	now     func() time.Time
}

// CommitResult is the per-job outcome of a commit. Retryable marks a transient failure the
// caller may resubmit.
type CommitResult struct {
	JobID      uuid.UUID `json:"jobId"`
	FromCrewID uuid.UUID `json:"fromCrewId"`
	ToCrewID   uuid.UUID `json:"toCrewId"`
	Committed  bool      `json:"committed"`
	Err        error     `json:"-"`
	Error      string    `json:"error,omitempty"`
	Retryable  bool      `json:"retryable,omitempty"`
}

// NewCommitter validates dependencies.
func NewCommitter(params CommitterParams) (*Committer, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Jobs == nil {
		return nil, fmt.Errorf("job writer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Committer{
		logg:    params.Logger,
		db:      params.DB,
		jobs:    params.Jobs,
		outbox:  params.Outbox,
		newLock: params.NewLock,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

// Commit writes every reassignment in its own transaction so one failure does not undo the
// others. The returned error is reserved for batch-level problems: a held commit lock is
// CodeConflict and an unreachable lock store is CodeDependency.
func (c *Committer) Commit(ctx context.Context, items []Reassignment, actor *outbox.ActorRef) ([]CommitResult, error) {
	if len(items) == 0 {
		return []CommitResult{}, nil
	}
	if c.newLock != nil {
		lock, err := c.newLock()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build commit lock")
		}
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire commit lock")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "another reassignment commit is in progress")
		}
		defer func() {
			if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
				c.logg.Error(ctx, "failed to release commit lock", relErr)
			}
		}()
	}

	results := make([]CommitResult, 0, len(items))
	var failures error
	for _, item := range items {
		res := CommitResult{
			JobID:      item.Violation.Job.ID,
			FromCrewID: item.FromCrewID,
			ToCrewID:   item.ToCrewID,
		}
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Err = c.commitOne(ctx, item, actor)
		}
		if res.Err != nil {
			res.Error = res.Err.Error()
			res.Retryable = pkgerrors.IsRetryable(res.Err)
			failures = multierr.Append(failures, fmt.Errorf("job %s: %w", res.JobID, res.Err))
			c.metrics.IncReassignment("failed")
		} else {
			res.Committed = true
			c.metrics.IncReassignment("committed")
		}
		results = append(results, res)
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"requested": len(items),
		"failed":    len(multierr.Errors(failures)),
	})
	if failures != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", failures.Error()), "reassignment commit finished with failures")
	} else {
		c.logg.Info(logCtx, "reassignment commit finished")
	}
	return results, nil
}

func (c *Committer) commitOne(ctx context.Context, item Reassignment, actor *outbox.ActorRef) error {
	job := item.Violation.Job
	at := c.now().UTC()
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := c.jobs.ReassignJobWithTx(tx, job.ID, item.FromCrewID, item.ToCrewID, at); err != nil {
			return err
		}
		from := item.FromCrewID
		if err := c.jobs.InsertAssignmentWithTx(tx, &models.CrewAssignment{
			ID:         uuid.New(),
			JobID:      job.ID,
			FromCrewID: &from,
			ToCrewID:   item.ToCrewID,
			Reason:     item.Violation.Reason,
			AssignedAt: at,
		}); err != nil {
			return err
		}
		return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventJobReassigned,
			AggregateType: enums.AggregateJob,
			AggregateID:   job.ID,
			Actor:         actor,
			Data: payloads.JobReassignedEvent{
				JobID:         job.ID,
				FromCrewID:    item.FromCrewID,
				ToCrewID:      item.ToCrewID,
				ScheduledDate: item.Violation.Day,
				Value:         job.Value,
				Reason:        item.Violation.Reason,
			},
			Version:    1,
			OccurredAt: at,
		})
	})
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist reassignment")
}
