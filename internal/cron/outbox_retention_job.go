package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
)

const (
	defaultEventRetentionDays = 30
	defaultDLQRetentionDays   = 90
	defaultParkedAttempts     = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedEventPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterPurger interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the outbox cleanup. MinAttempts should match the
// dispatcher's terminal attempt count so parked rows are purged too. DLQ is optional.
type OutboxRetentionJobParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Events           publishedEventPurger
	DLQ              deadLetterPurger
	RetentionDays    int
	DLQRetentionDays int
	MinAttempts      int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:          params.Logger,
		db:            params.DB,
		events:        params.Events,
		dlq:           params.DLQ,
		eventDays:     orDefault(params.RetentionDays, defaultEventRetentionDays),
		dlqDays:       orDefault(params.DLQRetentionDays, defaultDLQRetentionDays),
		parkedAttempt: orDefault(params.MinAttempts, defaultParkedAttempts),
		now:           time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg          *logger.Logger
	db            txRunner
	events        publishedEventPurger
	dlq           deadLetterPurger
	eventDays     int
	dlqDays       int
	parkedAttempt int
	now           func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff := now.AddDate(0, 0, -j.eventDays)
	dlqCutoff := now.AddDate(0, 0, -j.dlqDays)

	var events, parked int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.events.DeletePublishedBefore(ctx, tx, eventCutoff, j.parkedAttempt); err != nil {
			return fmt.Errorf("events: %w", err)
		}
		if j.dlq == nil {
			return nil
		}
		if parked, err = j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("dlq: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"event_cutoff":   eventCutoff,
		"events_deleted": events,
		"dlq_cutoff":     dlqCutoff,
		"dlq_deleted":    parked,
	}), "outbox retention cleanup complete")
	return nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
