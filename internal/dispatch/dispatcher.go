package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/crewplanner-backend/pkg/config"
	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/metrics"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type DispatcherParams struct {
	Config           config.OutboxConfig
	Logger           *logger.Logger
	DB               txRunner
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory PublisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Dispatcher moves committed outbox rows onto Pub/Sub. A row that can never be decoded, or
// that keeps failing until MaxAttempts, is parked in outbox_dlq.
type Dispatcher struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRepository
	pubsub      pubSubClient
	registry    registryResolver
	dlq         dlqRepository
	publishers  PublisherFactory
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	pace        *pacer
	now         func() time.Time
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("database client required")
	case params.PubSub == nil && params.PublisherFactory == nil:
		return nil, errors.New("pubsub client required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	case params.Registry == nil:
		return nil, errors.New("event registry required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository required")
	}

	publishers := params.PublisherFactory
	if publishers == nil {
		publishers = topicPublishers(params.PubSub)
	}
	cfg := params.Config
	poll := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Dispatcher{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		pubsub:      params.PubSub,
		registry:    params.Registry,
		dlq:         params.DLQRepository,
		publishers:  publishers,
		metrics:     params.Metrics,
		batchSize:   positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pace:        newPacer(poll),
		now:         time.Now,
	}, nil
}

// Run drains the outbox until ctx ends. An empty batch waits one poll interval; a failed batch
// waits progressively longer.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.checkDependencies(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			d.logg.Info(ctx, "outbox dispatcher stopping")
			return err
		}

		busy, err := d.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			d.logg.Error(ctx, "outbox batch failed", err)
			wait = d.pace.failed()
		case busy:
			d.pace.reset()
			continue
		default:
			wait = d.pace.idle()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) checkDependencies(ctx context.Context) error {
	if err := d.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if d.pubsub != nil {
		if err := d.pubsub.Ping(ctx); err != nil {
			return fmt.Errorf("pubsub ping: %w", err)
		}
	}
	return nil
}

// processBatch locks up to batchSize rows in one transaction and settles each of them. It
// reports whether any row was fetched.
func (d *Dispatcher) processBatch(ctx context.Context) (bool, error) {
	var fetched int
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := d.repo.FetchUnpublishedForPublish(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		fetched = len(rows)
		d.metrics.ObserveBatch(fetched)
		for _, row := range rows {
			result, err := d.deliver(ctx, tx, row)
			if err != nil {
				return err
			}
			d.metrics.IncOutcome(string(row.EventType), string(result))
		}
		return nil
	})
	return fetched > 0, err
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
