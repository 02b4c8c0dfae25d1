package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox/registry"
)

const publishTimeout = 15 * time.Second

type outcome string

const (
	outcomePublished    outcome = "published"
	outcomeRetry        outcome = "retry"
	outcomeDeadLettered outcome = "dead_lettered"
)

// deliver publishes one row and records what happened to it. Publish failures end in a retry
// or a dead letter; only bookkeeping failures are returned, which rolls the batch back.
func (d *Dispatcher) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	resolved, err := d.registry.Resolve(row)
	if err != nil {
		return outcomeDeadLettered, d.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, d.rowFields(row, nil))
	}
	fields := d.rowFields(row, resolved)

	pubErr := d.publish(ctx, row, resolved)
	if pubErr == nil {
		if err := d.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		d.logg.Info(d.logg.WithFields(ctx, fields), "outbox event published")
		return outcomePublished, nil
	}

	var permanent registry.NonRetryableError
	if errors.As(pubErr, &permanent) {
		return outcomeDeadLettered, d.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, pubErr, fields)
	}

	attempt := row.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= d.maxAttempts {
		exhausted := fmt.Errorf("gave up after %d attempts: %w", attempt, pubErr)
		return outcomeDeadLettered, d.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, exhausted, fields)
	}

	fields["error"] = pubErr.Error()
	d.logg.Warn(d.logg.WithFields(ctx, fields), "outbox publish failed, will retry")
	if err := d.repo.MarkFailedTx(tx, row.ID, pubErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	return outcomeRetry, nil
}

func (d *Dispatcher) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	msg := cause.Error()
	fields["error_reason"] = reason
	fields["error"] = msg
	d.logg.Warn(d.logg.WithFields(ctx, fields), "outbox event dead-lettered")

	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      d.now().UTC(),
	}
	if err := d.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := d.repo.MarkTerminalTx(tx, row.ID, cause, d.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := d.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: messageAttributes(row, resolved),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("topic %q returned no publish result", topic))
	}
	_, err := result.Get(ctx)
	return err
}

// messageAttributes carries the envelope metadata and the crew ids subscribers filter on.
func messageAttributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
	}
	if actor := resolved.Envelope.Actor; actor != nil && actor.Kind != "" {
		attrs["actor_kind"] = actor.Kind
	}
	switch p := resolved.Payload.(type) {
	case *payloads.JobReassignedEvent:
		attrs["from_crew_id"] = p.FromCrewID.String()
		attrs["to_crew_id"] = p.ToCrewID.String()
		attrs["scheduled_date"] = p.ScheduledDate.Format(time.DateOnly)
	case *payloads.RouteSequencedEvent:
		attrs["crew_id"] = p.CrewID.String()
		attrs["day"] = p.Day.Format(time.DateOnly)
	}
	return attrs
}

func (d *Dispatcher) rowFields(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	if resolved == nil {
		return fields
	}
	fields["event_id"] = resolved.Envelope.EventID
	if topic := resolved.Descriptor.Topic; topic != "" {
		fields["topic"] = topic
	}
	return fields
}
