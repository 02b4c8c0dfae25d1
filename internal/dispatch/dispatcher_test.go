package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/crewplanner-backend/pkg/config"
	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/metrics"
	"github.com/angelmondragon/crewplanner-backend/pkg/metrics/metricstest"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox/registry"
)

type harness struct {
	d   *Dispatcher
	rep *fakeRepo
	pub *fakePublisher
	dlq *fakeDLQRepo
	reg *prometheus.Registry
}

func newHarness(t *testing.T, rows []models.OutboxEvent, resolver registryResolver, results ...PublishResult) *harness {
	t.Helper()
	h := &harness{
		rep: &fakeRepo{events: rows},
		pub: &fakePublisher{results: results},
		dlq: &fakeDLQRepo{},
		reg: prometheus.NewRegistry(),
	}
	d, err := NewDispatcher(DispatcherParams{
		Config:           config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 3},
		Logger:           logger.New(logger.Options{ServiceName: "dispatch-test", Output: io.Discard}),
		DB:               fakeDB{},
		Repository:       h.rep,
		Registry:         resolver,
		PublisherFactory: func(string) Publisher { return h.pub },
		DLQRepository:    h.dlq,
		Metrics:          metrics.NewOutboxMetrics(h.reg),
	})
	require.NoError(t, err)
	d.now = func() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) }
	h.d = d
	return h
}

func (h *harness) outcomes(t *testing.T, result outcome) float64 {
	t.Helper()
	return metricstest.Value(t, h.reg, "outbox_dispatch_total", map[string]string{
		"event_type": string(enums.EventJobReassigned),
		"outcome":    string(result),
	})
}

func TestProcessBatchSettlesEachRow(t *testing.T) {
	rows := []models.OutboxEvent{reassignedRow(t, 0), reassignedRow(t, 0)}
	h := newHarness(t, rows, &fakeRegistry{resolved: reassignedResolution()},
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	)

	busy, err := h.d.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, busy)
	require.Equal(t, []uuid.UUID{rows[0].ID}, h.rep.failed)
	require.Equal(t, []uuid.UUID{rows[1].ID}, h.rep.published)
	require.Empty(t, h.dlq.entries)
	require.Equal(t, 1.0, h.outcomes(t, outcomeRetry))
	require.Equal(t, 1.0, h.outcomes(t, outcomePublished))
}

func TestProcessBatchEmptyIsIdle(t *testing.T) {
	h := newHarness(t, nil, &fakeRegistry{})

	busy, err := h.d.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, busy)
}

func TestProcessBatchDeadLetters(t *testing.T) {
	cases := map[string]struct {
		attempts int
		resolver registryResolver
		results  []PublishResult
		noTopic  bool
		reason   enums.OutboxDLQErrorReason
		message  string
	}{
		"undecodable payload": {
			resolver: &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))},
			reason:   enums.OutboxDLQReasonNonRetryable,
			message:  "invalid payload",
		},
		"attempts exhausted": {
			attempts: 2,
			resolver: &fakeRegistry{resolved: reassignedResolution()},
			results:  []PublishResult{fakePublishResult{err: errors.New("unavailable")}},
			reason:   enums.OutboxDLQReasonMaxAttempts,
			message:  "gave up after 3 attempts: unavailable",
		},
		"permanent publish error": {
			resolver: &fakeRegistry{resolved: reassignedResolution()},
			results:  []PublishResult{fakePublishResult{err: registry.NewNonRetryableError(errors.New("rejected"))}},
			reason:   enums.OutboxDLQReasonNonRetryable,
			message:  "rejected",
		},
		"unknown topic": {
			resolver: &fakeRegistry{resolved: reassignedResolution()},
			noTopic:  true,
			reason:   enums.OutboxDLQReasonNonRetryable,
			message:  `no publisher for topic "domain-topic"`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			row := reassignedRow(t, tc.attempts)
			h := newHarness(t, []models.OutboxEvent{row}, tc.resolver, tc.results...)
			if tc.noTopic {
				h.d.publishers = func(string) Publisher { return nil }
			}

			busy, err := h.d.processBatch(context.Background())
			require.NoError(t, err)
			require.True(t, busy)
			require.Len(t, h.dlq.entries, 1)
			entry := h.dlq.entries[0]
			require.Equal(t, row.ID, entry.EventID)
			require.Equal(t, tc.reason, entry.ErrorReason)
			require.JSONEq(t, string(row.Payload), string(entry.Payload))
			require.NotNil(t, entry.ErrorMessage)
			require.Contains(t, *entry.ErrorMessage, tc.message)
			require.Equal(t, time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC), entry.FailedAt)
			require.Equal(t, []uuid.UUID{row.ID}, h.rep.terminal)
			require.Empty(t, h.rep.published)
			require.Equal(t, 1.0, h.outcomes(t, outcomeDeadLettered))
		})
	}
}

func TestProcessBatchReturnsBookkeepingErrors(t *testing.T) {
	h := newHarness(t, []models.OutboxEvent{reassignedRow(t, 0)}, &fakeRegistry{resolved: reassignedResolution()}, fakePublishResult{})
	h.rep.publishedErr = errors.New("db gone")

	_, err := h.d.processBatch(context.Background())
	require.ErrorContains(t, err, "db gone")
}

func TestPublishCarriesEnvelopeAndCrewAttributes(t *testing.T) {
	fromCrew, toCrew := uuid.New(), uuid.New()
	row := reassignedRow(t, 0)
	resolved := reassignedResolution()
	resolved.Payload = &payloads.JobReassignedEvent{
		JobID:         row.AggregateID,
		FromCrewID:    fromCrew,
		ToCrewID:      toCrew,
		ScheduledDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	}
	resolved.Envelope.Actor = &outbox.ActorRef{Kind: "cron", Name: "violation-scan"}
	h := newHarness(t, []models.OutboxEvent{row}, &fakeRegistry{resolved: resolved}, fakePublishResult{})

	_, err := h.d.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, h.pub.sent, 1)
	msg := h.pub.sent[0]
	require.Equal(t, []byte(row.Payload), msg.Data)
	require.Equal(t, fromCrew.String(), msg.Attributes["from_crew_id"])
	require.Equal(t, toCrew.String(), msg.Attributes["to_crew_id"])
	require.Equal(t, "2026-03-04", msg.Attributes["scheduled_date"])
	require.Equal(t, "cron", msg.Attributes["actor_kind"])
	require.Equal(t, string(enums.EventJobReassigned), msg.Attributes["event_type"])
}

func TestRouteSequencedAttributes(t *testing.T) {
	crewID := uuid.New()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventRouteSequenced,
		AggregateType: enums.AggregateCrew,
		AggregateID:   crewID,
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "domain-topic", AggregateType: enums.AggregateCrew},
		Payload:    &payloads.RouteSequencedEvent{CrewID: crewID, Day: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
	}

	attrs := messageAttributes(row, resolved)
	require.Equal(t, crewID.String(), attrs["crew_id"])
	require.Equal(t, "2026-03-05", attrs["day"])
	require.NotContains(t, attrs, "actor_kind")
}

func TestPacerBacksOffAndResets(t *testing.T) {
	require.Equal(t, 2*time.Second, nextBackoff(0, time.Second, maxBackoff))
	require.Equal(t, maxBackoff, nextBackoff(8*time.Second, time.Second, maxBackoff))

	p := newPacer(time.Second)
	first := p.failed()
	require.GreaterOrEqual(t, first, 2*time.Second)
	require.Less(t, first, 2*time.Second+jitterWindow)
	p.failed()
	require.Equal(t, 4*time.Second, p.current)
	p.reset()
	require.Equal(t, time.Second, p.current)
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	h := newHarness(t, nil, &fakeRegistry{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, h.d.Run(ctx), context.Canceled)
}

func TestNewDispatcherValidates(t *testing.T) {
	_, err := NewDispatcher(DispatcherParams{})
	require.EqualError(t, err, "logger required")

	logg := logger.New(logger.Options{ServiceName: "dispatch-test", Output: io.Discard})
	_, err = NewDispatcher(DispatcherParams{Logger: logg, DB: fakeDB{}})
	require.EqualError(t, err, "pubsub client required")
}

func reassignedRow(tb testing.TB, attempts int) models.OutboxEvent {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(tb, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventJobReassigned,
		AggregateType: enums.AggregateJob,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

func reassignedResolution() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "domain-topic", AggregateType: enums.AggregateJob},
		Envelope:   outbox.PayloadEnvelope{EventID: uuid.NewString(), OccurredAt: time.Now()},
		Payload:    &payloads.JobReassignedEvent{},
	}
}

type fakeRepo struct {
	events       []models.OutboxEvent
	published    []uuid.UUID
	failed       []uuid.UUID
	terminal     []uuid.UUID
	publishedErr error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.publishedErr != nil {
		return f.publishedErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePublisher struct {
	results []PublishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) PublishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope.EventID = row.ID.String()
	return &resolved, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
