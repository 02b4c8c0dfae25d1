package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
)

func newOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`).Error)
	require.NoError(t, conn.Exec(`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`).Error)
	return conn
}

type jobMoved struct {
	JobID uuid.UUID `json:"job_id"`
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := newOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	jobID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventJobReassigned,
			AggregateType: enums.AggregateJob,
			AggregateID:   jobID,
			Actor:         &ActorRef{Kind: "cron", Name: "violation-scan"},
			Data:          jobMoved{JobID: jobID},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventJobReassigned, rows[0].EventType)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, "cron", envelope.Actor.Kind)

	var data jobMoved
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, jobID, data.JobID)
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)
	require.EqualError(t, svc.Emit(context.Background(), nil, DomainEvent{}), "transaction required")

	cases := map[string]DomainEvent{
		"unknown type":       {EventType: "order_paid", AggregateType: enums.AggregateJob, AggregateID: uuid.New(), Data: 1},
		"aggregate mismatch": {EventType: enums.EventRouteSequenced, AggregateType: enums.AggregateJob, AggregateID: uuid.New(), Data: 1},
		"missing aggregate":  {EventType: enums.EventJobReassigned, AggregateType: enums.AggregateJob, Data: 1},
		"missing data":       {EventType: enums.EventJobReassigned, AggregateType: enums.AggregateJob, AggregateID: uuid.New()},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			require.ErrorContains(t, svc.Emit(context.Background(), conn, event), "outbox emit")
		})
	}
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitStampsOccurredAtFromClock(t *testing.T) {
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 7, 0, 0, 0, time.FixedZone("EST", -5*3600)) }

	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventRouteSequenced,
		AggregateType: enums.AggregateCrew,
		AggregateID:   uuid.New(),
		Data:          map[string]any{"job_ids": []string{}},
	}))
	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), envelope.OccurredAt)
	require.Nil(t, envelope.Actor)
}

func TestDLQInsertTruncatesAndPurges(t *testing.T) {
	conn := newOutboxDB(t)
	dlq := NewDLQRepository(conn)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	long := strings.Repeat("x", maxDLQErrorLen+50)
	for _, failedAt := range []time.Time{cutoff.Add(-time.Hour), cutoff.Add(time.Hour)} {
		require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
			ID:            uuid.New(),
			EventID:       uuid.New(),
			EventType:     enums.EventJobReassigned,
			AggregateType: enums.AggregateJob,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:  &long,
			FailedAt:      failedAt,
		}))
	}
	require.Error(t, dlq.InsertTx(nil, models.OutboxDLQ{}))

	var stored models.OutboxDLQ
	require.NoError(t, conn.First(&stored).Error)
	require.Len(t, *stored.ErrorMessage, maxDLQErrorLen)

	deleted, err := dlq.DeleteFailedBefore(context.Background(), nil, cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}

func TestPublishLifecycle(t *testing.T) {
	conn := newOutboxDB(t)
	repo := NewRepository(conn)

	first := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventJobReassigned, AggregateType: enums.AggregateJob, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventRouteSequenced, AggregateType: enums.AggregateCrew, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	require.NoError(t, repo.MarkPublishedTx(conn, first.ID))
	require.NoError(t, repo.MarkTerminalTx(conn, second.ID, assertErr("bad payload"), 3))

	pending, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Empty(t, pending)

	pending, err = repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)
	require.NotNil(t, pending[0].LastError)
}

func TestDeletePublishedBefore(t *testing.T) {
	conn := newOutboxDB(t)
	repo := NewRepository(conn)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)
	recent := cutoff.Add(48 * time.Hour)

	rows := []models.OutboxEvent{
		{ID: uuid.New(), CreatedAt: old, PublishedAt: &old},
		{ID: uuid.New(), CreatedAt: recent, PublishedAt: &recent},
		{ID: uuid.New(), CreatedAt: old, AttemptCount: 10},
		{ID: uuid.New(), CreatedAt: old, AttemptCount: 1},
	}
	for _, row := range rows {
		row.EventType = enums.EventJobReassigned
		row.AggregateType = enums.AggregateJob
		row.AggregateID = uuid.New()
		row.Payload = json.RawMessage(`{}`)
		require.NoError(t, repo.Insert(conn, row))
	}

	deleted, err := repo.DeletePublishedBefore(context.Background(), nil, cutoff, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	var left int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&left).Error)
	require.EqualValues(t, 2, left)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
