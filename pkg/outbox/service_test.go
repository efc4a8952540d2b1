package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/dbtest"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

func payoutEvent(aggregateID uuid.UUID, at time.Time) DomainEvent {
	return DomainEvent{
		EventType:     enums.EventPayoutPaid,
		AggregateType: enums.AggregatePayout,
		AggregateID:   aggregateID,
		Actor:         SystemActor("payout-run"),
		Data:          map[string]any{"amount_cents": 600},
		OccurredAt:    at,
	}
}

func emit(t *testing.T, client *db.Client, svc *Service, events ...DomainEvent) {
	t.Helper()
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, events...)
	}))
}

func TestEmitWritesEnvelope(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	aggregateID := uuid.New()

	emit(t, client, svc, payoutEvent(aggregateID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventPayoutPaid, rows[0].EventType)
	assert.Equal(t, aggregateID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "system", envelope.Actor.Role)
	assert.JSONEq(t, `{"amount_cents":600}`, string(envelope.Data))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, payoutEvent(uuid.New(), time.Time{})))
}

func TestEmitKeepsSuppliedEventID(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	event := payoutEvent(uuid.New(), time.Time{})
	event.EventID = uuid.New()

	emit(t, client, svc, event, payoutEvent(uuid.New(), time.Time{}))

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 2)
	var found bool
	for _, row := range rows {
		found = found || row.ID == event.EventID
	}
	assert.True(t, found)
}

func TestEmitRejectsInvalidEventsAtomically(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	bad := payoutEvent(uuid.Nil, time.Time{})

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, payoutEvent(uuid.New(), time.Time{}), bad)
	})
	require.Error(t, err)

	unknown := payoutEvent(uuid.New(), time.Time{})
	unknown.EventType = "payout.exploded"
	require.Error(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, unknown)
	}))

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first, second, third := uuid.New(), uuid.New(), uuid.New()
	emit(t, client, svc, payoutEvent(first, base))
	emit(t, client, svc, payoutEvent(second, base.Add(time.Second)))
	emit(t, client, svc, payoutEvent(third, base.Add(2*time.Second)))

	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, first, rows[0].AggregateID)

		require.NoError(t, repo.MarkPublishedTx(tx, rows[0].ID))
		require.NoError(t, repo.MarkFailedTx(tx, rows[1].ID, errors.New("publish timeout")))
		return repo.MarkTerminalTx(tx, rows[2].ID, errors.New("bad payload"), 3)
	}))

	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, second, rows[0].AggregateID)
		assert.Equal(t, 1, rows[0].AttemptCount)
		require.NotNil(t, rows[0].LastError)
		assert.Equal(t, "publish timeout", *rows[0].LastError)
		return nil
	}))
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	client := dbtest.Open(t)
	dlq := NewDLQRepository(client.DB())
	eventID := uuid.New()

	long := make([]byte, maxDLQErrorLen+50)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)

	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventPayoutPaid,
			AggregateType: enums.AggregatePayout,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			ErrorMessage:  &msg,
		})
	}))

	entry, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Len(t, *entry.ErrorMessage, maxDLQErrorLen)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	rows, err := dlq.List(context.Background(), DLQFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTruncateDLQErrorKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxDLQErrorLen-1) + "é"
	got := truncateDLQError(msg)
	assert.Len(t, got, maxDLQErrorLen-1)
	assert.True(t, utf8.ValidString(got))
}

func TestDLQRepositoryFiltersAndPrunes(t *testing.T) {
	client := dbtest.Open(t)
	dlq := NewDLQRepository(client.DB())
	ctx := context.Background()
	payoutID := uuid.New()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	entries := []models.OutboxDLQ{
		{AggregateID: payoutID, ErrorReason: enums.OutboxDLQReasonMaxAttempts, FailedAt: old},
		{AggregateID: payoutID, ErrorReason: enums.OutboxDLQReasonNonRetryable, FailedAt: recent},
		{AggregateID: uuid.New(), ErrorReason: enums.OutboxDLQReasonNonRetryable, FailedAt: recent},
	}
	for i := range entries {
		entries[i].EventID = uuid.New()
		entries[i].EventType = enums.EventPayoutPaid
		entries[i].AggregateType = enums.AggregatePayout
		entries[i].Payload = json.RawMessage(`{}`)
		require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
			return dlq.InsertTx(tx, entries[i])
		}))
	}

	byReason, err := dlq.List(ctx, DLQFilter{Reason: enums.OutboxDLQReasonNonRetryable})
	require.NoError(t, err)
	assert.Len(t, byReason, 2)

	byAggregate, err := dlq.List(ctx, DLQFilter{AggregateID: &payoutID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, byAggregate, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, byAggregate[0].ErrorReason)

	deleted, err := dlq.DeleteFailedBefore(ctx, nil, recent.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	rest, err := dlq.List(ctx, DLQFilter{})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestDeletePublishedBeforeKeepsLiveRows(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)
	recent := cutoff.Add(time.Hour)

	rows := []models.OutboxEvent{
		{PublishedAt: &old, CreatedAt: old},
		{PublishedAt: &recent, CreatedAt: old},
		{AttemptCount: 10, CreatedAt: old},
		{AttemptCount: 2, CreatedAt: old},
	}
	for i := range rows {
		rows[i].EventType = enums.EventPayoutPaid
		rows[i].AggregateType = enums.AggregatePayout
		rows[i].AggregateID = uuid.New()
		rows[i].Payload = json.RawMessage(`{}`)
		require.NoError(t, client.DB().Create(&rows[i]).Error)
	}

	var deleted int64
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(context.Background(), tx, cutoff, 5)
		return err
	}))
	assert.Equal(t, int64(2), deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, client.DB().Order("attempt_count ASC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, rows[1].ID, remaining[0].ID)
	assert.Equal(t, rows[3].ID, remaining[1].ID)
}
