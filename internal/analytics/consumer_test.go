package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/idempotency"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/payloads"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/redis"
)

type idleReceiver struct{}

func (idleReceiver) Receive(ctx context.Context, _ func(context.Context, *pubsub.Message)) error {
	<-ctx.Done()
	return nil
}

type fakeInserter struct {
	tables []string
	rows   []any
	err    error
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	if f.err != nil {
		return f.err
	}
	f.tables = append(f.tables, table)
	f.rows = append(f.rows, rows...)
	return nil
}

func newTestConsumer(t *testing.T, inserter *fakeInserter) (*Consumer, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	guard, err := idempotency.NewGuard(redis.Wrap(raw), time.Hour)
	require.NoError(t, err)
	logg := logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})
	consumer, err := NewConsumer(inserter, "ledger_events", idleReceiver{}, guard, logg)
	require.NoError(t, err)
	return consumer, srv
}

func payoutPaid(t *testing.T, eventID, payoutID, vendorID uuid.UUID, at time.Time) []byte {
	t.Helper()
	data, err := json.Marshal(payloads.PayoutStatusEvent{
		PayoutID:      payoutID,
		VendorID:      vendorID,
		BankAccountID: uuid.New(),
		AmountCents:   90_000,
		Currency:      enums.CurrencyMXN,
		Status:        enums.PayoutStatusPaid,
		RailReference: "spei-123",
	})
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: at,
		Actor:      outbox.SystemActor("payout-run"),
		Data:       data,
	})
	require.NoError(t, err)
	return body
}

func payoutAttrs(payoutID uuid.UUID) map[string]string {
	return map[string]string{
		"event_type":     string(enums.EventPayoutPaid),
		"aggregate_type": "payout",
		"aggregate_id":   payoutID.String(),
	}
}

func markerKey(eventID uuid.UUID) string {
	return "lzm:idempotency:evt:" + consumerName + ":" + eventID.String()
}

func TestNewConsumerRequiresDependencies(t *testing.T) {
	_, err := NewConsumer(nil, "ledger_events", idleReceiver{}, nil, nil)
	require.Error(t, err)
	_, err = NewConsumer(&fakeInserter{}, " ", idleReceiver{}, nil, nil)
	require.Error(t, err)
}

func TestConsumerInsertsLedgerEventRow(t *testing.T) {
	inserter := &fakeInserter{}
	consumer, srv := newTestConsumer(t, inserter)
	eventID, payoutID, vendorID := uuid.New(), uuid.New(), uuid.New()
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	redeliver := consumer.process(context.Background(), "m1", payoutAttrs(payoutID), payoutPaid(t, eventID, payoutID, vendorID, at))
	require.False(t, redeliver)

	require.Equal(t, []string{"ledger_events"}, inserter.tables)
	require.Len(t, inserter.rows, 1)
	saver, ok := inserter.rows[0].(*bigquery.StructSaver)
	require.True(t, ok)
	assert.Equal(t, eventID.String(), saver.InsertID)

	row := saver.Struct.(*ledgerEventRow)
	assert.Equal(t, string(enums.EventPayoutPaid), row.EventType)
	assert.Equal(t, bigquery.NullString{StringVal: "payout", Valid: true}, row.AggregateType)
	assert.Equal(t, payoutID.String(), row.PayoutID.StringVal)
	assert.Equal(t, vendorID.String(), row.VendorID.StringVal)
	assert.False(t, row.OrderID.Valid)
	assert.Equal(t, bigquery.NullInt64{Int64: 90_000, Valid: true}, row.AmountCents)
	assert.Equal(t, "MXN", row.Currency.StringVal)
	assert.Equal(t, "payout-run", row.Actor.StringVal)
	assert.True(t, row.OccurredAt.Equal(at))
	assert.True(t, row.Payload.Valid)

	assert.True(t, srv.Exists(markerKey(eventID)))
}

func TestConsumerSkipsIngestedEvent(t *testing.T) {
	inserter := &fakeInserter{}
	consumer, _ := newTestConsumer(t, inserter)
	eventID, payoutID := uuid.New(), uuid.New()
	body := payoutPaid(t, eventID, payoutID, uuid.New(), time.Now().UTC())

	require.False(t, consumer.process(context.Background(), "m1", payoutAttrs(payoutID), body))
	require.False(t, consumer.process(context.Background(), "m2", payoutAttrs(payoutID), body))
	assert.Len(t, inserter.rows, 1)
}

func TestConsumerRedeliversFailedInsert(t *testing.T) {
	inserter := &fakeInserter{err: errors.New("bigquery unavailable")}
	consumer, srv := newTestConsumer(t, inserter)
	eventID, payoutID := uuid.New(), uuid.New()
	body := payoutPaid(t, eventID, payoutID, uuid.New(), time.Now().UTC())

	require.True(t, consumer.process(context.Background(), "m1", payoutAttrs(payoutID), body))
	assert.False(t, srv.Exists(markerKey(eventID)))

	inserter.err = nil
	require.False(t, consumer.process(context.Background(), "m2", payoutAttrs(payoutID), body))
	assert.Len(t, inserter.rows, 1)
	assert.True(t, srv.Exists(markerKey(eventID)))
}

func TestConsumerAcksUnknownAndMalformedEvents(t *testing.T) {
	inserter := &fakeInserter{}
	consumer, _ := newTestConsumer(t, inserter)

	unknown := map[string]string{"event_type": "order_settled"}
	require.False(t, consumer.process(context.Background(), "m1", unknown, []byte(`{}`)))

	malformed := map[string]string{"event_type": string(enums.EventPayoutPaid)}
	require.False(t, consumer.process(context.Background(), "m2", malformed, []byte(`not json`)))
	assert.Empty(t, inserter.rows)
}

func TestConsumerInsertsWhenRedisIsDown(t *testing.T) {
	inserter := &fakeInserter{}
	consumer, srv := newTestConsumer(t, inserter)
	srv.Close()
	eventID, payoutID := uuid.New(), uuid.New()

	require.False(t, consumer.process(context.Background(), "m1", payoutAttrs(payoutID), payoutPaid(t, eventID, payoutID, uuid.New(), time.Now().UTC())))
	assert.Len(t, inserter.rows, 1)
}

func TestBuildRowPicksHeadlineAmount(t *testing.T) {
	data, err := json.Marshal(payloads.SettlementRecordedEvent{
		PlatformFeeID:       uuid.New(),
		OrderID:             uuid.New(),
		VendorID:            uuid.New(),
		OrderAmountCents:    10_000,
		FeeAmountCents:      1_500,
		VendorEarningsCents: 8_500,
		Currency:            enums.CurrencyMXN,
	})
	require.NoError(t, err)
	envelope := outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), OccurredAt: time.Now(), Data: data}

	row, err := buildRow(enums.EventSettlementRecorded, nil, envelope)
	require.NoError(t, err)
	assert.Equal(t, int64(8_500), row.AmountCents.Int64)
	assert.True(t, row.OrderID.Valid)
	assert.False(t, row.Actor.Valid)
	assert.False(t, row.AggregateID.Valid)
}
