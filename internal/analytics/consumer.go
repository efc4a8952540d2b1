// Package analytics streams published ledger events into BigQuery.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
)

const consumerName = "ledger-analytics"

// amountKeys are tried in order to pick the headline amount of an event.
var amountKeys = []string{"amount_cents", "vendor_earnings_cents", "attempted_amount_cents", "actual_cents"}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type appliedTracker interface {
	Applied(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	MarkApplied(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer writes one ledger_events row per published ledger event.
type Consumer struct {
	client       tableInserter
	table        string
	subscription receiver
	dedupe       appliedTracker
	logg         *logger.Logger
}

func NewConsumer(client tableInserter, table string, subscription receiver, dedupe appliedTracker, logg *logger.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("bigquery table name required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("analytics subscription required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		client:       client,
		table:        strings.TrimSpace(table),
		subscription: subscription,
		dedupe:       dedupe,
		logg:         logg,
	}, nil
}

// Run receives until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process reports whether the message should be redelivered.
func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) bool {
	rawType := attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": rawType,
	})

	eventType, err := enums.ParseOutboxEventType(rawType)
	if err != nil {
		c.logg.Info(logCtx, "event not handled by analytics consumer")
		return false
	}
	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return false
	}
	eventID := envelope.ID()
	logCtx = c.logg.WithField(logCtx, "event_id", envelope.EventID)

	applied, err := c.dedupe.Applied(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "idempotency lookup failed; inserting event")
	}
	if applied {
		c.logg.Info(logCtx, "event already ingested")
		return false
	}

	row, err := buildRow(eventType, attributes, envelope)
	if err != nil {
		c.logg.Error(logCtx, "failed to build ledger event row", err)
		return false
	}
	saver := &bigquery.StructSaver{Struct: row, InsertID: envelope.EventID}
	if err := c.client.InsertRows(ctx, c.table, []any{saver}); err != nil {
		c.logg.Error(logCtx, "failed to insert ledger event row", err)
		return true
	}
	if err := c.dedupe.MarkApplied(ctx, consumerName, eventID); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "failed to record ingested event")
	}
	c.logg.Info(logCtx, "ledger event ingested")
	return false
}

type ledgerEventRow struct {
	EventID       string              `bigquery:"event_id"`
	EventType     string              `bigquery:"event_type"`
	AggregateType bigquery.NullString `bigquery:"aggregate_type"`
	AggregateID   bigquery.NullString `bigquery:"aggregate_id"`
	VendorID      bigquery.NullString `bigquery:"vendor_id"`
	OrderID       bigquery.NullString `bigquery:"order_id"`
	PayoutID      bigquery.NullString `bigquery:"payout_id"`
	AmountCents   bigquery.NullInt64  `bigquery:"amount_cents"`
	Currency      bigquery.NullString `bigquery:"currency"`
	Actor         bigquery.NullString `bigquery:"actor"`
	OccurredAt    time.Time           `bigquery:"occurred_at"`
	Payload       bigquery.NullJSON   `bigquery:"payload"`
}

func buildRow(eventType enums.OutboxEventType, attributes map[string]string, envelope outbox.PayloadEnvelope) (*ledgerEventRow, error) {
	payload := map[string]any{}
	decoder := json.NewDecoder(bytes.NewReader(envelope.Data))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	row := &ledgerEventRow{
		EventID:       envelope.EventID,
		EventType:     string(eventType),
		AggregateType: nullString(attributes["aggregate_type"]),
		AggregateID:   nullString(attributes["aggregate_id"]),
		VendorID:      stringValue(payload, "vendor_id"),
		OrderID:       stringValue(payload, "order_id"),
		PayoutID:      stringValue(payload, "payout_id"),
		Currency:      stringValue(payload, "currency"),
		OccurredAt:    envelope.OccurredAt.UTC(),
		Payload:       bigquery.NullJSON{JSONVal: string(envelope.Data), Valid: true},
	}
	for _, key := range amountKeys {
		if amount, ok := int64Value(payload, key); ok {
			row.AmountCents = bigquery.NullInt64{Int64: amount, Valid: true}
			break
		}
	}
	if envelope.Actor != nil {
		row.Actor = nullString(envelope.Actor.Subject)
	}
	return row, nil
}

func nullString(value string) bigquery.NullString {
	value = strings.TrimSpace(value)
	return bigquery.NullString{StringVal: value, Valid: value != ""}
}

func stringValue(payload map[string]any, key string) bigquery.NullString {
	if str, ok := payload[key].(string); ok {
		return nullString(str)
	}
	return bigquery.NullString{}
}

func int64Value(payload map[string]any, key string) (int64, bool) {
	num, ok := payload[key].(json.Number)
	if !ok {
		return 0, false
	}
	value, err := num.Int64()
	if err != nil {
		return 0, false
	}
	return value, true
}
