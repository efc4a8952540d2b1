package settlement

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/idempotency"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/payloads"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/registry"
)

const consumerName = "settlement-consumer"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer applies Order Service events delivered over Pub/Sub.
type Consumer struct {
	service      Service
	subscription receiver
	decoders     *registry.DecoderRegistry
	dedupe       *idempotency.Guard
	logg         *logger.Logger
}

// NewDecoders registers the order event payloads this consumer understands.
func NewDecoders() *registry.DecoderRegistry {
	decoders := registry.NewDecoderRegistry()
	decoders.MustRegister(string(enums.OrderEventSettled), 1, registry.JSONDecoder[payloads.OrderSettledEvent]())
	decoders.MustRegister(string(enums.OrderEventStatusChanged), 1, registry.JSONDecoder[payloads.OrderStatusChangedEvent]())
	return decoders
}

// NewConsumer builds the order event consumer.
func NewConsumer(service Service, subscription receiver, guard *idempotency.Guard, logg *logger.Logger) (*Consumer, error) {
	if service == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		service:      service,
		subscription: subscription,
		decoders:     NewDecoders(),
		dedupe:       guard,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) processResult {
	eventType := attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if _, err := enums.ParseOrderEventType(eventType); err != nil {
		c.logg.Info(logCtx, "skipping unrelated order event")
		return processResult{ack: true}
	}

	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	eventID := envelope.ID()
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id":      envelope.EventID,
		"event_version": envelope.Version,
	})

	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}

	applied, err := c.dedupe.Applied(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "idempotency lookup failed; applying event")
	}
	if applied {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handle(ctx, payload); err != nil {
		if !redeliver(err) {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "order event rejected")
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "order event handling failed", err)
		return processResult{nack: true}
	}
	if err := c.dedupe.MarkApplied(ctx, consumerName, eventID); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "failed to record applied event")
	}
	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, payload any) error {
	switch event := payload.(type) {
	case *payloads.OrderSettledEvent:
		_, err := c.service.HandleOrderSettled(ctx, *event)
		return err
	case *payloads.OrderStatusChangedEvent:
		_, err := c.service.HandleOrderStatusChanged(ctx, *event)
		return err
	default:
		return registry.NewNonRetryableError(fmt.Errorf("unsupported payload %T", payload))
	}
}

// redeliver reports whether a failed event should come back. Status changes
// can arrive before their settlement, so NOT_FOUND is redelivered too.
func redeliver(err error) bool {
	if registry.IsNonRetryable(err) {
		return false
	}
	return pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.Retryable(err)
}
