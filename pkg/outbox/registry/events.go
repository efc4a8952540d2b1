package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/config"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/payloads"
)

// ErrBadEnvelope wraps Resolve failures caused by the envelope itself rather
// than the event payload.
var ErrBadEnvelope = errors.New("bad envelope")

// EventDescriptor is the routing and schema entry for one outbox event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	Decode        Decoder
}

// ResolvedEvent is an outbox row with its envelope and payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// ledgerEvents lists every event the ledger emits, with the aggregate its
// rows must carry.
var ledgerEvents = []EventDescriptor{
	{EventType: enums.EventSettlementRecorded, AggregateType: enums.AggregatePlatformFee, Decode: JSONDecoder[payloads.SettlementRecordedEvent]()},
	{EventType: enums.EventEarningsReleased, AggregateType: enums.AggregatePlatformFee, Decode: JSONDecoder[payloads.EarningsReleasedEvent]()},
	{EventType: enums.EventSettlementReversed, AggregateType: enums.AggregatePlatformFee, Decode: JSONDecoder[payloads.SettlementReversedEvent]()},
	{EventType: enums.EventPayoutCreated, AggregateType: enums.AggregatePayout, Decode: JSONDecoder[payloads.PayoutStatusEvent]()},
	{EventType: enums.EventPayoutProcessing, AggregateType: enums.AggregatePayout, Decode: JSONDecoder[payloads.PayoutStatusEvent]()},
	{EventType: enums.EventPayoutPaid, AggregateType: enums.AggregatePayout, Decode: JSONDecoder[payloads.PayoutStatusEvent]()},
	{EventType: enums.EventPayoutFailed, AggregateType: enums.AggregatePayout, Decode: JSONDecoder[payloads.PayoutStatusEvent]()},
	{EventType: enums.EventBankAccountVerified, AggregateType: enums.AggregateBankAccount, Decode: JSONDecoder[payloads.BankAccountVerifiedEvent]()},
	{EventType: enums.EventReviewItemOpened, AggregateType: enums.AggregateReviewItem, Decode: JSONDecoder[payloads.ReviewItemOpenedEvent]()},
	{EventType: enums.EventVendorBalanceDrifted, AggregateType: enums.AggregateVendorBalance, Decode: JSONDecoder[payloads.VendorBalanceDriftedEvent]()},
}

// EventRegistry resolves outbox rows for the publisher.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every ledger event to cfg.LedgerTopic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.LedgerTopic == "" {
		return nil, errors.New("ledger topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(ledgerEvents))}
	for _, desc := range ledgerEvents {
		desc.Topic = cfg.LedgerTopic
		if err := reg.add(desc); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *EventRegistry) add(desc EventDescriptor) error {
	switch {
	case !desc.EventType.IsValid():
		return fmt.Errorf("unknown event type %q", desc.EventType)
	case !desc.AggregateType.IsValid():
		return fmt.Errorf("event %s: unknown aggregate type %q", desc.EventType, desc.AggregateType)
	case desc.Decode == nil:
		return fmt.Errorf("event %s: decoder required", desc.EventType)
	}
	if _, exists := r.entries[desc.EventType]; exists {
		return fmt.Errorf("event %s registered twice", desc.EventType)
	}
	r.entries[desc.EventType] = desc
	return nil
}

// Types lists the registered event types, sorted.
func (r *EventRegistry) Types() []enums.OutboxEventType {
	types := make([]enums.OutboxEventType, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%w: %s: %w", ErrBadEnvelope, event.EventType, err))
	}
	payload, err := desc.Decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
