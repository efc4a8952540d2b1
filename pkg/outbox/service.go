package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
)

// DomainEvent is a ledger side effect queued in the caller's transaction.
// EventID is generated when zero.
type DomainEvent struct {
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("unknown event type %q", e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("unknown aggregate type %q", e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%s event requires an aggregate id", e.EventType)
	}
	return nil
}

// Service writes outbox rows inside ledger transactions, so an event exists
// exactly when its money movement committed.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues events in order. Nothing is written if any event is invalid.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, events ...DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if len(events) == 0 {
		return nil
	}
	rows := make([]models.OutboxEvent, 0, len(events))
	for _, event := range events {
		row, err := s.toRow(event)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := s.repo.Insert(tx, rows...); err != nil {
		return fmt.Errorf("queue outbox events: %w", err)
	}

	if s.logg != nil {
		for i := range rows {
			s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
				"event_id":       rows[i].ID.String(),
				"event_type":     rows[i].EventType,
				"aggregate_type": rows[i].AggregateType,
				"aggregate_id":   rows[i].AggregateID.String(),
			}), "outbox event queued")
		}
	}
	return nil
}

// toRow wraps the event data in a PayloadEnvelope. The row ID and the
// envelope's eventId are the same value so consumers can dedupe on either.
func (s *Service) toRow(event DomainEvent) (models.OutboxEvent, error) {
	if err := event.validate(); err != nil {
		return models.OutboxEvent{}, err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	event.OccurredAt = event.OccurredAt.UTC()
	if event.Version == 0 {
		event.Version = EnvelopeVersion
	}

	body, err := json.Marshal(PayloadEnvelope{
		Version:    event.Version,
		EventID:    event.EventID.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	})
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	return models.OutboxEvent{
		ID:            event.EventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       body,
		CreatedAt:     event.OccurredAt,
	}, nil
}
