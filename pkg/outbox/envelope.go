package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is written on every envelope this service produces. An
// inbound envelope without a version is read as version 1.
const EnvelopeVersion = 1

var ErrEmptyPayload = errors.New("envelope data is empty")

// ActorRef identifies who produced the event. System jobs use Role "system".
type ActorRef struct {
	Subject string `json:"subject"`
	Role    string `json:"role,omitempty"`
}

func SystemActor(name string) *ActorRef {
	return &ActorRef{Subject: name, Role: "system"}
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and carried as
// the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses raw and checks it carries a uuid event id and a
// non-null data field.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Version == 0 {
		envelope.Version = EnvelopeVersion
	}
	if _, err := uuid.Parse(envelope.EventID); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("envelope event id %q: %w", envelope.EventID, err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, ErrEmptyPayload
	}
	return envelope, nil
}

// ID returns the parsed event id. It is uuid.Nil on envelopes that were not
// produced by DecodeEnvelope or toRow.
func (e PayloadEnvelope) ID() uuid.UUID {
	id, err := uuid.Parse(e.EventID)
	if err != nil {
		return uuid.Nil
	}
	return id
}
