// Package idempotency remembers which Pub/Sub deliveries a consumer applied.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/instance"
)

type markerStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	IdempotencyKey(scope, id string) string
}

// Guard is a fast-path skip for redelivered events. Markers live under
// `lzm:idempotency:evt:<consumer>:<event_id>` and expire after ttl; a zero ttl
// keeps them forever. A marker is only written once the event's effects are
// committed, so a missing marker never hides unapplied work.
type Guard struct {
	store markerStore
	ttl   time.Duration
	owner string
	now   func() time.Time
}

// NewGuard builds a Guard over the shared Redis client.
func NewGuard(store markerStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl, owner: instance.GetID(), now: time.Now}, nil
}

// Applied reports whether consumer already committed eventID.
func (g *Guard) Applied(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	if _, err := g.store.Get(ctx, key); err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkApplied records that consumer committed eventID. Call it after the
// transaction that applied the event, never before.
func (g *Guard) MarkApplied(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return err
	}
	marker := g.owner + "@" + g.now().UTC().Format(time.RFC3339)
	return g.store.Set(ctx, key, marker, g.ttl)
}

func (g *Guard) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
