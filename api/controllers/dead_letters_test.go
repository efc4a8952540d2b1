package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
)

type stubDeadLetters struct {
	filter outbox.DLQFilter
	rows   []models.OutboxDLQ
}

func (s *stubDeadLetters) List(_ context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error) {
	s.filter = filter
	return s.rows, nil
}

func TestAdminListDeadLettersFilters(t *testing.T) {
	payoutID := uuid.New()
	msg := "topic not found"
	stub := &stubDeadLetters{rows: []models.OutboxDLQ{{
		EventID:       uuid.New(),
		EventType:     enums.EventPayoutPaid,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payoutID,
		Payload:       json.RawMessage(`{"x":1}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
		AttemptCount:  3,
		FailedAt:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}}}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/outbox/dead-letters?reason=non_retryable&limit=5&aggregate_id="+payoutID.String(), nil)
	resp := httptest.NewRecorder()
	AdminListDeadLetters(stub, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.Code, resp.Body.String())
	}
	if stub.filter.Reason != enums.OutboxDLQReasonNonRetryable || stub.filter.Limit != 5 {
		t.Fatalf("unexpected filter %+v", stub.filter)
	}
	if stub.filter.AggregateID == nil || *stub.filter.AggregateID != payoutID {
		t.Fatalf("aggregate filter not applied")
	}

	var items []deadLetterResponse
	if err := json.Unmarshal(decodeEnvelope(t, resp).Data, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 1 || items[0].Error != msg || items[0].Attempts != 3 {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestAdminListDeadLettersRejectsUnknownReason(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/outbox/dead-letters?reason=bogus", nil)
	resp := httptest.NewRecorder()
	AdminListDeadLetters(&stubDeadLetters{}, nil)(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestAdminListDeadLettersWithoutRepository(t *testing.T) {
	resp := httptest.NewRecorder()
	AdminListDeadLetters(nil, nil)(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.Code)
	}
}
