package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/settlement"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/payloads"

	"github.com/abdul-hamid-achik/luzimarket-ledger/api/responses"
	"github.com/abdul-hamid-achik/luzimarket-ledger/api/validators"
)

type settlementHandler interface {
	HandleOrderSettled(ctx context.Context, event payloads.OrderSettledEvent) (*settlement.Result, error)
	HandleOrderStatusChanged(ctx context.Context, event payloads.OrderStatusChangedEvent) (*settlement.Result, error)
	RefundDeliveredOrder(ctx context.Context, orderID uuid.UUID, reason string) (*settlement.Result, error)
}

type orderSettledRequest struct {
	OrderID       uuid.UUID `json:"order_id" validate:"required"`
	VendorID      uuid.UUID `json:"vendor_id" validate:"required"`
	TotalCents    int64     `json:"total_cents" validate:"min=0"`
	ShippingCents int64     `json:"shipping_cents" validate:"min=0"`
	Currency      string    `json:"currency" validate:"omitempty,currency"`
	PaymentStatus string    `json:"payment_status" validate:"omitempty,oneof=pending succeeded failed"`
}

type orderStatusRequest struct {
	VendorID  uuid.UUID `json:"vendor_id" validate:"required"`
	OldStatus string    `json:"old_status" validate:"required"`
	NewStatus string    `json:"new_status" validate:"required"`
}

type refundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// OrderSettled records a paid order. Repeating the call for the same order
// returns the original split with created=false.
func OrderSettled(svc settlementHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		var req orderSettledRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.HandleOrderSettled(r.Context(), payloads.OrderSettledEvent{
			OrderID:       req.OrderID,
			VendorID:      req.VendorID,
			TotalCents:    req.TotalCents,
			ShippingCents: req.ShippingCents,
			Currency:      enums.Currency(req.Currency),
			PaymentStatus: enums.PaymentStatus(req.PaymentStatus),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, newSettlementResponse(result))
	}
}

// OrderStatusChanged moves settled earnings for a fulfillment transition.
func OrderStatusChanged(svc settlementHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req orderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.HandleOrderStatusChanged(r.Context(), payloads.OrderStatusChangedEvent{
			OrderID:   orderID,
			VendorID:  req.VendorID,
			OldStatus: enums.OrderStatus(req.OldStatus),
			NewStatus: enums.OrderStatus(req.NewStatus),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementResponse(result))
	}
}

// AdminRefundOrder reverses the earnings of a delivered order.
func AdminRefundOrder(svc settlementHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req refundRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RefundDeliveredOrder(r.Context(), orderID, validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementResponse(result))
	}
}
