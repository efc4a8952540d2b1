// Package settlement turns Order Service notifications into ledger entries and
// balance movements.
package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/balances"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/fees"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/ledger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/review"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/vendors"
	dbpkg "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/metrics"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/payloads"
)

const (
	cancelReason        = "order cancelled"
	defaultRefundReason = "refund of delivered order"
)

// Service applies order lifecycle events to the vendor ledger.
type Service interface {
	HandleOrderSettled(ctx context.Context, event payloads.OrderSettledEvent) (*Result, error)
	HandleOrderStatusChanged(ctx context.Context, event payloads.OrderStatusChangedEvent) (*Result, error)
	RefundDeliveredOrder(ctx context.Context, orderID uuid.UUID, reason string) (*Result, error)
}

// Result describes what a handled event changed. Created is only set by
// settlements; Movement by status changes and refunds.
type Result struct {
	OrderID  uuid.UUID
	VendorID uuid.UUID
	Fee      *models.PlatformFee
	Created  bool
	Movement balances.Movement
}

type txRunner interface {
	WithRetryingTx(ctx context.Context, policy dbpkg.RetryPolicy, retryable func(error) bool, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

type reviewReporter interface {
	Report(ctx context.Context, item review.Item) (*models.ReviewItem, error)
}

type commissionLookup interface {
	CommissionFor(ctx context.Context, vendorID uuid.UUID) (vendors.Commission, error)
}

// ServiceParams groups dependencies for the settlement service.
type ServiceParams struct {
	Vendors           commissionLookup
	Ledger            ledger.Service
	Balances          balances.Service
	Review            reviewReporter
	Outbox            eventEmitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.LedgerMetrics
	RetryPolicy       dbpkg.RetryPolicy
}

type service struct {
	vendors  commissionLookup
	ledger   ledger.Service
	balances balances.Service
	review   reviewReporter
	outbox   eventEmitter
	txRunner txRunner
	logg     *logger.Logger
	metrics  *metrics.LedgerMetrics
	policy   dbpkg.RetryPolicy
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Vendors == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "vendor commission lookup required")
	case params.Ledger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	case params.Balances == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "balance service required")
	case params.Review == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "review reporter required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	case params.TransactionRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{
		vendors:  params.Vendors,
		ledger:   params.Ledger,
		balances: params.Balances,
		review:   params.Review,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		metrics:  params.Metrics,
		policy:   params.RetryPolicy,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// HandleOrderSettled records the fee split of a paid order and credits the
// vendor's pending balance. Repeated notifications for the same order return
// the stored settlement without touching the balance.
func (s *service) HandleOrderSettled(ctx context.Context, event payloads.OrderSettledEvent) (*Result, error) {
	if event.OrderID == uuid.Nil || event.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and vendor id are required")
	}
	if event.PaymentStatus != "" && event.PaymentStatus != enums.PaymentStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only paid orders can be settled").
			WithDetails(map[string]any{"payment_status": event.PaymentStatus})
	}
	logCtx := s.orderContext(ctx, event.VendorID, event.OrderID)

	commission, err := s.vendors.CommissionFor(ctx, event.VendorID)
	if err != nil {
		return nil, err
	}
	currency := event.Currency
	if currency == "" {
		currency = commission.Currency
	}

	split, err := fees.ComputeSettlement(event.TotalCents, event.ShippingCents, commission.Percent)
	if err != nil {
		s.logFailure(logCtx, "settlement split rejected", err, event.TotalCents)
		if pkgerrors.IsCode(err, pkgerrors.CodeSettlementUnderflow) {
			s.report(logCtx, review.ItemFromError(enums.ReviewItemSettlementUnderflow, err, event.VendorID, &event.OrderID, nil, event.TotalCents))
		}
		return nil, err
	}

	result := &Result{OrderID: event.OrderID, VendorID: event.VendorID, Movement: balances.MovementNone}
	err = s.txRunner.WithRetryingTx(ctx, s.policy, balances.IsVersionConflict, func(tx *gorm.DB) error {
		record, created, err := s.ledger.RecordSettlement(ctx, tx, ledger.SettlementInput{
			OrderID:  event.OrderID,
			VendorID: event.VendorID,
			Currency: currency,
			Split:    split,
		})
		if err != nil {
			return err
		}
		fee := record.Fee
		result.Fee = &fee
		result.Created = created
		if !created {
			return nil
		}
		if _, err := s.balances.ApplySettlement(ctx, tx, event.VendorID, currency, split.VendorEarningsCents); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementRecorded,
			AggregateType: enums.AggregatePlatformFee,
			AggregateID:   fee.ID,
			Actor:         outbox.SystemActor("settlement"),
			Data: payloads.SettlementRecordedEvent{
				PlatformFeeID:       fee.ID,
				OrderID:             fee.OrderID,
				VendorID:            fee.VendorID,
				OrderAmountCents:    fee.OrderAmountCents,
				FeeAmountCents:      fee.FeeAmountCents,
				VendorEarningsCents: fee.VendorEarningsCents,
				Currency:            fee.Currency,
			},
		})
	})
	if err != nil {
		err = balances.AsConflict(err)
		s.logFailure(logCtx, "settlement failed", err, split.VendorEarningsCents)
		if pkgerrors.IsCode(err, pkgerrors.CodeSettlementUnderflow) {
			s.report(logCtx, review.ItemFromError(enums.ReviewItemSettlementUnderflow, err, event.VendorID, &event.OrderID, nil, split.VendorEarningsCents))
		}
		return nil, err
	}

	if result.Created {
		s.metrics.IncSettlement("recorded")
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"fee_cents":      split.FeeAmountCents,
			"earnings_cents": split.VendorEarningsCents,
		}), "settlement recorded")
	} else {
		s.metrics.IncSettlement("duplicate")
		s.logg.Info(logCtx, "duplicate settlement ignored")
	}
	return result, nil
}

// HandleOrderStatusChanged releases earnings on delivery and reverses them on
// cancellation. Transitions that do not move money are accepted as no-ops.
func (s *service) HandleOrderStatusChanged(ctx context.Context, event payloads.OrderStatusChangedEvent) (*Result, error) {
	if event.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !event.OldStatus.IsValid() || !event.NewStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"old_status": event.OldStatus, "new_status": event.NewStatus})
	}
	logCtx := s.logg.WithFields(s.orderContext(ctx, event.VendorID, event.OrderID), map[string]any{
		"old_status": event.OldStatus,
		"new_status": event.NewStatus,
	})

	result := &Result{OrderID: event.OrderID, VendorID: event.VendorID, Movement: balances.MovementNone}
	if event.OldStatus == event.NewStatus {
		return result, nil
	}
	switch event.NewStatus {
	case enums.OrderStatusDelivered, enums.OrderStatusCancelled:
	default:
		return result, nil
	}
	if event.NewStatus == enums.OrderStatusCancelled && event.OldStatus == enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "delivered orders must be refunded, not cancelled").
			WithDetails(map[string]any{"order_id": event.OrderID.String()})
	}

	var attempted int64
	err := s.txRunner.WithRetryingTx(ctx, s.policy, balances.IsVersionConflict, func(tx *gorm.DB) error {
		result.Movement = balances.MovementNone
		fee, err := s.settledFee(ctx, tx, event.OrderID, event.VendorID)
		if err != nil {
			return err
		}
		result.Fee = fee
		result.VendorID = fee.VendorID
		attempted = fee.VendorEarningsCents

		change := balances.StatusChange{
			VendorID:      fee.VendorID,
			OrderID:       fee.OrderID,
			OldStatus:     event.OldStatus,
			NewStatus:     event.NewStatus,
			EarningsCents: fee.VendorEarningsCents,
			FeeStatus:     fee.Status,
		}
		if event.NewStatus == enums.OrderStatusDelivered {
			return s.release(ctx, tx, fee, change, result)
		}
		return s.reverse(ctx, tx, fee, cancelReason, result, func(feeStatus enums.PlatformFeeStatus) (balances.Movement, error) {
			change.FeeStatus = feeStatus
			return s.balances.ApplyOrderStatusChange(ctx, tx, change)
		})
	})
	if err != nil {
		err = balances.AsConflict(err)
		s.logFailure(logCtx, "order status change failed", err, attempted)
		if pkgerrors.IsCode(err, pkgerrors.CodeBalanceUnderflow) && result.VendorID != uuid.Nil {
			s.report(logCtx, review.ItemFromError(enums.ReviewItemBalanceUnderflow, err, result.VendorID, &event.OrderID, nil, attempted))
		}
		return nil, err
	}

	if result.Movement != balances.MovementNone {
		s.logg.Info(s.logg.WithField(logCtx, "movement", result.Movement), "order earnings moved")
	}
	return result, nil
}

// RefundDeliveredOrder reverses the earnings of a delivered order out of the
// vendor's available balance. Refunding an already reversed order is a no-op.
func (s *service) RefundDeliveredOrder(ctx context.Context, orderID uuid.UUID, reason string) (*Result, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRefundReason
	}
	logCtx := s.logg.WithOrderID(ctx, orderID)

	result := &Result{OrderID: orderID, Movement: balances.MovementNone}
	var attempted int64
	err := s.txRunner.WithRetryingTx(ctx, s.policy, balances.IsVersionConflict, func(tx *gorm.DB) error {
		result.Movement = balances.MovementNone
		fee, err := s.settledFee(ctx, tx, orderID, uuid.Nil)
		if err != nil {
			return err
		}
		result.Fee = fee
		result.VendorID = fee.VendorID
		attempted = fee.VendorEarningsCents
		if fee.Status == enums.PlatformFeeStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has not been delivered; cancel it instead").
				WithDetails(map[string]any{"order_id": orderID.String()})
		}
		return s.reverse(ctx, tx, fee, reason, result, func(feeStatus enums.PlatformFeeStatus) (balances.Movement, error) {
			return s.balances.ReverseEarnings(ctx, tx, fee.VendorID, fee.VendorEarningsCents, feeStatus)
		})
	})
	if result.VendorID != uuid.Nil {
		logCtx = s.logg.WithVendorID(logCtx, result.VendorID)
	}
	if err != nil {
		err = balances.AsConflict(err)
		s.logFailure(logCtx, "order refund failed", err, attempted)
		if pkgerrors.IsCode(err, pkgerrors.CodeBalanceUnderflow) {
			s.report(logCtx, review.ItemFromError(enums.ReviewItemBalanceUnderflow, err, result.VendorID, &orderID, nil, attempted))
		}
		return nil, err
	}
	if result.Movement != balances.MovementNone {
		s.logg.Info(s.logg.WithField(logCtx, "amount_cents", attempted), "delivered order refunded")
	}
	return result, nil
}

func (s *service) settledFee(ctx context.Context, tx *gorm.DB, orderID, vendorID uuid.UUID) (*models.PlatformFee, error) {
	fee, err := s.ledger.FindFee(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if fee == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order has not been settled").
			WithDetails(map[string]any{"order_id": orderID.String()})
	}
	if vendorID != uuid.Nil && fee.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order belongs to a different vendor").
			WithDetails(map[string]any{"order_id": orderID.String(), "vendor_id": vendorID.String()})
	}
	return fee, nil
}

// release collects the fee and moves earnings from pending to available. The
// fee transition gates the balance change so a repeated delivery is a no-op.
func (s *service) release(ctx context.Context, tx *gorm.DB, fee *models.PlatformFee, change balances.StatusChange, result *Result) error {
	if fee.Status == enums.PlatformFeeStatusPending {
		moved, err := s.ledger.MarkCollected(ctx, tx, fee)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
	}
	movement, err := s.balances.ApplyOrderStatusChange(ctx, tx, change)
	if err != nil {
		return err
	}
	result.Movement = movement
	if movement != balances.MovementReleased {
		return nil
	}
	collected := *fee
	collected.Status = enums.PlatformFeeStatusCollected
	result.Fee = &collected
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEarningsReleased,
		AggregateType: enums.AggregatePlatformFee,
		AggregateID:   fee.ID,
		Actor:         outbox.SystemActor("settlement"),
		Data: payloads.EarningsReleasedEvent{
			PlatformFeeID: fee.ID,
			OrderID:       fee.OrderID,
			VendorID:      fee.VendorID,
			AmountCents:   fee.VendorEarningsCents,
			CollectedAt:   s.now(),
		},
	})
}

// reverse appends the compensating ledger entry and then lets apply remove the
// earnings from the bucket matching the fee's status before the reversal.
func (s *service) reverse(ctx context.Context, tx *gorm.DB, fee *models.PlatformFee, reason string, result *Result, apply func(enums.PlatformFeeStatus) (balances.Movement, error)) error {
	if fee.Status == enums.PlatformFeeStatusReversed {
		return nil
	}
	priorStatus := fee.Status
	reversal, created, err := s.ledger.RecordReversal(ctx, tx, fee, reason)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return nil
		}
		return err
	}
	if !created {
		return nil
	}
	movement, err := apply(priorStatus)
	if err != nil {
		return err
	}
	result.Movement = movement
	reversed := *fee
	reversed.Status = enums.PlatformFeeStatusReversed
	result.Fee = &reversed
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSettlementReversed,
		AggregateType: enums.AggregatePlatformFee,
		AggregateID:   fee.ID,
		Actor:         outbox.SystemActor("settlement"),
		Data: payloads.SettlementReversedEvent{
			PlatformFeeID: fee.ID,
			OrderID:       fee.OrderID,
			VendorID:      fee.VendorID,
			TransactionID: reversal.ID,
			AmountCents:   fee.VendorEarningsCents,
			Reason:        reason,
			FromAvailable: movement == balances.MovementReversedAvailable,
		},
	})
}

func (s *service) orderContext(ctx context.Context, vendorID, orderID uuid.UUID) context.Context {
	logCtx := s.logg.WithOrderID(ctx, orderID)
	if vendorID != uuid.Nil {
		logCtx = s.logg.WithVendorID(logCtx, vendorID)
	}
	return logCtx
}

func (s *service) report(ctx context.Context, item review.Item) {
	if _, err := s.review.Report(ctx, item); err != nil {
		s.logg.Error(ctx, "failed to open review item", err)
	}
}

func (s *service) logFailure(ctx context.Context, msg string, err error, attemptedCents int64) {
	logCtx := s.logg.WithField(ctx, "attempted_cents", attemptedCents)
	if typed := pkgerrors.As(err); typed != nil {
		logCtx = s.logg.WithField(logCtx, "error_code", typed.Code())
		if pkgerrors.MetadataFor(typed.Code()).HTTPStatus < 500 {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), msg)
			return
		}
	}
	s.logg.Error(logCtx, msg, err)
}
