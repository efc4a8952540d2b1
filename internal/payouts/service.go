// Package payouts drains eligible vendor balances into bank payouts.
package payouts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/balances"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/bankaccounts"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/ledger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/review"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/config"
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
	defaultListLimit = 50
	maxListLimit     = 200
)

var one = decimal.NewFromInt(1)

// Service is the payout processor.
type Service interface {
	SelectEligibleVendors(ctx context.Context, minThresholdCents int64) ([]uuid.UUID, error)
	CreatePayout(ctx context.Context, vendorID, bankAccountID uuid.UUID, fraction decimal.Decimal) (*models.Payout, error)
	RequestPayout(ctx context.Context, vendorID uuid.UUID, fraction *decimal.Decimal) (*models.Payout, error)
	RequestEligiblePayout(ctx context.Context, vendorID uuid.UUID, minThresholdCents int64, fraction *decimal.Decimal) (*models.Payout, error)
	Submit(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	MarkPaid(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) (*models.Payout, error)
	Confirm(ctx context.Context, payoutID uuid.UUID, outcome enums.PayoutOutcome, reason string) (*models.Payout, error)
	ListPayouts(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Payout, error)
	ListPending(ctx context.Context, limit int) ([]models.Payout, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithRetryingTx(ctx context.Context, policy dbpkg.RetryPolicy, retryable func(error) bool, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

type reviewReporter interface {
	Report(ctx context.Context, item review.Item) (*models.ReviewItem, error)
}

// ServiceParams groups dependencies for the payout processor.
type ServiceParams struct {
	Repository        Repository
	Balances          balances.Service
	Ledger            ledger.Service
	BankAccounts      bankaccounts.Service
	Review            reviewReporter
	Outbox            eventEmitter
	Rail              PaymentRail
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.LedgerMetrics
	Config            config.PayoutConfig
	RetryPolicy       dbpkg.RetryPolicy
}

type service struct {
	repo         Repository
	balances     balances.Service
	ledger       ledger.Service
	bankAccounts bankaccounts.Service
	review       reviewReporter
	outbox       eventEmitter
	rail         PaymentRail
	txRunner     txRunner
	logg         *logger.Logger
	metrics      *metrics.LedgerMetrics
	cfg          config.PayoutConfig
	policy       dbpkg.RetryPolicy
	now          func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repository == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout repository required")
	case params.Balances == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "balance service required")
	case params.Ledger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	case params.BankAccounts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bank account service required")
	case params.Review == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "review reporter required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	case params.TransactionRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	rail := params.Rail
	if rail == nil {
		rail = NewManualRail()
	}
	return &service{
		repo:         params.Repository,
		balances:     params.Balances,
		ledger:       params.Ledger,
		bankAccounts: params.BankAccounts,
		review:       params.Review,
		outbox:       params.Outbox,
		rail:         rail,
		txRunner:     params.TransactionRunner,
		logg:         params.Logger,
		metrics:      params.Metrics,
		cfg:          params.Config,
		policy:       params.RetryPolicy,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// SelectEligibleVendors lists vendors whose available balance reaches the
// threshold and who have a verified default bank account.
func (s *service) SelectEligibleVendors(ctx context.Context, minThresholdCents int64) ([]uuid.UUID, error) {
	if minThresholdCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minimum threshold must be non-negative")
	}
	ids, err := s.repo.ListEligibleVendorIDs(ctx, minThresholdCents, s.cfg.BatchLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select eligible vendors")
	}
	return ids, nil
}

// PayoutAmount computes round_half_up(available × fraction). Below a full
// payout the result keeps at least minResidual in the balance.
func PayoutAmount(availableCents int64, fraction decimal.Decimal, minResidualCents int64) int64 {
	amount := decimal.NewFromInt(availableCents).Mul(fraction).Round(0).IntPart()
	if fraction.LessThan(one) {
		if ceiling := availableCents - minResidualCents; amount > ceiling {
			amount = ceiling
		}
	}
	if amount > availableCents {
		amount = availableCents
	}
	return amount
}

// CreatePayout reserves the payout amount and writes the pending payout in one
// transaction. The balance is re-read inside that transaction, so a stale
// eligibility scan can never overdraw the vendor.
func (s *service) CreatePayout(ctx context.Context, vendorID, bankAccountID uuid.UUID, fraction decimal.Decimal) (*models.Payout, error) {
	return s.reserve(ctx, vendorID, bankAccountID, fraction, 0)
}

// reserve rejects the payout with INSUFFICIENT_BALANCE when the balance read
// in the deducting transaction is below minThresholdCents.
func (s *service) reserve(ctx context.Context, vendorID, bankAccountID uuid.UUID, fraction decimal.Decimal, minThresholdCents int64) (*models.Payout, error) {
	if vendorID == uuid.Nil || bankAccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id and bank account id are required")
	}
	if !fraction.IsPositive() || fraction.GreaterThan(one) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fraction must be greater than 0 and at most 1").
			WithDetails(map[string]any{"fraction": fraction.String()})
	}

	logCtx := s.logg.WithVendorID(ctx, vendorID)
	var created *models.Payout
	err := s.txRunner.WithRetryingTx(ctx, s.policy, balances.IsVersionConflict, func(tx *gorm.DB) error {
		account, err := s.bankAccounts.Get(ctx, tx, bankAccountID)
		if err != nil {
			return err
		}
		if account.VendorID != vendorID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "bank account not found")
		}
		if !account.Verified() {
			return pkgerrors.New(pkgerrors.CodeNoVerifiedAccount, "bank account is not verified").
				WithDetails(map[string]any{"vendor_id": vendorID.String()})
		}

		balance, err := s.balances.GetBalanceTx(ctx, tx, vendorID)
		if err != nil {
			return err
		}
		if account.Currency != balance.Currency {
			return pkgerrors.New(pkgerrors.CodeValidation, "bank account currency does not match vendor balance").
				WithDetails(map[string]any{"account_currency": account.Currency, "balance_currency": balance.Currency})
		}
		if balance.AvailableCents < minThresholdCents {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "available balance fell below the payout threshold").
				WithDetails(map[string]any{
					"vendor_id":       vendorID.String(),
					"available_cents": balance.AvailableCents,
					"threshold_cents": minThresholdCents,
				})
		}
		amount := PayoutAmount(balance.AvailableCents, fraction, s.cfg.MinResidualCents)
		if amount <= 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "available balance is too low for a payout").
				WithDetails(map[string]any{
					"vendor_id":       vendorID.String(),
					"available_cents": balance.AvailableCents,
					"attempted_cents": amount,
				})
		}

		if _, err := s.balances.ApplyPayout(ctx, tx, vendorID, amount); err != nil {
			return err
		}

		payout := &models.Payout{
			VendorID:      vendorID,
			BankAccountID: account.ID,
			AmountCents:   amount,
			Currency:      balance.Currency,
			Status:        enums.PayoutStatusPending,
			Method:        enums.PayoutMethodBankTransfer,
			CreatedAt:     s.now(),
		}
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		if err := s.emit(ctx, tx, enums.EventPayoutCreated, payout); err != nil {
			return err
		}
		created = payout
		return nil
	})
	if err != nil {
		err = balances.AsConflict(err)
		s.logFailure(logCtx, "payout creation failed", err, map[string]any{
			"bank_account_id": bankAccountID.String(),
			"fraction":        fraction.String(),
		})
		return nil, err
	}

	s.metrics.IncPayout(string(enums.PayoutStatusPending))
	logCtx = s.logg.WithPayoutID(logCtx, created.ID)
	s.logg.Info(s.logg.WithField(logCtx, "amount_cents", created.AmountCents), "payout created")
	return created, nil
}

// RequestPayout creates a payout to the vendor's verified default account,
// using the configured fraction when none is given.
func (s *service) RequestPayout(ctx context.Context, vendorID uuid.UUID, fraction *decimal.Decimal) (*models.Payout, error) {
	return s.requestDefault(ctx, vendorID, 0, fraction)
}

// RequestEligiblePayout is RequestPayout for a vendor picked by
// SelectEligibleVendors. The threshold is checked again in the deducting
// transaction.
func (s *service) RequestEligiblePayout(ctx context.Context, vendorID uuid.UUID, minThresholdCents int64, fraction *decimal.Decimal) (*models.Payout, error) {
	if minThresholdCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minimum threshold must be non-negative")
	}
	return s.requestDefault(ctx, vendorID, minThresholdCents, fraction)
}

func (s *service) requestDefault(ctx context.Context, vendorID uuid.UUID, minThresholdCents int64, fraction *decimal.Decimal) (*models.Payout, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	chosen := s.cfg.DefaultFraction
	if fraction != nil {
		chosen = *fraction
	}
	account, err := s.bankAccounts.GetVerifiedDefault(ctx, nil, vendorID)
	if err != nil {
		return nil, err
	}
	return s.reserve(ctx, vendorID, account.ID, chosen, minThresholdCents)
}

// Submit hands a pending payout to the payment rail and moves it to
// processing. Payouts past pending are returned unchanged.
func (s *service) Submit(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != enums.PayoutStatusPending {
		return payout, nil
	}
	account, err := s.bankAccounts.Get(ctx, nil, payout.BankAccountID)
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithPayoutID(s.logg.WithVendorID(ctx, payout.VendorID), payout.ID)
	reference, err := s.rail.Submit(ctx, *payout, *account)
	if err != nil {
		s.logg.Error(logCtx, "payment rail submission failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "submit payout to payment rail")
	}

	at := s.now()
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).Transition(ctx, payout.ID,
			[]enums.PayoutStatus{enums.PayoutStatusPending},
			enums.PayoutStatusProcessing,
			map[string]any{"rail_reference": reference, "processed_at": at},
		)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout processing")
		}
		if !moved {
			return nil
		}
		payout.Status = enums.PayoutStatusProcessing
		payout.RailReference = &reference
		payout.ProcessedAt = &at
		return s.emit(ctx, tx, enums.EventPayoutProcessing, payout)
	})
	if err != nil {
		return nil, err
	}
	if payout.Status != enums.PayoutStatusProcessing {
		return s.Get(ctx, payoutID)
	}
	s.metrics.IncPayout(string(enums.PayoutStatusProcessing))
	s.logg.Info(s.logg.WithField(logCtx, "rail_reference", reference), "payout submitted")
	return payout, nil
}

// MarkPaid settles a payout: it appends the ledger payout entry and releases
// the reserved funds. Re-confirming a paid payout is a no-op.
func (s *service) MarkPaid(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	return s.finish(ctx, payoutID, enums.PayoutStatusPaid, "")
}

// MarkFailed returns a payout's reserved funds to available. No ledger entry
// is written for a failed payout.
func (s *service) MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) (*models.Payout, error) {
	return s.finish(ctx, payoutID, enums.PayoutStatusFailed, reason)
}

// Confirm applies the payment rail's verdict. Unknown payouts are queued for review.
func (s *service) Confirm(ctx context.Context, payoutID uuid.UUID, outcome enums.PayoutOutcome, reason string) (*models.Payout, error) {
	if !outcome.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payout outcome %q", outcome))
	}
	var (
		payout *models.Payout
		err    error
	)
	if outcome == enums.PayoutOutcomePaid {
		payout, err = s.MarkPaid(ctx, payoutID)
	} else {
		payout, err = s.MarkFailed(ctx, payoutID, reason)
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		id := payoutID
		if _, reportErr := s.review.Report(ctx, review.Item{
			Kind:     enums.ReviewItemUnknownPayout,
			PayoutID: &id,
			Message:  fmt.Sprintf("payment rail confirmed unknown payout as %s", outcome),
		}); reportErr != nil {
			s.logg.Error(s.logg.WithPayoutID(ctx, payoutID), "failed to report unknown payout", reportErr)
		}
	}
	return payout, err
}

func (s *service) finish(ctx context.Context, payoutID uuid.UUID, to enums.PayoutStatus, reason string) (*models.Payout, error) {
	logCtx := s.logg.WithPayoutID(ctx, payoutID)
	reason = strings.TrimSpace(reason)

	var (
		result  *models.Payout
		changed bool
	)
	err := s.txRunner.WithRetryingTx(ctx, s.policy, balances.IsVersionConflict, func(tx *gorm.DB) error {
		changed = false
		repo := s.repo.WithTx(tx)
		payout, err := repo.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
		}
		if payout == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found").
				WithDetails(map[string]any{"payout_id": payoutID.String()})
		}
		if payout.Status == to {
			result = payout
			return nil
		}
		if payout.Status.Terminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payout is already %s", payout.Status)).
				WithDetails(map[string]any{"payout_id": payoutID.String(), "status": payout.Status, "requested": to})
		}

		at := s.now()
		fields := map[string]any{}
		if to == enums.PayoutStatusPaid {
			fields["paid_at"] = at
		} else {
			if reason == "" {
				reason = "rejected by payment rail"
			}
			fields["failed_at"] = at
			fields["failure_reason"] = reason
		}
		moved, err := repo.Transition(ctx, payout.ID, []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusProcessing}, to, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout changed concurrently")
		}

		payout.Status = to
		if to == enums.PayoutStatusPaid {
			payout.PaidAt = &at
			if _, err := s.ledger.RecordPayout(ctx, tx, payout); err != nil {
				return err
			}
			if _, err := s.balances.ReleaseReserved(ctx, tx, payout.VendorID, payout.AmountCents); err != nil {
				return err
			}
			if err := s.emit(ctx, tx, enums.EventPayoutPaid, payout); err != nil {
				return err
			}
		} else {
			payout.FailedAt = &at
			payout.FailureReason = &reason
			if _, err := s.balances.RestoreReserved(ctx, tx, payout.VendorID, payout.AmountCents); err != nil {
				return err
			}
			if err := s.emit(ctx, tx, enums.EventPayoutFailed, payout); err != nil {
				return err
			}
		}
		result = payout
		changed = true
		return nil
	})
	if err != nil {
		err = balances.AsConflict(err)
		s.logFailure(logCtx, "payout confirmation failed", err, map[string]any{"requested_status": to})
		if pkgerrors.IsCode(err, pkgerrors.CodeBalanceUnderflow) {
			s.reportUnderflow(ctx, payoutID, err)
		}
		return nil, err
	}

	if changed {
		s.metrics.IncPayout(string(to))
		logCtx = s.logg.WithVendorID(logCtx, result.VendorID)
		s.logg.Info(s.logg.WithField(logCtx, "amount_cents", result.AmountCents), "payout "+string(to))
	}
	return result, nil
}

func (s *service) ListPayouts(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Payout, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	rows, err := s.repo.ListByVendor(ctx, vendorID, clampLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return rows, nil
}

// ListPending returns payouts still waiting for rail submission, oldest first.
func (s *service) ListPending(ctx context.Context, limit int) ([]models.Payout, error) {
	rows, err := s.repo.ListByStatus(ctx, enums.PayoutStatusPending, clampLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending payouts")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	if payout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found").
			WithDetails(map[string]any{"payout_id": payoutID.String()})
	}
	return payout, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payout *models.Payout) error {
	event := payloads.PayoutStatusEvent{
		PayoutID:      payout.ID,
		VendorID:      payout.VendorID,
		BankAccountID: payout.BankAccountID,
		AmountCents:   payout.AmountCents,
		Currency:      payout.Currency,
		Status:        payout.Status,
	}
	if payout.RailReference != nil {
		event.RailReference = *payout.RailReference
	}
	if payout.FailureReason != nil {
		event.FailureReason = *payout.FailureReason
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Data:          event,
	})
}

func (s *service) reportUnderflow(ctx context.Context, payoutID uuid.UUID, cause error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil || payout == nil {
		return
	}
	id := payout.ID
	item := review.ItemFromError(enums.ReviewItemBalanceUnderflow, cause, payout.VendorID, nil, &id, payout.AmountCents)
	if _, err := s.review.Report(ctx, item); err != nil {
		s.logg.Error(s.logg.WithPayoutID(ctx, payoutID), "failed to report payout underflow", err)
	}
}

func (s *service) logFailure(ctx context.Context, msg string, err error, fields map[string]any) {
	logCtx := s.logg.WithFields(ctx, fields)
	if typed := pkgerrors.As(err); typed != nil {
		logCtx = s.logg.WithField(logCtx, "error_code", typed.Code())
		if pkgerrors.MetadataFor(typed.Code()).HTTPStatus < 500 {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), msg)
			return
		}
	}
	s.logg.Error(logCtx, msg, err)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
