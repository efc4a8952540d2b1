// Package vendors resolves the commission rate charged to each vendor.
package vendors

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Commission is the rate applied to a vendor's orders.
type Commission struct {
	VendorID   uuid.UUID
	Percent    decimal.Decimal
	Currency   enums.Currency
	Configured bool
}

// Service reads and updates vendor commission configuration.
type Service interface {
	CommissionFor(ctx context.Context, vendorID uuid.UUID) (Commission, error)
	SetCommission(ctx context.Context, vendorID uuid.UUID, percent decimal.Decimal, currency enums.Currency) (*models.VendorAccount, error)
}

// ServiceParams groups dependencies for the vendor service.
type ServiceParams struct {
	Repository        Repository
	DefaultCommission decimal.Decimal
	DefaultCurrency   enums.Currency
}

type service struct {
	repo              Repository
	defaultCommission decimal.Decimal
	defaultCurrency   enums.Currency
}

// NewService constructs a vendor service. Vendors without a configured row are
// charged the default commission in the default currency.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "vendor repository required")
	}
	if err := validatePercent(params.DefaultCommission); err != nil {
		return nil, fmt.Errorf("default commission: %w", err)
	}
	currency := params.DefaultCurrency
	if currency == "" {
		currency = enums.CurrencyMXN
	}
	if !currency.IsValid() {
		return nil, fmt.Errorf("invalid default currency %q", currency)
	}
	return &service{
		repo:              params.Repository,
		defaultCommission: params.DefaultCommission,
		defaultCurrency:   currency,
	}, nil
}

func (s *service) CommissionFor(ctx context.Context, vendorID uuid.UUID) (Commission, error) {
	if vendorID == uuid.Nil {
		return Commission{}, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	account, err := s.repo.Get(ctx, vendorID)
	if err != nil {
		return Commission{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor account")
	}
	if account == nil {
		return Commission{
			VendorID: vendorID,
			Percent:  s.defaultCommission,
			Currency: s.defaultCurrency,
		}, nil
	}
	return Commission{
		VendorID:   vendorID,
		Percent:    account.CommissionPercent,
		Currency:   account.Currency,
		Configured: true,
	}, nil
}

func (s *service) SetCommission(ctx context.Context, vendorID uuid.UUID, percent decimal.Decimal, currency enums.Currency) (*models.VendorAccount, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if err := validatePercent(percent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", currency))
	}

	account := &models.VendorAccount{
		VendorID:          vendorID,
		CommissionPercent: percent.Round(2),
		Currency:          currency,
	}
	if err := s.repo.Upsert(ctx, account); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save vendor account")
	}
	return s.repo.Get(ctx, vendorID)
}

func validatePercent(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return fmt.Errorf("commission percent must be between 0 and 100")
	}
	return nil
}
