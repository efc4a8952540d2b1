// Package bankaccounts is the registry of vendor payout destinations.
package bankaccounts

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/payloads"
)

// Service registers, verifies and selects vendor bank accounts.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.BankAccount, error)
	Verify(ctx context.Context, vendorID, bankAccountID uuid.UUID) (*models.BankAccount, error)
	SetDefault(ctx context.Context, vendorID, bankAccountID uuid.UUID) (*models.BankAccount, error)
	GetDefault(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error)
	GetVerifiedDefault(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.BankAccount, error)
	Get(ctx context.Context, tx *gorm.DB, bankAccountID uuid.UUID) (*models.BankAccount, error)
	List(ctx context.Context, vendorID uuid.UUID) ([]models.BankAccount, error)
}

// RegisterInput describes a new payout destination. The first account a
// vendor registers becomes the default.
type RegisterInput struct {
	VendorID   uuid.UUID
	HolderName string
	HolderType enums.BankAccountHolderType
	BankName   string
	Last4      string
	Currency   enums.Currency
	Country    string
	IsDefault  bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the bank account service.
type ServiceParams struct {
	Repository        Repository
	TransactionRunner txRunner
	Outbox            eventEmitter
}

type service struct {
	repo     Repository
	txRunner txRunner
	outbox   eventEmitter
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bank account repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	return &service{
		repo:     params.Repository,
		txRunner: params.TransactionRunner,
		outbox:   params.Outbox,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*models.BankAccount, error) {
	account, err := input.toModel()
	if err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindDefault(ctx, input.VendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default bank account")
		}
		makeDefault := input.IsDefault || current == nil
		if makeDefault && current != nil {
			if err := repo.ClearDefault(ctx, input.VendorID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default bank account")
			}
		}
		account.IsDefault = makeDefault
		if err := repo.Create(ctx, account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bank account")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *service) Verify(ctx context.Context, vendorID, bankAccountID uuid.UUID) (*models.BankAccount, error) {
	var verified *models.BankAccount
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := s.loadOwned(ctx, repo, vendorID, bankAccountID)
		if err != nil {
			return err
		}
		if account.Verified() {
			verified = account
			return nil
		}
		at := s.now()
		if err := repo.MarkVerified(ctx, account.ID, at); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify bank account")
		}
		account.VerifiedAt = &at
		verified = account
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBankAccountVerified,
			AggregateType: enums.AggregateBankAccount,
			AggregateID:   account.ID,
			Data: payloads.BankAccountVerifiedEvent{
				BankAccountID: account.ID,
				VendorID:      account.VendorID,
				VerifiedAt:    at,
			},
			OccurredAt: at,
		})
	})
	if err != nil {
		return nil, err
	}
	return verified, nil
}

// SetDefault unsets the previous default and sets the new one in one transaction.
func (s *service) SetDefault(ctx context.Context, vendorID, bankAccountID uuid.UUID) (*models.BankAccount, error) {
	var updated *models.BankAccount
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := s.loadOwned(ctx, repo, vendorID, bankAccountID)
		if err != nil {
			return err
		}
		if account.IsDefault {
			updated = account
			return nil
		}
		if err := repo.ClearDefault(ctx, vendorID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default bank account")
		}
		if err := repo.MarkDefault(ctx, account.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set default bank account")
		}
		account.IsDefault = true
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetDefault returns the vendor's default account, or nil when none is set.
func (s *service) GetDefault(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	account, err := s.repo.FindDefault(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default bank account")
	}
	return account, nil
}

// GetVerifiedDefault is the payout destination lookup. A missing or
// unverified default fails with NO_VERIFIED_ACCOUNT.
func (s *service) GetVerifiedDefault(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.BankAccount, error) {
	account, err := s.repo.WithTx(tx).FindDefault(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default bank account")
	}
	if account == nil || !account.Verified() {
		return nil, pkgerrors.New(pkgerrors.CodeNoVerifiedAccount, "vendor has no verified default bank account").
			WithDetails(map[string]any{"vendor_id": vendorID.String()})
	}
	return account, nil
}

func (s *service) Get(ctx context.Context, tx *gorm.DB, bankAccountID uuid.UUID) (*models.BankAccount, error) {
	account, err := s.repo.WithTx(tx).FindByID(ctx, bankAccountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bank account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bank account not found")
	}
	return account, nil
}

func (s *service) List(ctx context.Context, vendorID uuid.UUID) ([]models.BankAccount, error) {
	rows, err := s.repo.ListByVendor(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bank accounts")
	}
	return rows, nil
}

func (s *service) loadOwned(ctx context.Context, repo Repository, vendorID, bankAccountID uuid.UUID) (*models.BankAccount, error) {
	account, err := repo.FindByID(ctx, bankAccountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bank account")
	}
	if account == nil || account.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bank account not found")
	}
	return account, nil
}

func (in RegisterInput) toModel() (*models.BankAccount, error) {
	if in.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	holder := strings.TrimSpace(in.HolderName)
	bank := strings.TrimSpace(in.BankName)
	if holder == "" || bank == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "holder name and bank name are required")
	}
	if !in.HolderType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid holder type %q", in.HolderType))
	}
	if !in.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", in.Currency))
	}
	if !isDigits(in.Last4, 4) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "last4 must be exactly four digits")
	}
	country := strings.ToUpper(strings.TrimSpace(in.Country))
	if len(country) != 2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "country must be an ISO 3166-1 alpha-2 code")
	}
	return &models.BankAccount{
		VendorID:   in.VendorID,
		HolderName: holder,
		HolderType: in.HolderType,
		BankName:   bank,
		Last4:      in.Last4,
		Currency:   in.Currency,
		Country:    country,
	}, nil
}

func isDigits(value string, length int) bool {
	if len(value) != length {
		return false
	}
	for _, r := range value {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
