package reconciliation

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/balances"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/review"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/dbtest"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/metrics"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
)

func newTestService(t *testing.T, batch int) (*db.Client, Service, prometheus.Gatherer) {
	t.Helper()
	client := dbtest.Open(t)
	reg := prometheus.NewRegistry()
	ledgerMetrics := metrics.NewLedgerMetrics(reg)
	logg := logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)

	balanceSvc, err := balances.NewService(balances.ServiceParams{
		Repository:      balances.NewRepository(client.DB()),
		DefaultCurrency: enums.CurrencyMXN,
	})
	require.NoError(t, err)
	reviewSvc, err := review.NewService(review.ServiceParams{
		Repository:        review.NewRepository(client.DB()),
		TransactionRunner: client,
		Outbox:            emitter,
		Logger:            logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repository:        NewRepository(client.DB()),
		Balances:          balanceSvc,
		Review:            reviewSvc,
		Outbox:            emitter,
		TransactionRunner: client,
		Logger:            logg,
		Metrics:           ledgerMetrics,
		BatchSize:         batch,
	})
	require.NoError(t, err)
	return client, svc, reg
}

// seedVendor writes a settled, delivered order worth earnings plus a paid
// payout, and a balance that matches the ledger.
func seedVendor(t *testing.T, client *db.Client, vendorID uuid.UUID, earnings, paid int64) {
	t.Helper()
	now := time.Now().UTC()
	orderID := uuid.New()
	fee := earnings * 15 / 85
	gdb := client.DB()

	require.NoError(t, gdb.Create(&models.PlatformFee{
		OrderID:             orderID,
		VendorID:            vendorID,
		OrderAmountCents:    earnings + fee,
		FeePercentage:       decimal.NewFromInt(15),
		FeeAmountCents:      fee,
		VendorEarningsCents: earnings,
		Currency:            enums.CurrencyMXN,
		Status:              enums.PlatformFeeStatusCollected,
		CreatedAt:           now,
	}).Error)
	for _, txn := range []models.LedgerTransaction{
		{VendorID: vendorID, OrderID: &orderID, Type: enums.TransactionTypeSale, AmountCents: earnings + fee},
		{VendorID: vendorID, OrderID: &orderID, Type: enums.TransactionTypeFee, AmountCents: -fee},
		{VendorID: vendorID, Type: enums.TransactionTypePayout, AmountCents: -paid},
	} {
		txn := txn
		txn.Currency = enums.CurrencyMXN
		txn.Status = enums.TransactionStatusCompleted
		txn.Description = "seed"
		txn.CreatedAt = now
		require.NoError(t, gdb.Create(&txn).Error)
	}
	require.NoError(t, gdb.Create(&models.VendorBalance{
		VendorID:            vendorID,
		AvailableCents:      earnings - paid,
		Currency:            enums.CurrencyMXN,
		LifetimeVolumeCents: earnings,
		LastUpdated:         now,
	}).Error)
}

func TestCheckDetectsEachDrift(t *testing.T) {
	vendorID := uuid.New()
	balance := models.VendorBalance{
		VendorID:            vendorID,
		AvailableCents:      -10,
		PendingCents:        500,
		LifetimeVolumeCents: 700,
	}

	found := Check(balance, 750, 500)
	require.Len(t, found, 3)
	assert.Equal(t, CheckNonNegative, found[0].Check)
	assert.Equal(t, "available", found[0].Bucket)
	assert.Equal(t, CheckLifetimeVolume, found[1].Check)
	assert.Equal(t, int64(750), found[1].ExpectedCents)
	assert.Equal(t, CheckLedgerTotal, found[2].Check)
	assert.Equal(t, int64(490), found[2].ActualCents)

	assert.Empty(t, Check(models.VendorBalance{LifetimeVolumeCents: 100, PendingCents: 100}, 100, 100))
}

func TestRunCleanLedger(t *testing.T) {
	client, svc, reg := newTestService(t, 2)
	for i := 0; i < 5; i++ {
		seedVendor(t, client, uuid.New(), 850, 300)
	}

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.VendorsChecked)
	assert.Empty(t, report.Discrepancies)

	assert.Zero(t, discrepancyCount(t, reg, CheckLedgerTotal))
}

func TestRunReportsDrift(t *testing.T) {
	client, svc, reg := newTestService(t, 10)
	healthy := uuid.New()
	drifted := uuid.New()
	seedVendor(t, client, healthy, 850, 0)
	seedVendor(t, client, drifted, 850, 0)

	require.NoError(t, client.DB().Model(&models.VendorBalance{}).
		Where("vendor_id = ?", drifted).
		Update("available_cents", 900).Error)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.VendorsChecked)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, drifted, report.Discrepancies[0].VendorID)
	assert.Equal(t, CheckLedgerTotal, report.Discrepancies[0].Check)
	assert.Equal(t, int64(850), report.Discrepancies[0].ExpectedCents)
	assert.Equal(t, int64(900), report.Discrepancies[0].ActualCents)

	var items int64
	require.NoError(t, client.DB().Model(&models.ReviewItem{}).
		Where("kind = ? AND vendor_id = ?", enums.ReviewItemBalanceDrift, drifted).
		Count(&items).Error)
	assert.Equal(t, int64(1), items)

	var events int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventVendorBalanceDrifted, drifted).
		Count(&events).Error)
	assert.Equal(t, int64(1), events)
	assert.Equal(t, float64(1), discrepancyCount(t, reg, CheckLedgerTotal))
}

func discrepancyCount(t *testing.T, reg prometheus.Gatherer, check string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != "luzimarket_ledger_reconciliation_discrepancies_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabel(metric.GetLabel(), "check", check) {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	return total
}

func hasLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
