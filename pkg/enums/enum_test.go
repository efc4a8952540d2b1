package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptsExactValues(t *testing.T) {
	status, err := ParsePayoutStatus("processing")
	require.NoError(t, err)
	assert.Equal(t, PayoutStatusProcessing, status)

	_, err = ParsePayoutStatus("PROCESSING")
	assert.EqualError(t, err, `invalid payout status "PROCESSING"`)

	currency, err := ParseCurrency("MXN")
	require.NoError(t, err)
	assert.Equal(t, CurrencyMXN, currency)
	_, err = ParseCurrency("mxn")
	assert.Error(t, err)
}

func TestIsValidRejectsUnknown(t *testing.T) {
	assert.True(t, EventPayoutPaid.IsValid())
	assert.False(t, OutboxEventType("payout_exploded").IsValid())
	assert.True(t, OutboxDLQReasonBadEnvelope.IsValid())
	assert.False(t, OutboxDLQErrorReason("").IsValid())
	assert.False(t, Currency("EUR").IsValid())
}

func TestTerminalPayoutStatuses(t *testing.T) {
	for _, s := range validPayoutStatuses {
		want := s == PayoutStatusPaid || s == PayoutStatusFailed
		assert.Equal(t, want, s.Terminal(), s)
	}
}
