package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicktrade/secondsd/internal/domain"
)

func testTier() domain.DurationTier {
	return domain.DurationTier{
		DurationSeconds:   30,
		PayoutRatePercent: 12,
		MinAmount:         100,
		MaxAmount:         100_000,
	}
}

func testRequest(amount float64) domain.ContractRequest {
	return domain.ContractRequest{
		Direction:       domain.DirectionUp,
		Amount:          amount,
		DurationSeconds: 30,
		FromAsset:       "USDT",
		ToAsset:         "BTC",
		OpenPrice:       65_000,
	}
}

func TestValidateAccepts(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		balance float64
	}{
		{"mid range", 5_000, 10_000},
		{"exactly min", 100, 10_000},
		{"exactly max", 100_000, 200_000},
		{"balance equals amount", 5_000, 5_000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verr := Validate(testRequest(tc.amount), testTier(), tc.balance)
			assert.Nil(t, verr)
		})
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		balance float64
		reason  domain.RejectReason
	}{
		{"just below min", 99.99, 10_000, domain.ReasonAmountOutOfRange},
		{"just above max", 100_000.01, 1_000_000, domain.ReasonAmountOutOfRange},
		{"zero amount", 0, 10_000, domain.ReasonAmountOutOfRange},
		{"negative amount", -50, 10_000, domain.ReasonAmountOutOfRange},
		{"insufficient balance", 5_000, 4_999.99, domain.ReasonInsufficientBalance},
		{"zero balance", 100, 0, domain.ReasonInsufficientBalance},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verr := Validate(testRequest(tc.amount), testTier(), tc.balance)
			require.NotNil(t, verr)
			assert.Equal(t, tc.reason, verr.Reason)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

// A zero or negative amount sits outside every tier's range, so the range
// check fires first; the non-positive branch guards tiers whose minimum is
// zero or below, which the production sheet never configures.
func TestValidateNonPositiveWithZeroMinTier(t *testing.T) {
	tier := domain.DurationTier{
		DurationSeconds:   30,
		PayoutRatePercent: 12,
		MinAmount:         -1,
		MaxAmount:         100,
	}

	verr := Validate(testRequest(0), tier, 1_000)
	require.NotNil(t, verr)
	assert.Equal(t, domain.ReasonNonPositiveAmount, verr.Reason)
}
