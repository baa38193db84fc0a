// Package contract implements the timed-contract lifecycle: validation,
// drift-corrected countdown, exactly-once settlement, outcome reconciliation,
// and the orchestrating state machine.
package contract

import (
	"fmt"

	"github.com/quicktrade/secondsd/internal/domain"
)

// Validate checks a proposed contract against its duration tier and the
// user's available balance. It is a pure function with no side effects and
// must run before any network call. A nil return means the request may be
// submitted.
func Validate(req domain.ContractRequest, tier domain.DurationTier, availableBalance float64) *domain.ValidationError {
	if req.Amount < tier.MinAmount || req.Amount > tier.MaxAmount {
		return &domain.ValidationError{
			Reason:  domain.ReasonAmountOutOfRange,
			Message: fmt.Sprintf("amount must be between %g and %g %s", tier.MinAmount, tier.MaxAmount, req.FromAsset),
		}
	}
	if req.Amount <= 0 {
		return &domain.ValidationError{
			Reason:  domain.ReasonNonPositiveAmount,
			Message: "amount must be greater than 0",
		}
	}
	if availableBalance < req.Amount {
		return &domain.ValidationError{
			Reason:  domain.ReasonInsufficientBalance,
			Message: fmt.Sprintf("not enough %s balance", req.FromAsset),
		}
	}
	return nil
}
