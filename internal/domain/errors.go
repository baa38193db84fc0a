package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrStillRunning    = errors.New("contract still running")
	ErrUnknownDuration = errors.New("no tier for duration")
	ErrNoPrice         = errors.New("no reference price available")
	ErrLockHeld        = errors.New("lock already held")
)

// RejectReason classifies a local validation failure. Validation errors are
// detected before any network call and block submission entirely.
type RejectReason string

const (
	ReasonAmountOutOfRange    RejectReason = "amount_out_of_range"
	ReasonNonPositiveAmount   RejectReason = "non_positive_amount"
	ReasonInsufficientBalance RejectReason = "insufficient_balance"
)

// ValidationError is returned by the contract validator. It carries a
// machine-readable reason and a message suitable for display.
type ValidationError struct {
	Reason  RejectReason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate: %s: %s", e.Reason, e.Message)
}

// IssueErrorKind classifies a contract-open failure. Issue errors occur only
// while Requesting and leave the system in Idle; resubmission recovers them.
type IssueErrorKind string

const (
	IssueUnauthorized    IssueErrorKind = "unauthorized"
	IssueNetwork         IssueErrorKind = "network"
	IssueInvalidResponse IssueErrorKind = "invalid_response"
)

// IssueError is returned by the contract request issuer when the backend open
// call fails. An empty requestId on a nominally successful call is an
// InvalidResponse, not a crash: a contract must never start a timer without a
// usable settlement key.
type IssueError struct {
	Kind IssueErrorKind
	Err  error
}

func (e *IssueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("issue: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("issue: %s", e.Kind)
}

func (e *IssueError) Unwrap() error {
	return e.Err
}
