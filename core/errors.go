package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/raid-guild/erc20-paymaster-go/types"
)

var (
	ErrMalformedDigest    = errors.New("malformed message digest")
	ErrMalformedSignature = errors.New("malformed signature")
	ErrInvalidQuote       = errors.New("invalid quote parameters")
	ErrQuoteOverflow      = errors.New("quote overflows uint256")
	ErrTransferFailed     = errors.New("ledger rejected transfer")
	ErrChargeNotFound     = errors.New("charge not found")
	ErrDoubleSettlement   = errors.New("charge already settled")
	ErrDoubleRefund       = errors.New("charge already refunded")
	ErrIllegalTransition  = errors.New("illegal state transition")
	ErrMissingVerifier    = errors.New("verifier address is not set")
	ErrMissingPaymaster   = errors.New("paymaster address is not set")
)

// RejectionError is a user-attributable failure that rejects a request before any token movement.
type RejectionError struct {
	Reason types.RejectionReason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func reject(reason types.RejectionReason, format string, args ...interface{}) *RejectionError {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// InvariantError reports a broken paymaster invariant. It is never a user retry condition.
type InvariantError struct {
	ChargeID string
	Err      error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("paymaster invariant violated for charge %s: %v", e.ChargeID, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// PendingTransaction is implemented by ledger errors for a write that was broadcast
// but whose outcome is unknown. The payer may already have been debited.
type PendingTransaction interface {
	error
	TxHash() common.Hash
}

// ReasonOf returns the rejection reason carried by err, if any.
func ReasonOf(err error) (types.RejectionReason, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
