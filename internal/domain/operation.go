// Package domain defines core data structures used throughout the lending client.
package domain

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// OperationRequest is a deposit or withdrawal accepted for submission.
// Fields are unexported so a request cannot change once built.
type OperationRequest struct {
	id     string
	kind   OperationKind
	amount decimal.Decimal
	target PoolID
}

// NewOperationRequest validates and builds an OperationRequest.
func NewOperationRequest(kind OperationKind, amount decimal.Decimal, target PoolID) (OperationRequest, error) {
	if kind != OperationDeposit && kind != OperationWithdraw {
		return OperationRequest{}, errors.Errorf("unsupported operation kind %d", kind)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return OperationRequest{}, errors.Errorf("operation amount must be greater than zero, got %s", amount.String())
	}
	if target == "" {
		return OperationRequest{}, errors.New("operation target pool is required")
	}

	return OperationRequest{
		id:     uuid.New().String(),
		kind:   kind,
		amount: amount,
		target: target,
	}, nil
}

// ID returns the request identifier used to correlate logs.
func (r OperationRequest) ID() string { return r.id }

// Kind returns the operation kind.
func (r OperationRequest) Kind() OperationKind { return r.kind }

// Amount returns the requested amount in human units (SOL, not lamports).
func (r OperationRequest) Amount() decimal.Decimal { return r.amount }

// Target returns the pool the operation is submitted against.
func (r OperationRequest) Target() PoolID { return r.target }

// ErrorClass is the retry classification of a failed submission.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassBlockhashExpired
	ClassNetworkTransient
	ClassNonRetryable
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassBlockhashExpired:
		return "blockhash_expired"
	case ClassNetworkTransient:
		return "network_transient"
	case ClassNonRetryable:
		return "non_retryable"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may succeed.
func (c ErrorClass) Retryable() bool {
	return c == ClassBlockhashExpired || c == ClassNetworkTransient
}

// Outcome is the final result of one executor invocation.
// A submission that timed out but landed on-chain is reported as a failure.
type Outcome struct {
	TxID      string
	Err       error
	Class     ErrorClass
	Attempts  int
	Exhausted bool
}

// Succeeded reports whether the operation produced a transaction id.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.TxID != ""
}
