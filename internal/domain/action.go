package domain

import "fmt"

// OperationKind represents the type of lending operation to be submitted.
type OperationKind int

const (
	OperationDeposit OperationKind = iota
	OperationWithdraw
)

// operation kind string constants to avoid magic strings
const (
	operationStringDeposit  = "deposit"
	operationStringWithdraw = "withdraw"
)

// String returns the string representation of the operation kind
func (k OperationKind) String() string {
	switch k {
	case OperationDeposit:
		return operationStringDeposit
	case OperationWithdraw:
		return operationStringWithdraw
	default:
		return "unknown"
	}
}

// ParseOperationKind converts a string to an OperationKind.
func ParseOperationKind(s string) (OperationKind, error) {
	switch s {
	case operationStringDeposit:
		return OperationDeposit, nil
	case operationStringWithdraw:
		return OperationWithdraw, nil
	default:
		return 0, fmt.Errorf("unknown operation kind: %q", s)
	}
}
