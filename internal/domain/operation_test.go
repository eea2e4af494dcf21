package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOperationRequest(t *testing.T) {
	req, err := NewOperationRequest(OperationDeposit, decimal.RequireFromString("0.003"), "bank")
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID())
	assert.Equal(t, OperationDeposit, req.Kind())
	assert.Equal(t, PoolID("bank"), req.Target())
	assert.True(t, req.Amount().Equal(decimal.RequireFromString("0.003")))

	other, err := NewOperationRequest(OperationWithdraw, decimal.NewFromInt(1), "bank")
	require.NoError(t, err)
	assert.NotEqual(t, req.ID(), other.ID())
}

func TestNewOperationRequest_Invalid(t *testing.T) {
	_, err := NewOperationRequest(OperationDeposit, decimal.Zero, "bank")
	assert.Error(t, err)

	_, err = NewOperationRequest(OperationWithdraw, decimal.NewFromInt(1), "")
	assert.Error(t, err)

	_, err = NewOperationRequest(OperationKind(7), decimal.NewFromInt(1), "bank")
	assert.Error(t, err)
}

func TestOperationKind_RoundTrip(t *testing.T) {
	for _, k := range []OperationKind{OperationDeposit, OperationWithdraw} {
		parsed, err := ParseOperationKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseOperationKind("borrow")
	assert.Error(t, err)
}

func TestOutcome_Succeeded(t *testing.T) {
	assert.True(t, Outcome{TxID: "sig", Attempts: 1}.Succeeded())
	assert.False(t, Outcome{Err: errors.New("boom"), Attempts: 1}.Succeeded())
	assert.False(t, Outcome{}.Succeeded())
}

func TestErrorClass_Retryable(t *testing.T) {
	assert.True(t, ClassBlockhashExpired.Retryable())
	assert.True(t, ClassNetworkTransient.Retryable())
	assert.False(t, ClassNonRetryable.Retryable())
	assert.False(t, ClassNone.Retryable())
}

func TestLamportConversion(t *testing.T) {
	assert.True(t, LamportsToSOL(1_500_000_000).Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, uint64(3_000_000), SOLToLamports(decimal.RequireFromString("0.003")))
	assert.Equal(t, uint64(1), SOLToLamports(decimal.RequireFromString("0.0000000019")))
}
