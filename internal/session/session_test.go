package session

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
	"github.com/vadiminshakov/mrgnlend/internal/executor"
	"github.com/vadiminshakov/mrgnlend/internal/services/ledger"
	"github.com/vadiminshakov/mrgnlend/pkg/retrier"
)

const (
	testOwner = "wallet"
	testPool  = domain.PoolID("sol-bank")
)

type stubPricer struct {
	price decimal.Decimal
	err   error
}

func (p stubPricer) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return p.price, p.err
}

type sleeps struct {
	waits []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newTestSession(t *testing.T, lamports uint64, p stubPricer) (*Session, *ledger.Simulated, *sleeps) {
	t.Helper()

	sim := ledger.NewSimulated(testOwner, lamports, ledger.NewPools(domain.PoolInfo{
		ID:     testPool,
		Symbol: "SOL",
		APY:    decimal.RequireFromString("2.5"),
	}), nil)
	clock := &sleeps{}

	s, err := New(testOwner, sim, p, testPool,
		WithExecutorOptions(executor.WithRetryOptions(retrier.WithSleeper(clock.sleep))))
	require.NoError(t, err)

	return s, sim, clock
}

func TestNew_Validation(t *testing.T) {
	sim := ledger.NewSimulated(testOwner, 0, nil, nil)
	p := stubPricer{}

	_, err := New("", sim, p, testPool)
	assert.Error(t, err)
	_, err = New(testOwner, nil, p, testPool)
	assert.Error(t, err)
	_, err = New(testOwner, sim, nil, testPool)
	assert.Error(t, err)
	_, err = New(testOwner, sim, p, "")
	assert.Error(t, err)
}

func TestRefresh_NoAccount(t *testing.T) {
	s, _, _ := newTestSession(t, 2*domain.LamportsPerSOL, stubPricer{price: decimal.NewFromInt(150)})

	require.NoError(t, s.Refresh(context.Background()))

	w := s.Wallet()
	assert.True(t, w.SOLBalance.Equal(decimal.NewFromInt(2)))
	assert.True(t, w.SOLPrice.Equal(decimal.NewFromInt(150)))
	require.Len(t, w.Tokens, 1)
	assert.True(t, w.TotalValueUSD().Equal(decimal.NewFromInt(300)))

	assert.Nil(t, s.Account())
	assert.Empty(t, s.Positions())
	assert.True(t, s.MaxLend().Equal(decimal.NewFromInt(2)))
}

func TestRefresh_PriceFailureDegradesToZero(t *testing.T) {
	s, _, _ := newTestSession(t, domain.LamportsPerSOL, stubPricer{err: errors.New("all price sources failed")})

	w, err := s.RefreshWallet(context.Background())
	require.NoError(t, err)
	assert.True(t, w.SOLBalance.Equal(decimal.NewFromInt(1)))
	assert.True(t, w.SOLPrice.IsZero())
	assert.Empty(t, w.Tokens)
}

func TestLend_CreatesAccountAndReconciles(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestSession(t, 2*domain.LamportsPerSOL, stubPricer{price: decimal.NewFromInt(100)})
	require.NoError(t, s.Refresh(ctx))

	out, err := s.Lend(ctx, decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	require.True(t, out.Succeeded(), "outcome error: %v", out.Err)
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, clock.waits)
	require.NotNil(t, s.Account())

	require.NoError(t, s.Refresh(ctx))
	positions := s.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "SOL", positions[0].Symbol)
	assert.True(t, positions[0].Amount.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, positions[0].ValueUSD.Equal(decimal.NewFromInt(50)))
	assert.True(t, positions[0].Rate.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, s.Wallet().SOLBalance.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, s.Lending().TotalLentUSD().Equal(decimal.NewFromInt(50)))
}

func TestLend_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	s, sim, clock := newTestSession(t, domain.LamportsPerSOL, stubPricer{price: decimal.NewFromInt(100)})
	_, err := s.EnsureAccount(ctx)
	require.NoError(t, err)

	sim.FailNext(
		&ledger.SimulatedError{Class: domain.ClassBlockhashExpired, Msg: "blockhash expired"},
		errors.New("Transaction simulation failed: BlockhashNotFound"),
	)

	out, err := s.Lend(ctx, decimal.RequireFromString("0.1"))
	require.NoError(t, err)
	require.True(t, out.Succeeded())
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.waits)
}

func TestLend_InsufficientFundsFailsFast(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestSession(t, domain.LamportsPerSOL/10, stubPricer{})

	out, err := s.Lend(ctx, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.False(t, out.Succeeded())
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, domain.ClassNonRetryable, out.Class)
	assert.Contains(t, out.Err.Error(), "insufficient funds")
	assert.Empty(t, clock.waits)
}

func TestLend_InvalidAmount(t *testing.T) {
	s, _, _ := newTestSession(t, domain.LamportsPerSOL, stubPricer{})

	_, err := s.Lend(context.Background(), decimal.Zero)
	assert.Error(t, err)
	assert.Nil(t, s.Account())
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t, domain.LamportsPerSOL, stubPricer{price: decimal.NewFromInt(100)})

	_, err := s.Withdraw(ctx, domain.Position{Symbol: "SOL"}, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	out, err := s.Lend(ctx, decimal.RequireFromString("0.8"))
	require.NoError(t, err)
	require.True(t, out.Succeeded())
	require.NoError(t, s.Refresh(ctx))

	position := s.Positions()[0]
	source, ok := position.PrimarySource()
	require.True(t, ok)
	assert.Equal(t, testPool, source.Pool)

	out, err = s.Withdraw(ctx, position, decimal.RequireFromString("0.3"))
	require.NoError(t, err)
	require.True(t, out.Succeeded())

	require.NoError(t, s.Refresh(ctx))
	require.Len(t, s.Positions(), 1)
	assert.True(t, s.Positions()[0].Amount.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, s.Wallet().SOLBalance.Equal(decimal.RequireFromString("0.5")))

	_, err = s.Withdraw(ctx, domain.Position{Symbol: "SOL"}, decimal.NewFromInt(1))
	assert.Error(t, err)
}

func TestLendPool(t *testing.T) {
	s, _, _ := newTestSession(t, 0, stubPricer{})

	info, err := s.LendPool(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SOL", info.Symbol)
	assert.Equal(t, testPool, s.LendPoolID())

	_, err = s.Pool(context.Background(), "unknown")
	assert.ErrorIs(t, err, ledger.ErrPoolNotFound)
}
