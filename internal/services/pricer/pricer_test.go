package pricer

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockPricer is a simple mock for the Pricer interface.
type mockPricer struct {
	price   decimal.Decimal
	err     error
	symbols []string
}

func (m *mockPricer) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.symbols = append(m.symbols, symbol)
	return m.price, m.err
}

func TestChain_FirstSuccessWins(t *testing.T) {
	first := &mockPricer{err: errors.New("status 429")}
	second := &mockPricer{price: decimal.NewFromInt(150)}
	third := &mockPricer{price: decimal.NewFromInt(999)}

	chain := NewChain(zap.NewNop(),
		Source{Name: "coingecko", Pricer: first},
		Source{Name: "binance", Pricer: second},
		Source{Name: "bybit", Pricer: third},
	)

	price, err := chain.GetPrice(context.Background(), "sol")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, []string{"SOL"}, first.symbols)
	assert.Equal(t, []string{"SOL"}, second.symbols)
	assert.Empty(t, third.symbols)
}

func TestChain_SkipsZeroPrice(t *testing.T) {
	chain := NewChain(nil,
		Source{Name: "zero", Pricer: &mockPricer{price: decimal.Zero}},
		Source{Name: "ok", Pricer: &mockPricer{price: decimal.NewFromInt(2)}},
	)

	price, err := chain.GetPrice(context.Background(), "SOL")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(2)))
}

func TestChain_AllFail(t *testing.T) {
	chain := NewChain(nil,
		Source{Name: "a", Pricer: &mockPricer{err: errors.New("boom")}},
		Source{Name: "b", Pricer: &mockPricer{err: errors.New("bang")}},
	)

	_, err := chain.GetPrice(context.Background(), "SOL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: boom")
	assert.Contains(t, err.Error(), "b: bang")

	_, err = NewChain(nil).GetPrice(context.Background(), "SOL")
	assert.Error(t, err)
}

func TestPriceOrZero(t *testing.T) {
	ctx := context.Background()
	assert.True(t, PriceOrZero(ctx, &mockPricer{err: errors.New("down")}, "SOL", zap.NewNop()).IsZero())
	assert.True(t, PriceOrZero(ctx, &mockPricer{price: decimal.NewFromInt(3)}, "SOL", nil).Equal(decimal.NewFromInt(3)))
}
