package domain

import "github.com/shopspring/decimal"

// MinDisplayValueUSD tokens worth less than this are hidden from the wallet view.
var MinDisplayValueUSD = decimal.NewFromFloat(0.1)

// TokenHolding is a wallet token worth displaying.
type TokenHolding struct {
	Symbol   string
	Balance  decimal.Decimal
	PriceUSD decimal.Decimal
	ValueUSD decimal.Decimal
}

// WalletStatus is the reconciled wallet view.
type WalletStatus struct {
	Address    string
	SOLBalance decimal.Decimal
	SOLPrice   decimal.Decimal
	Tokens     []TokenHolding
}

// NewWalletStatus builds the wallet view, listing SOL only when its value exceeds MinDisplayValueUSD.
func NewWalletStatus(address string, solBalance, solPrice decimal.Decimal) WalletStatus {
	status := WalletStatus{
		Address:    address,
		SOLBalance: solBalance,
		SOLPrice:   solPrice,
	}

	value := solBalance.Mul(solPrice)
	if value.GreaterThan(MinDisplayValueUSD) {
		status.Tokens = append(status.Tokens, TokenHolding{
			Symbol:   "SOL",
			Balance:  solBalance,
			PriceUSD: solPrice,
			ValueUSD: value,
		})
	}

	return status
}

// TotalValueUSD sums the value of listed tokens.
func (w WalletStatus) TotalValueUSD() decimal.Decimal {
	total := decimal.Zero
	for _, t := range w.Tokens {
		total = total.Add(t.ValueUSD)
	}
	return total
}

// LendingStatus is the reconciled view of lending positions.
type LendingStatus struct {
	Account   string
	Positions []Position
}

// TotalLentUSD sums position values.
func (l LendingStatus) TotalLentUSD() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.Positions {
		total = total.Add(p.ValueUSD)
	}
	return total
}
