package domain

import (
	"github.com/shopspring/decimal"
)

// BalanceEntry is one active balance slot of a lending account as reported by the ledger.
type BalanceEntry struct {
	Pool   PoolID
	Symbol string
	// AssetShares claim units held in the pool.
	AssetShares decimal.Decimal
	// NativeAmount shares converted by the pool exchange rate, in base units.
	NativeAmount decimal.Decimal
	// Decimals is nil when the asset does not declare a precision.
	Decimals *uint8
	Rate     decimal.Decimal
}

// Quantity returns the human-readable amount of the entry.
func (e BalanceEntry) Quantity() decimal.Decimal {
	precision := int32(DefaultDecimals)
	if e.Decimals != nil {
		precision = int32(*e.Decimals)
	}
	return e.NativeAmount.Shift(-precision)
}

// PositionSource is the share of a position held in a single pool.
type PositionSource struct {
	Pool   PoolID
	Amount decimal.Decimal
}

// Position is the merged lending position for one asset symbol.
type Position struct {
	Symbol   string
	Amount   decimal.Decimal
	Rate     decimal.Decimal
	ValueUSD decimal.Decimal
	Sources  []PositionSource
}

// PrimarySource returns the pool holding the largest part of the position.
func (p Position) PrimarySource() (PositionSource, bool) {
	if len(p.Sources) == 0 {
		return PositionSource{}, false
	}
	best := p.Sources[0]
	for _, s := range p.Sources[1:] {
		if s.Amount.GreaterThan(best.Amount) {
			best = s
		}
	}
	return best, true
}

// Reconcile merges active balance entries into per-symbol positions.
// Entries without positive asset shares are skipped. Quantities of entries sharing a
// symbol are summed and the highest rate wins. Output keeps first-seen symbol order.
func Reconcile(entries []BalanceEntry) []Position {
	positions := make([]Position, 0, len(entries))
	index := make(map[string]int, len(entries))

	for _, e := range entries {
		if !e.AssetShares.GreaterThan(decimal.Zero) {
			continue
		}
		qty := e.Quantity()

		i, ok := index[e.Symbol]
		if !ok {
			index[e.Symbol] = len(positions)
			positions = append(positions, Position{
				Symbol:  e.Symbol,
				Amount:  qty,
				Rate:    e.Rate,
				Sources: []PositionSource{{Pool: e.Pool, Amount: qty}},
			})
			continue
		}

		p := &positions[i]
		p.Amount = p.Amount.Add(qty)
		if e.Rate.GreaterThan(p.Rate) {
			p.Rate = e.Rate
		}
		p.Sources = append(p.Sources, PositionSource{Pool: e.Pool, Amount: qty})
	}

	return positions
}

// PriceValues fills ValueUSD of every position from a symbol price lookup.
func PriceValues(positions []Position, price func(symbol string) decimal.Decimal) {
	for i := range positions {
		positions[i].ValueUSD = positions[i].Amount.Mul(price(positions[i].Symbol))
	}
}
