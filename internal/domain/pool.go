package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL native units in one SOL.
const LamportsPerSOL = 1_000_000_000

// DefaultDecimals precision used when a pool does not declare its own.
const DefaultDecimals = 9

// PoolID identifies a lending pool (a marginfi bank address).
type PoolID string

// Account is the user's lending account on the remote ledger.
type Account struct {
	Address string
	Owner   string
}

// PoolInfo describes one lending market for one asset.
type PoolInfo struct {
	ID     PoolID
	Symbol string
	Name   string
	Mint   string
	// Decimals is nil when the pool does not declare a precision.
	Decimals        *uint8
	AssetShareValue decimal.Decimal
	LiquidityVault  string
	Oracle          string
	// APY is the supply rate declared in configuration, in percent.
	APY decimal.Decimal
}

// Precision returns the declared decimals or DefaultDecimals.
func (p PoolInfo) Precision() int32 {
	if p.Decimals == nil {
		return DefaultDecimals
	}
	return int32(*p.Decimals)
}

// LamportsToSOL converts native units to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// SOLToLamports converts SOL to native units, truncating sub-lamport dust.
func SOLToLamports(sol decimal.Decimal) uint64 {
	return uint64(sol.Shift(9).Truncate(0).IntPart())
}
