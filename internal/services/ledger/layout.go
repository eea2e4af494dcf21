package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// marginfi account layout: discriminator, group, authority, then fixed balance slots.
const (
	accountGroupOffset     = 8
	accountAuthorityOffset = 40
	accountBalancesOffset  = 72
	maxBalances            = 16
	balanceSize            = 104
	accountMinSize         = accountBalancesOffset + maxBalances*balanceSize

	balanceBankOffset   = 1
	balanceSharesOffset = 40
	balanceLiabOffset   = 56
)

// bank layout up to the liquidity vault.
const (
	bankMintOffset           = 8
	bankDecimalsOffset       = 40
	bankGroupOffset          = 41
	bankAssetShareOffset     = 80
	bankLiabShareOffset      = 96
	bankLiquidityVaultOffset = 112
	bankMinSize              = bankLiquidityVaultOffset + 32
)

const i80f48Size = 16

// 2^-48 written as 5^48 * 10^-48 so the conversion stays exact.
var i80f48Scale = new(big.Int).Exp(big.NewInt(5), big.NewInt(48), nil)

var twoPow128 = new(big.Int).Lsh(big.NewInt(1), 128)

// decodeI80F48 reads a little-endian signed 128-bit fixed point number with 48 fractional bits.
func decodeI80F48(b []byte) decimal.Decimal {
	be := make([]byte, i80f48Size)
	for i := 0; i < i80f48Size; i++ {
		be[i] = b[i80f48Size-1-i]
	}

	v := new(big.Int).SetBytes(be)
	if be[0]&0x80 != 0 {
		v.Sub(v, twoPow128)
	}

	return decimal.NewFromBigInt(v.Mul(v, i80f48Scale), -48)
}

type accountBalance struct {
	Bank            solana.PublicKey
	AssetShares     decimal.Decimal
	LiabilityShares decimal.Decimal
}

type marginfiAccount struct {
	Group     solana.PublicKey
	Authority solana.PublicKey
	Balances  []accountBalance
}

// parseMarginfiAccount decodes the active balance slots of a lending account.
func parseMarginfiAccount(data []byte) (marginfiAccount, error) {
	if len(data) < accountMinSize {
		return marginfiAccount{}, errors.Errorf("marginfi account data too short: %d bytes", len(data))
	}

	acc := marginfiAccount{
		Group:     solana.PublicKeyFromBytes(data[accountGroupOffset : accountGroupOffset+32]),
		Authority: solana.PublicKeyFromBytes(data[accountAuthorityOffset : accountAuthorityOffset+32]),
	}

	for i := 0; i < maxBalances; i++ {
		slot := data[accountBalancesOffset+i*balanceSize : accountBalancesOffset+(i+1)*balanceSize]
		if slot[0] == 0 {
			continue
		}
		acc.Balances = append(acc.Balances, accountBalance{
			Bank:            solana.PublicKeyFromBytes(slot[balanceBankOffset : balanceBankOffset+32]),
			AssetShares:     decodeI80F48(slot[balanceSharesOffset : balanceSharesOffset+i80f48Size]),
			LiabilityShares: decodeI80F48(slot[balanceLiabOffset : balanceLiabOffset+i80f48Size]),
		})
	}

	return acc, nil
}

type bank struct {
	Mint                solana.PublicKey
	Decimals            uint8
	Group               solana.PublicKey
	AssetShareValue     decimal.Decimal
	LiabilityShareValue decimal.Decimal
	LiquidityVault      solana.PublicKey
}

// parseBank decodes the leading fields of a marginfi bank.
func parseBank(data []byte) (bank, error) {
	if len(data) < bankMinSize {
		return bank{}, errors.Errorf("marginfi bank data too short: %d bytes", len(data))
	}

	return bank{
		Mint:                solana.PublicKeyFromBytes(data[bankMintOffset : bankMintOffset+32]),
		Decimals:            data[bankDecimalsOffset],
		Group:               solana.PublicKeyFromBytes(data[bankGroupOffset : bankGroupOffset+32]),
		AssetShareValue:     decodeI80F48(data[bankAssetShareOffset : bankAssetShareOffset+i80f48Size]),
		LiabilityShareValue: decodeI80F48(data[bankLiabShareOffset : bankLiabShareOffset+i80f48Size]),
		LiquidityVault:      solana.PublicKeyFromBytes(data[bankLiquidityVaultOffset : bankLiquidityVaultOffset+32]),
	}, nil
}

// anchorDiscriminator returns the 8-byte instruction selector Anchor derives from the method name.
func anchorDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// amountData encodes an Anchor (u64, Option<bool>) argument pair.
func amountData(name string, amount uint64, flag *bool) []byte {
	data := make([]byte, 0, 8+8+2)
	data = append(data, anchorDiscriminator(name)...)
	data = binary.LittleEndian.AppendUint64(data, amount)
	if flag == nil {
		return append(data, 0)
	}
	if *flag {
		return append(data, 1, 1)
	}
	return append(data, 1, 0)
}
