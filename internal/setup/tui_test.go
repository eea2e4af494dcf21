package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/mrgnlend/config"
)

func TestAnswers_Tmp(t *testing.T) {
	t.Run("simulate", func(t *testing.T) {
		a := DefaultAnswers()
		a.Ledger = config.LedgerSimulate
		a.SimulateBalance = "3"
		a.APY = "4.1"

		tmp, err := a.Tmp()
		require.NoError(t, err)
		assert.Equal(t, config.LedgerSimulate, tmp.Ledger)
		assert.Empty(t, tmp.RPCURL)
		assert.Equal(t, "3", tmp.SimulateBalanceStr)
		assert.Equal(t, "4.1", tmp.Pools[0].APYStr)
	})

	t.Run("marginfi without key", func(t *testing.T) {
		a := DefaultAnswers()

		tmp, err := a.Tmp()
		require.NoError(t, err)
		assert.Empty(t, tmp.WalletKey)
		assert.Equal(t, config.DefaultRPCURL, tmp.RPCURL)
	})

	t.Run("rejects unknown source", func(t *testing.T) {
		a := DefaultAnswers()
		a.PriceSources = []string{"kraken"}

		_, err := a.Tmp()
		var cfgErr *config.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "price_sources", cfgErr.Field)
	})
}

func TestSave_RoundTrip(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	t.Setenv("WALLET_KEY", "")
	t.Setenv("MRGNLEND_WALLET_KEY", "")

	a := DefaultAnswers()
	a.WalletKey = key.String()
	a.PriceSources = []string{"binance", "coingecko"}
	a.LogLevel = "debug"

	path := filepath.Join(t.TempDir(), "nested", config.DefaultFileName)
	require.NoError(t, Save(path, a))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.LedgerMarginfi, cfg.Ledger)
	assert.Equal(t, key.String(), cfg.WalletKey)
	assert.Equal(t, []string{"binance", "coingecko"}, cfg.PriceSources)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Pools, 1)
	assert.True(t, cfg.Pools[0].APY.Equal(decimal.RequireFromString("2.5")))
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateURL("https://api.mainnet-beta.solana.com"))
	assert.Error(t, validateURL("api.mainnet-beta.solana.com"))

	assert.NoError(t, validateWalletKey(""))
	assert.Error(t, validateWalletKey("not-a-key"))

	assert.NoError(t, validateNonNegative("0"))
	assert.Error(t, validateNonNegative("-1"))
	assert.Error(t, validateNonNegative("abc"))
}

func TestSummary_HidesKey(t *testing.T) {
	a := DefaultAnswers()
	a.WalletKey = "secret"

	s := a.Summary()
	assert.NotContains(t, s, "secret")
	assert.Contains(t, s, "stored in file")
}
