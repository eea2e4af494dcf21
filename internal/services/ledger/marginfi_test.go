package ledger

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
)

type fakeRPC struct {
	program  solana.PublicKey
	balance  uint64
	accounts map[solana.PublicKey][]byte
	search   rpc.GetProgramAccountsResult
	sendErr  error

	filters []rpc.RPCFilter
	sent    []*solana.Transaction
}

func (f *fakeRPC) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return &rpc.GetBalanceResult{Value: f.balance}, nil
}

func (f *fakeRPC) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	data, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{
		Owner: f.program,
		Data:  rpc.DataBytesOrJSONFromBytes(data),
	}}, nil
}

func (f *fakeRPC) GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	f.filters = opts.Filters
	return f.search, nil
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{1, 2, 3}}}, nil
}

func (f *fakeRPC) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	return 2_039_280, nil
}

func (f *fakeRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

type marginfiFixture struct {
	rpc     *fakeRPC
	ledger  *Marginfi
	wallet  solana.PrivateKey
	account solana.PublicKey
	bank    solana.PublicKey
}

func newMarginfiFixture(t *testing.T, shares decimal.Decimal) marginfiFixture {
	t.Helper()

	wallet, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	program := solana.MustPublicKeyFromBase58(DefaultProgramID)
	group := solana.MustPublicKeyFromBase58(DefaultGroup)
	bank := solana.MustPublicKeyFromBase58(DefaultSOLBank)
	account := solana.NewWallet().PublicKey()
	vault := solana.NewWallet().PublicKey()

	f := &fakeRPC{
		program: program,
		balance: 1_500_000_000,
		accounts: map[solana.PublicKey][]byte{
			bank:    bankFixture(solana.WrappedSol, group, vault, 9, decimal.RequireFromString("1.1")),
			account: accountFixture(group, wallet.PublicKey(), fixtureBalance{bank: bank, shares: shares}),
		},
	}

	pools := NewPools(domain.PoolInfo{
		ID:     domain.PoolID(DefaultSOLBank),
		Symbol: "SOL",
		Name:   "mrgnlend SOL Pool",
		Oracle: solana.NewWallet().PublicKey().String(),
		APY:    decimal.RequireFromString("2.5"),
	})

	m, err := NewMarginfi(f, wallet, MarginfiConfig{PriorityFeeMicroLamports: DefaultPriorityFeeMicroLamports}, pools, nil)
	require.NoError(t, err)

	return marginfiFixture{rpc: f, ledger: m, wallet: wallet, account: account, bank: bank}
}

func (fx marginfiFixture) domainAccount() domain.Account {
	return domain.Account{Address: fx.account.String(), Owner: fx.wallet.PublicKey().String()}
}

func TestMarginfi_GetBalance(t *testing.T) {
	fx := newMarginfiFixture(t, decimal.Zero)

	lamports, err := fx.ledger.GetBalance(context.Background(), fx.wallet.PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), lamports)

	_, err = fx.ledger.GetBalance(context.Background(), "not-a-key")
	assert.Error(t, err)
}

func TestMarginfi_ResolveAccount(t *testing.T) {
	fx := newMarginfiFixture(t, decimal.Zero)
	owner := fx.wallet.PublicKey().String()

	acc, err := fx.ledger.ResolveAccount(context.Background(), owner)
	require.NoError(t, err)
	assert.Nil(t, acc)

	require.Len(t, fx.rpc.filters, 2)
	assert.Equal(t, uint64(8), fx.rpc.filters[0].Memcmp.Offset)
	assert.Equal(t, uint64(40), fx.rpc.filters[1].Memcmp.Offset)
	assert.Equal(t, solana.Base58(fx.wallet.PublicKey().Bytes()), fx.rpc.filters[1].Memcmp.Bytes)

	fx.rpc.search = rpc.GetProgramAccountsResult{{Pubkey: fx.account}}
	acc, err = fx.ledger.ResolveAccount(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, fx.account.String(), acc.Address)
	assert.Equal(t, owner, acc.Owner)
}

func TestMarginfi_ResolvePinnedAccount(t *testing.T) {
	fx := newMarginfiFixture(t, decimal.Zero)
	fx.ledger.pinned = &fx.account

	acc, err := fx.ledger.ResolveAccount(context.Background(), fx.wallet.PublicKey().String())
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, fx.account.String(), acc.Address)

	_, err = fx.ledger.ResolveAccount(context.Background(), solana.NewWallet().PublicKey().String())
	assert.Error(t, err)
}

func TestMarginfi_ListActiveBalances(t *testing.T) {
	fx := newMarginfiFixture(t, decimal.NewFromInt(2_000_000_000))

	entries, err := fx.ledger.ListActiveBalances(context.Background(), fx.domainAccount())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, domain.PoolID(DefaultSOLBank), e.Pool)
	assert.Equal(t, "SOL", e.Symbol)
	require.NotNil(t, e.Decimals)
	assert.Equal(t, uint8(9), *e.Decimals)
	assert.True(t, e.Rate.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, e.Quantity().Sub(decimal.RequireFromString("2.2")).Abs().LessThan(decimal.New(1, -9)), "got %s", e.Quantity())
}

func TestMarginfi_LookupPool(t *testing.T) {
	fx := newMarginfiFixture(t, decimal.Zero)

	info, err := fx.ledger.LookupPool(context.Background(), domain.PoolID(DefaultSOLBank))
	require.NoError(t, err)
	assert.Equal(t, solana.WrappedSol.String(), info.Mint)
	assert.Equal(t, "mrgnlend SOL Pool", info.Name)
	assert.Equal(t, int32(9), info.Precision())

	_, err = fx.ledger.LookupPool(context.Background(), domain.PoolID(solana.NewWallet().PublicKey().String()))
	assert.ErrorIs(t, err, ErrPoolNotFound)

	_, err = fx.ledger.LookupPool(context.Background(), "bogus")
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestMarginfi_SubmitDeposit(t *testing.T) {
	fx := newMarginfiFixture(t, decimal.Zero)

	sig, err := fx.ledger.SubmitDeposit(context.Background(), fx.domainAccount(), decimal.RequireFromString("0.003"), domain.PoolID(DefaultSOLBank))
	require.NoError(t, err)
	require.Len(t, fx.rpc.sent, 1)

	tx := fx.rpc.sent[0]
	assert.Equal(t, tx.Signatures[0].String(), sig)
	// wallet plus temporary token account
	assert.Len(t, tx.Signatures, 2)
	// limit, price, create, init, deposit, close
	require.Len(t, tx.Message.Instructions, 6)

	program, err := tx.Message.ResolveProgramIDIndex(tx.Message.Instructions[4].ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, solana.MustPublicKeyFromBase58(DefaultProgramID), program)
	assert.Equal(t, amountData(ixDeposit, 3_000_000, nil), []byte(tx.Message.Instructions[4].Data))
}

func TestMarginfi_SubmitWithdraw(t *testing.T) {
	t.Run("partial keeps health accounts", func(t *testing.T) {
		fx := newMarginfiFixture(t, decimal.NewFromInt(1_000_000_000))

		_, err := fx.ledger.SubmitWithdraw(context.Background(), fx.domainAccount(), decimal.RequireFromString("0.5"), domain.PoolID(DefaultSOLBank))
		require.NoError(t, err)
		require.Len(t, fx.rpc.sent, 1)

		ix := fx.rpc.sent[0].Message.Instructions[4]
		assert.Equal(t, amountData(ixWithdraw, 500_000_000, nil), []byte(ix.Data))
		// eight fixed accounts plus bank and oracle
		assert.Len(t, ix.Accounts, 10)
	})

	t.Run("full amount withdraws all", func(t *testing.T) {
		fx := newMarginfiFixture(t, decimal.NewFromInt(1_000_000_000))

		_, err := fx.ledger.SubmitWithdraw(context.Background(), fx.domainAccount(), decimal.RequireFromString("1.1"), domain.PoolID(DefaultSOLBank))
		require.NoError(t, err)

		ix := fx.rpc.sent[0].Message.Instructions[4]
		all := true
		assert.Equal(t, amountData(ixWithdraw, 1_100_000_000, &all), []byte(ix.Data))
		assert.Len(t, ix.Accounts, 8)
	})
}

func TestMarginfi_SendErrorKeepsMessage(t *testing.T) {
	fx := newMarginfiFixture(t, decimal.Zero)
	fx.rpc.sendErr = errors.New("Transaction simulation failed: Blockhash not found")

	_, err := fx.ledger.SubmitDeposit(context.Background(), fx.domainAccount(), decimal.NewFromInt(1), domain.PoolID(DefaultSOLBank))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Blockhash not found")
}

func TestMarginfi_OwnerMismatch(t *testing.T) {
	fx := newMarginfiFixture(t, decimal.Zero)
	stranger := domain.Account{Address: fx.account.String(), Owner: solana.NewWallet().PublicKey().String()}

	_, err := fx.ledger.SubmitDeposit(context.Background(), stranger, decimal.NewFromInt(1), domain.PoolID(DefaultSOLBank))
	assert.Error(t, err)

	_, err = fx.ledger.SubmitDeposit(context.Background(), domain.Account{}, decimal.NewFromInt(1), domain.PoolID(DefaultSOLBank))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestMarginfi_CreateAccount(t *testing.T) {
	fx := newMarginfiFixture(t, decimal.Zero)

	acc, err := fx.ledger.CreateAccount(context.Background(), fx.wallet.PublicKey().String())
	require.NoError(t, err)
	require.NotNil(t, acc)
	require.Len(t, fx.rpc.sent, 1)

	tx := fx.rpc.sent[0]
	assert.Len(t, tx.Signatures, 2)
	require.Len(t, tx.Message.Instructions, 3)
	assert.Equal(t, anchorDiscriminator(ixAccountInitialize), []byte(tx.Message.Instructions[2].Data))
}
