package ledger

import (
	"context"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
)

const (
	DefaultProgramID = "MFv2hWf31Z9kbCa1snEPYctwafyhdvnV7FZnsebVacA"
	DefaultGroup     = "4qp6Fx6tnZkY5Wropq9wUYgtFxXKwE6viZxFHg3rdAG8"
	DefaultSOLBank   = "CCKtUs6Cgwo4aaQUmBPmyoApH2gUDErxNZCAntD6LYGh"

	DefaultComputeUnitLimit = 400_000
	// 0.00001 SOL expressed as a per-unit price in micro-lamports.
	DefaultPriorityFeeMicroLamports = 10_000

	tokenAccountSize = 165
)

const (
	ixAccountInitialize = "marginfi_account_initialize"
	ixDeposit           = "lending_account_deposit"
	ixWithdraw          = "lending_account_withdraw"
)

// RPC is the subset of the Solana JSON-RPC client used by the marginfi adapter.
type RPC interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// MarginfiConfig addresses and fee settings of the marginfi deployment.
type MarginfiConfig struct {
	ProgramID string
	Group     string
	// Account pins the lending account instead of searching by authority.
	Account                  string
	ComputeUnitLimit         uint32
	PriorityFeeMicroLamports uint64
	Commitment               rpc.CommitmentType
	SkipPreflight            bool
}

// Marginfi implements Ledger on top of the marginfi v2 program.
type Marginfi struct {
	rpc        RPC
	wallet     solana.PrivateKey
	programID  solana.PublicKey
	group      solana.PublicKey
	pinned     *solana.PublicKey
	pools      Pools
	cfg        MarginfiConfig
	logger     *zap.Logger
	newAccount func() (solana.PrivateKey, error)
}

// NewMarginfi creates the adapter. Pools supply symbols, oracles and declared rates for banks.
func NewMarginfi(client RPC, wallet solana.PrivateKey, cfg MarginfiConfig, pools Pools, logger *zap.Logger) (*Marginfi, error) {
	if client == nil {
		return nil, errors.New("rpc client is required")
	}
	if len(wallet) == 0 {
		return nil, errors.New("wallet key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.ProgramID == "" {
		cfg.ProgramID = DefaultProgramID
	}
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if cfg.ComputeUnitLimit == 0 {
		cfg.ComputeUnitLimit = DefaultComputeUnitLimit
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}

	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, errors.Wrap(err, "parse marginfi program id")
	}
	group, err := solana.PublicKeyFromBase58(cfg.Group)
	if err != nil {
		return nil, errors.Wrap(err, "parse marginfi group")
	}

	m := &Marginfi{
		rpc:        client,
		wallet:     wallet,
		programID:  programID,
		group:      group,
		pools:      pools,
		cfg:        cfg,
		logger:     logger,
		newAccount: solana.NewRandomPrivateKey,
	}

	if cfg.Account != "" {
		pinned, err := solana.PublicKeyFromBase58(cfg.Account)
		if err != nil {
			return nil, errors.Wrap(err, "parse pinned marginfi account")
		}
		m.pinned = &pinned
	}

	return m, nil
}

// Owner returns the wallet address that signs transactions.
func (m *Marginfi) Owner() string {
	return m.wallet.PublicKey().String()
}

func (m *Marginfi) ownerKey(owner string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(err, "parse owner %q", owner)
	}
	if !key.Equals(m.wallet.PublicKey()) {
		return solana.PublicKey{}, errors.Errorf("owner %s does not match signing wallet %s", key, m.wallet.PublicKey())
	}
	return key, nil
}

func (m *Marginfi) GetBalance(ctx context.Context, owner string) (uint64, error) {
	key, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, errors.Wrapf(err, "parse owner %q", owner)
	}

	res, err := m.rpc.GetBalance(ctx, key, m.cfg.Commitment)
	if err != nil {
		return 0, errors.Wrap(err, "get wallet balance")
	}
	return res.Value, nil
}

func (m *Marginfi) ResolveAccount(ctx context.Context, owner string) (*domain.Account, error) {
	key, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, errors.Wrapf(err, "parse owner %q", owner)
	}

	if m.pinned != nil {
		data, err := m.accountData(ctx, *m.pinned)
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, nil
		}
		acc, err := parseMarginfiAccount(data)
		if err != nil {
			return nil, err
		}
		if !acc.Authority.Equals(key) {
			return nil, errors.Errorf("pinned account %s belongs to %s, not %s", m.pinned, acc.Authority, key)
		}
		return &domain.Account{Address: m.pinned.String(), Owner: owner}, nil
	}

	res, err := m.rpc.GetProgramAccountsWithOpts(ctx, m.programID, &rpc.GetProgramAccountsOpts{
		Commitment: m.cfg.Commitment,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: accountGroupOffset, Bytes: solana.Base58(m.group.Bytes())}},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: accountAuthorityOffset, Bytes: solana.Base58(key.Bytes())}},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "search marginfi accounts")
	}
	if len(res) == 0 {
		return nil, nil
	}

	// several accounts per authority are allowed; keep the choice stable
	best := res[0].Pubkey
	for _, ka := range res[1:] {
		if ka.Pubkey.String() < best.String() {
			best = ka.Pubkey
		}
	}
	if len(res) > 1 {
		m.logger.Info("multiple marginfi accounts found, using one", zap.Int("count", len(res)), zap.String("account", best.String()))
	}

	return &domain.Account{Address: best.String(), Owner: owner}, nil
}

func (m *Marginfi) CreateAccount(ctx context.Context, owner string) (*domain.Account, error) {
	authority, err := m.ownerKey(owner)
	if err != nil {
		return nil, err
	}

	accountKey, err := m.newAccount()
	if err != nil {
		return nil, errors.Wrap(err, "generate marginfi account key")
	}

	ix := solana.NewInstruction(m.programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(m.group, false, false),
		solana.NewAccountMeta(accountKey.PublicKey(), true, true),
		solana.NewAccountMeta(authority, false, true),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, anchorDiscriminator(ixAccountInitialize))

	sig, err := m.send(ctx, []solana.Instruction{ix}, accountKey)
	if err != nil {
		return nil, errors.Wrap(err, "create marginfi account")
	}

	m.logger.Info("marginfi account created", zap.String("account", accountKey.PublicKey().String()), zap.String("tx", sig))
	return &domain.Account{Address: accountKey.PublicKey().String(), Owner: owner}, nil
}

func (m *Marginfi) LookupPool(ctx context.Context, pool domain.PoolID) (domain.PoolInfo, error) {
	key, err := solana.PublicKeyFromBase58(string(pool))
	if err != nil {
		return domain.PoolInfo{}, errors.Wrapf(ErrPoolNotFound, "invalid pool id %q", pool)
	}

	data, err := m.accountData(ctx, key)
	if err != nil {
		return domain.PoolInfo{}, err
	}
	if data == nil {
		return domain.PoolInfo{}, errors.Wrapf(ErrPoolNotFound, "bank %s", pool)
	}

	b, err := parseBank(data)
	if err != nil {
		return domain.PoolInfo{}, err
	}
	if !b.Group.Equals(m.group) {
		return domain.PoolInfo{}, errors.Wrapf(ErrPoolNotFound, "bank %s belongs to group %s", pool, b.Group)
	}

	info, ok := m.pools[pool]
	if !ok {
		info = domain.PoolInfo{ID: pool, Symbol: mintSymbol(b.Mint)}
	}
	decimals := b.Decimals
	if info.Decimals == nil {
		info.Decimals = &decimals
	}
	info.Mint = b.Mint.String()
	info.AssetShareValue = b.AssetShareValue
	info.LiquidityVault = b.LiquidityVault.String()

	return info, nil
}

func (m *Marginfi) ListActiveBalances(ctx context.Context, account domain.Account) ([]domain.BalanceEntry, error) {
	acc, err := m.loadAccount(ctx, account)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.BalanceEntry, 0, len(acc.Balances))
	for _, bal := range acc.Balances {
		pool, err := m.LookupPool(ctx, domain.PoolID(bal.Bank.String()))
		if err != nil {
			return nil, errors.Wrapf(err, "load bank %s", bal.Bank)
		}

		entries = append(entries, domain.BalanceEntry{
			Pool:         pool.ID,
			Symbol:       pool.Symbol,
			AssetShares:  bal.AssetShares,
			NativeAmount: bal.AssetShares.Mul(pool.AssetShareValue),
			Decimals:     pool.Decimals,
			Rate:         pool.APY,
		})
	}

	return entries, nil
}

func (m *Marginfi) SubmitDeposit(ctx context.Context, account domain.Account, amount decimal.Decimal, pool domain.PoolID) (string, error) {
	accountKey, bankKey, err := m.operationKeys(account, pool)
	if err != nil {
		return "", err
	}
	info, err := m.LookupPool(ctx, pool)
	if err != nil {
		return "", err
	}
	if info.Mint != solana.WrappedSol.String() {
		return "", errors.Errorf("deposits into %s pools are not supported, only SOL", info.Symbol)
	}

	lamports := toNative(amount, info.Precision())
	if lamports == 0 {
		return "", errors.Errorf("amount %s is below one lamport", amount)
	}

	wsol, wrap, unwrap, err := m.wrapSOL(ctx, lamports)
	if err != nil {
		return "", err
	}

	authority := m.wallet.PublicKey()
	vault := solana.MustPublicKeyFromBase58(info.LiquidityVault)
	deposit := solana.NewInstruction(m.programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(m.group, false, false),
		solana.NewAccountMeta(accountKey, true, false),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(bankKey, true, false),
		solana.NewAccountMeta(wsol.PublicKey(), true, false),
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}, amountData(ixDeposit, lamports, nil))

	ixs := append(wrap, deposit)
	ixs = append(ixs, unwrap)

	sig, err := m.send(ctx, ixs, wsol)
	if err != nil {
		return "", errors.Wrap(err, "submit deposit")
	}
	return sig, nil
}

func (m *Marginfi) SubmitWithdraw(ctx context.Context, account domain.Account, amount decimal.Decimal, pool domain.PoolID) (string, error) {
	accountKey, bankKey, err := m.operationKeys(account, pool)
	if err != nil {
		return "", err
	}
	info, err := m.LookupPool(ctx, pool)
	if err != nil {
		return "", err
	}
	if info.Mint != solana.WrappedSol.String() {
		return "", errors.Errorf("withdrawals from %s pools are not supported, only SOL", info.Symbol)
	}

	acc, err := m.loadAccount(ctx, account)
	if err != nil {
		return "", err
	}

	lamports := toNative(amount, info.Precision())
	if lamports == 0 {
		return "", errors.Errorf("amount %s is below one lamport", amount)
	}

	var withdrawAll *bool
	for _, bal := range acc.Balances {
		if !bal.Bank.Equals(bankKey) {
			continue
		}
		held := toNative(bal.AssetShares.Mul(info.AssetShareValue), 0)
		if lamports >= held {
			all := true
			withdrawAll = &all
		}
	}

	vaultAuth, _, err := solana.FindProgramAddress([][]byte{[]byte("liquidity_vault_auth"), bankKey.Bytes()}, m.programID)
	if err != nil {
		return "", errors.Wrap(err, "derive liquidity vault authority")
	}

	wsol, wrap, unwrap, err := m.wrapSOL(ctx, 0)
	if err != nil {
		return "", err
	}

	authority := m.wallet.PublicKey()
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(m.group, false, false),
		solana.NewAccountMeta(accountKey, true, false),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(bankKey, true, false),
		solana.NewAccountMeta(wsol.PublicKey(), true, false),
		solana.NewAccountMeta(vaultAuth, true, false),
		solana.NewAccountMeta(solana.MustPublicKeyFromBase58(info.LiquidityVault), true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	health, err := m.healthAccounts(acc, bankKey, withdrawAll != nil)
	if err != nil {
		return "", err
	}
	metas = append(metas, health...)

	withdraw := solana.NewInstruction(m.programID, metas, amountData(ixWithdraw, lamports, withdrawAll))

	ixs := append(wrap, withdraw)
	ixs = append(ixs, unwrap)

	sig, err := m.send(ctx, ixs, wsol)
	if err != nil {
		return "", errors.Wrap(err, "submit withdraw")
	}
	return sig, nil
}

// healthAccounts lists bank and oracle pairs for every balance that stays open after the withdrawal.
func (m *Marginfi) healthAccounts(acc marginfiAccount, withdrawn solana.PublicKey, closing bool) (solana.AccountMetaSlice, error) {
	var metas solana.AccountMetaSlice
	for _, bal := range acc.Balances {
		if closing && bal.Bank.Equals(withdrawn) {
			continue
		}
		pool, ok := m.pools[domain.PoolID(bal.Bank.String())]
		if !ok || pool.Oracle == "" {
			return nil, errors.Errorf("no oracle configured for bank %s", bal.Bank)
		}
		oracle, err := solana.PublicKeyFromBase58(pool.Oracle)
		if err != nil {
			return nil, errors.Wrapf(err, "parse oracle of bank %s", bal.Bank)
		}
		metas = append(metas,
			solana.NewAccountMeta(bal.Bank, false, false),
			solana.NewAccountMeta(oracle, false, false),
		)
	}
	return metas, nil
}

// wrapSOL builds the instructions around a temporary wrapped SOL token account holding lamports.
func (m *Marginfi) wrapSOL(ctx context.Context, lamports uint64) (solana.PrivateKey, []solana.Instruction, solana.Instruction, error) {
	rent, err := m.rpc.GetMinimumBalanceForRentExemption(ctx, tokenAccountSize, m.cfg.Commitment)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "get token account rent")
	}

	wsol, err := m.newAccount()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "generate temporary token account")
	}

	owner := m.wallet.PublicKey()
	create := system.NewCreateAccountInstruction(
		rent+lamports,
		tokenAccountSize,
		solana.TokenProgramID,
		owner,
		wsol.PublicKey(),
	).Build()
	initialize := token.NewInitializeAccountInstruction(
		wsol.PublicKey(),
		solana.WrappedSol,
		owner,
		solana.SysVarRentPubkey,
	).Build()
	closeAcc := token.NewCloseAccountInstruction(
		wsol.PublicKey(),
		owner,
		owner,
		nil,
	).Build()

	return wsol, []solana.Instruction{create, initialize}, closeAcc, nil
}

// send prefixes compute budget instructions, signs with the wallet plus extra signers and submits.
func (m *Marginfi) send(ctx context.Context, ixs []solana.Instruction, signers ...solana.PrivateKey) (string, error) {
	latest, err := m.rpc.GetLatestBlockhash(ctx, m.cfg.Commitment)
	if err != nil {
		return "", errors.Wrap(err, "get latest blockhash")
	}

	all := make([]solana.Instruction, 0, len(ixs)+2)
	all = append(all, computebudget.NewSetComputeUnitLimitInstruction(m.cfg.ComputeUnitLimit).Build())
	if m.cfg.PriorityFeeMicroLamports > 0 {
		all = append(all, computebudget.NewSetComputeUnitPriceInstruction(m.cfg.PriorityFeeMicroLamports).Build())
	}
	all = append(all, ixs...)

	tx, err := solana.NewTransaction(all, latest.Value.Blockhash, solana.TransactionPayer(m.wallet.PublicKey()))
	if err != nil {
		return "", errors.Wrap(err, "build transaction")
	}

	keys := map[solana.PublicKey]solana.PrivateKey{m.wallet.PublicKey(): m.wallet}
	for _, s := range signers {
		keys[s.PublicKey()] = s
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if k, ok := keys[key]; ok {
			return &k
		}
		return nil
	}); err != nil {
		return "", errors.Wrap(err, "sign transaction")
	}

	sig, err := m.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       m.cfg.SkipPreflight,
		PreflightCommitment: m.cfg.Commitment,
	})
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

func (m *Marginfi) operationKeys(account domain.Account, pool domain.PoolID) (solana.PublicKey, solana.PublicKey, error) {
	if account.Address == "" {
		return solana.PublicKey{}, solana.PublicKey{}, ErrAccountNotFound
	}
	if _, err := m.ownerKey(account.Owner); err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	accountKey, err := solana.PublicKeyFromBase58(account.Address)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, errors.Wrapf(err, "parse account %q", account.Address)
	}
	bankKey, err := solana.PublicKeyFromBase58(string(pool))
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, errors.Wrapf(ErrPoolNotFound, "invalid pool id %q", pool)
	}
	return accountKey, bankKey, nil
}

func (m *Marginfi) loadAccount(ctx context.Context, account domain.Account) (marginfiAccount, error) {
	key, err := solana.PublicKeyFromBase58(account.Address)
	if err != nil {
		return marginfiAccount{}, errors.Wrapf(err, "parse account %q", account.Address)
	}

	data, err := m.accountData(ctx, key)
	if err != nil {
		return marginfiAccount{}, err
	}
	if data == nil {
		return marginfiAccount{}, errors.Wrapf(ErrAccountNotFound, "account %s", key)
	}

	return parseMarginfiAccount(data)
}

// accountData returns nil data without error for accounts that do not exist.
func (m *Marginfi) accountData(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	res, err := m.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: m.cfg.Commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get account %s", key)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil {
		return nil, nil
	}
	if !res.Value.Owner.Equals(m.programID) {
		return nil, errors.Errorf("account %s is owned by %s, not the marginfi program", key, res.Value.Owner)
	}
	return res.Value.Data.GetBinary(), nil
}

// toNative converts a human amount to base units, truncating dust.
func toNative(amount decimal.Decimal, decimals int32) uint64 {
	native := amount.Shift(decimals).Truncate(0)
	if native.Sign() <= 0 {
		return 0
	}
	return native.BigInt().Uint64()
}

func mintSymbol(mint solana.PublicKey) string {
	if mint.Equals(solana.WrappedSol) {
		return "SOL"
	}
	s := mint.String()
	return s[:4] + "..."
}
