package ledger

import (
	"context"
	"math/big"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
)

// SimulatedError is a failure injected into the simulated ledger with a known retry class.
type SimulatedError struct {
	Class domain.ErrorClass
	Msg   string
}

func (e *SimulatedError) Error() string { return e.Msg }

// Classified reports the injected class to the executor.
func (e *SimulatedError) Classified() domain.ErrorClass { return e.Class }

// Simulated is an in-memory ledger for dry runs and tests.
type Simulated struct {
	mu       sync.Mutex
	logger   *zap.Logger
	pools    Pools
	wallet   map[string]uint64
	accounts map[string]*domain.Account
	// shares per account address and pool
	shares   map[string]map[domain.PoolID]decimal.Decimal
	failures []error
	seq      int
}

// NewSimulated creates a simulated ledger where owner holds lamports.
func NewSimulated(owner string, lamports uint64, pools Pools, logger *zap.Logger) *Simulated {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Simulated{
		logger:   logger,
		pools:    pools,
		wallet:   map[string]uint64{owner: lamports},
		accounts: make(map[string]*domain.Account),
		shares:   make(map[string]map[domain.PoolID]decimal.Decimal),
	}
	logger.Info("simulate init", zap.String("owner", owner), zap.String("sol", domain.LamportsToSOL(lamports).String()))
	return s
}

// FailNext queues errors returned by the next submissions, one per call.
func (s *Simulated) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

func (s *Simulated) ResolveAccount(ctx context.Context, owner string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[owner]
	if !ok {
		return nil, nil
	}
	clone := *acc
	return &clone, nil
}

func (s *Simulated) CreateAccount(ctx context.Context, owner string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, ok := s.accounts[owner]; ok {
		clone := *acc
		return &clone, nil
	}

	acc := &domain.Account{Address: "sim-" + uuid.NewString(), Owner: owner}
	s.accounts[owner] = acc
	s.shares[acc.Address] = make(map[domain.PoolID]decimal.Decimal)
	s.logger.Info("simulate account created", zap.String("account", acc.Address))

	clone := *acc
	return &clone, nil
}

func (s *Simulated) GetBalance(ctx context.Context, owner string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet[owner], nil
}

func (s *Simulated) LookupPool(ctx context.Context, pool domain.PoolID) (domain.PoolInfo, error) {
	info, err := s.pools.Get(pool)
	if err != nil {
		return domain.PoolInfo{}, err
	}
	if info.AssetShareValue.IsZero() {
		info.AssetShareValue = decimal.NewFromInt(1)
	}
	return info, nil
}

func (s *Simulated) ListActiveBalances(ctx context.Context, account domain.Account) ([]domain.BalanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.shares[account.Address]
	if !ok {
		return nil, errors.Wrapf(ErrAccountNotFound, "account %s", account.Address)
	}

	entries := make([]domain.BalanceEntry, 0, len(held))
	for _, id := range s.sortedPools(held) {
		info, err := s.LookupPool(ctx, id)
		if err != nil {
			return nil, err
		}
		shares := held[id]
		entries = append(entries, domain.BalanceEntry{
			Pool:         id,
			Symbol:       info.Symbol,
			AssetShares:  shares,
			NativeAmount: shares.Mul(info.AssetShareValue),
			Decimals:     info.Decimals,
			Rate:         info.APY,
		})
	}
	return entries, nil
}

func (s *Simulated) SubmitDeposit(ctx context.Context, account domain.Account, amount decimal.Decimal, pool domain.PoolID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.nextFailure(); err != nil {
		return "", err
	}
	held, info, err := s.operationState(ctx, account, pool)
	if err != nil {
		return "", err
	}

	native := toNative(amount, info.Precision())
	if native == 0 {
		return "", errors.Errorf("amount %s is below one base unit", amount)
	}
	if s.wallet[account.Owner] < native {
		return "", errors.Errorf("insufficient funds: have %d lamports, need %d", s.wallet[account.Owner], native)
	}

	s.wallet[account.Owner] -= native
	held[pool] = held[pool].Add(nativeDecimal(native).Div(info.AssetShareValue))

	return s.record("deposit", account, amount, pool), nil
}

func (s *Simulated) SubmitWithdraw(ctx context.Context, account domain.Account, amount decimal.Decimal, pool domain.PoolID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.nextFailure(); err != nil {
		return "", err
	}
	held, info, err := s.operationState(ctx, account, pool)
	if err != nil {
		return "", err
	}

	native := toNative(amount, info.Precision())
	if native == 0 {
		return "", errors.Errorf("amount %s is below one base unit", amount)
	}
	available := toNative(held[pool].Mul(info.AssetShareValue), 0)
	if native > available {
		return "", errors.Errorf("insufficient funds: pool balance %d, requested %d", available, native)
	}

	if native == available {
		delete(held, pool)
	} else {
		held[pool] = held[pool].Sub(nativeDecimal(native).Div(info.AssetShareValue))
	}
	s.wallet[account.Owner] += native

	return s.record("withdraw", account, amount, pool), nil
}

func (s *Simulated) operationState(ctx context.Context, account domain.Account, pool domain.PoolID) (map[domain.PoolID]decimal.Decimal, domain.PoolInfo, error) {
	held, ok := s.shares[account.Address]
	if !ok {
		return nil, domain.PoolInfo{}, errors.Wrapf(ErrAccountNotFound, "account %s", account.Address)
	}
	info, err := s.LookupPool(ctx, pool)
	if err != nil {
		return nil, domain.PoolInfo{}, err
	}
	return held, info, nil
}

func (s *Simulated) nextFailure() error {
	if len(s.failures) == 0 {
		return nil
	}
	err := s.failures[0]
	s.failures = s.failures[1:]
	return err
}

func (s *Simulated) record(kind string, account domain.Account, amount decimal.Decimal, pool domain.PoolID) string {
	s.seq++
	sig := "sim-" + uuid.NewString()
	s.logger.Info("simulate "+kind,
		zap.String("account", account.Address),
		zap.String("pool", string(pool)),
		zap.String("amount", amount.String()),
		zap.String("tx", sig),
		zap.Int("seq", s.seq))
	return sig
}

func (s *Simulated) sortedPools(held map[domain.PoolID]decimal.Decimal) []domain.PoolID {
	ids := make([]domain.PoolID, 0, len(held))
	for id := range held {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func nativeDecimal(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}
