// Package session holds the state of one interactive lending session.
package session

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
	"github.com/vadiminshakov/mrgnlend/internal/executor"
	"github.com/vadiminshakov/mrgnlend/internal/services/ledger"
	"github.com/vadiminshakov/mrgnlend/internal/services/pricer"
)

// Session owns the wallet identity, the resolved lending account and the last reconciled views.
// Operations run one at a time; a Session is not safe for concurrent use.
type Session struct {
	owner    string
	lendPool domain.PoolID
	ledger   ledger.Ledger
	pricer   pricer.Pricer
	executor *executor.Executor
	logger   *zap.Logger

	account *domain.Account
	wallet  domain.WalletStatus
	lending domain.LendingStatus
}

type options struct {
	logger       *zap.Logger
	executorOpts []executor.Option
}

// Option configures a Session.
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithExecutorOptions passes options to the operation executor.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(o *options) { o.executorOpts = append(o.executorOpts, opts...) }
}

// New creates a session for owner. lendPool is the pool deposits go to.
func New(owner string, l ledger.Ledger, p pricer.Pricer, lendPool domain.PoolID, opts ...Option) (*Session, error) {
	if owner == "" {
		return nil, errors.New("owner is required")
	}
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if p == nil {
		return nil, errors.New("pricer is required")
	}
	if lendPool == "" {
		return nil, errors.New("lend pool is required")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	s := &Session{
		owner:    owner,
		lendPool: lendPool,
		ledger:   l,
		pricer:   p,
		logger:   o.logger,
		wallet:   domain.WalletStatus{Address: owner},
	}

	execOpts := append([]executor.Option{
		executor.WithLogger(o.logger),
		executor.WithRefresher(s.RefreshAccount),
	}, o.executorOpts...)
	s.executor = executor.New(execOpts...)

	return s, nil
}

func (s *Session) Owner() string                 { return s.owner }
func (s *Session) Wallet() domain.WalletStatus   { return s.wallet }
func (s *Session) Lending() domain.LendingStatus { return s.lending }
func (s *Session) Positions() []domain.Position  { return s.lending.Positions }
func (s *Session) LendPoolID() domain.PoolID     { return s.lendPool }

// Account returns the resolved lending account, nil when the owner has none yet.
func (s *Session) Account() *domain.Account {
	if s.account == nil {
		return nil
	}
	clone := *s.account
	return &clone
}

// Refresh reloads the wallet and lending views.
func (s *Session) Refresh(ctx context.Context) error {
	if _, err := s.RefreshWallet(ctx); err != nil {
		return err
	}
	if _, err := s.RefreshPositions(ctx); err != nil {
		return err
	}
	return nil
}

// RefreshWallet reads the SOL balance and prices it. A missing price counts as zero.
func (s *Session) RefreshWallet(ctx context.Context) (domain.WalletStatus, error) {
	lamports, err := s.ledger.GetBalance(ctx, s.owner)
	if err != nil {
		return s.wallet, errors.Wrap(err, "fetch wallet balance")
	}

	price := s.Price(ctx, "SOL")
	s.wallet = domain.NewWalletStatus(s.owner, domain.LamportsToSOL(lamports), price)

	return s.wallet, nil
}

// RefreshPositions resolves the lending account if needed and reconciles its balances.
func (s *Session) RefreshPositions(ctx context.Context) (domain.LendingStatus, error) {
	if s.account == nil {
		if err := s.resolveAccount(ctx); err != nil {
			return s.lending, err
		}
	}
	if s.account == nil {
		s.lending = domain.LendingStatus{}
		return s.lending, nil
	}

	entries, err := s.ledger.ListActiveBalances(ctx, *s.account)
	if err != nil {
		return s.lending, errors.Wrap(err, "list lending balances")
	}

	positions := domain.Reconcile(entries)
	prices := make(map[string]decimal.Decimal, len(positions))
	domain.PriceValues(positions, func(symbol string) decimal.Decimal {
		if p, ok := prices[symbol]; ok {
			return p
		}
		p := s.Price(ctx, symbol)
		prices[symbol] = p
		return p
	})

	s.lending = domain.LendingStatus{Account: s.account.Address, Positions: positions}
	return s.lending, nil
}

// RefreshAccount reloads remote account state between submission attempts.
func (s *Session) RefreshAccount(ctx context.Context) error {
	if err := s.resolveAccount(ctx); err != nil {
		return err
	}
	if s.account == nil {
		return nil
	}
	_, err := s.RefreshPositions(ctx)
	return err
}

// EnsureAccount returns the lending account, creating it when the owner has none.
func (s *Session) EnsureAccount(ctx context.Context) (*domain.Account, error) {
	if s.account == nil {
		if err := s.resolveAccount(ctx); err != nil {
			return nil, err
		}
	}
	if s.account != nil {
		return s.Account(), nil
	}

	s.logger.Info("no lending account found, creating one", zap.String("owner", s.owner))
	acc, err := s.ledger.CreateAccount(ctx, s.owner)
	if err != nil {
		return nil, errors.Wrap(err, "create lending account")
	}
	s.account = acc

	return s.Account(), nil
}

// LendPool returns details of the pool deposits go to.
func (s *Session) LendPool(ctx context.Context) (domain.PoolInfo, error) {
	return s.Pool(ctx, s.lendPool)
}

// Pool returns details of a pool known to the ledger.
func (s *Session) Pool(ctx context.Context, id domain.PoolID) (domain.PoolInfo, error) {
	info, err := s.ledger.LookupPool(ctx, id)
	if err != nil {
		return domain.PoolInfo{}, errors.Wrapf(err, "lookup pool %s", id)
	}
	return info, nil
}

// Price returns the USD price of symbol or zero when no source answers.
func (s *Session) Price(ctx context.Context, symbol string) decimal.Decimal {
	return pricer.PriceOrZero(ctx, s.pricer, symbol, s.logger)
}

// MaxLend is the largest amount a deposit may request.
func (s *Session) MaxLend() decimal.Decimal {
	return s.wallet.SOLBalance
}

// Lend deposits amount SOL into the lend pool. The returned error covers failures
// before submission; submission failures are reported in the Outcome.
func (s *Session) Lend(ctx context.Context, amount decimal.Decimal) (domain.Outcome, error) {
	req, err := domain.NewOperationRequest(domain.OperationDeposit, amount, s.lendPool)
	if err != nil {
		return domain.Outcome{}, err
	}
	if _, err := s.EnsureAccount(ctx); err != nil {
		return domain.Outcome{}, err
	}

	return s.executor.Execute(ctx, req, func(ctx context.Context, req domain.OperationRequest) (string, error) {
		return s.ledger.SubmitDeposit(ctx, *s.account, req.Amount(), req.Target())
	}), nil
}

// Withdraw takes amount out of the pool holding the largest part of position.
func (s *Session) Withdraw(ctx context.Context, position domain.Position, amount decimal.Decimal) (domain.Outcome, error) {
	if s.account == nil {
		return domain.Outcome{}, ledger.ErrAccountNotFound
	}
	source, ok := position.PrimarySource()
	if !ok {
		return domain.Outcome{}, errors.Errorf("position %s has no pool to withdraw from", position.Symbol)
	}

	req, err := domain.NewOperationRequest(domain.OperationWithdraw, amount, source.Pool)
	if err != nil {
		return domain.Outcome{}, err
	}

	return s.executor.Execute(ctx, req, func(ctx context.Context, req domain.OperationRequest) (string, error) {
		return s.ledger.SubmitWithdraw(ctx, *s.account, req.Amount(), req.Target())
	}), nil
}

func (s *Session) resolveAccount(ctx context.Context) error {
	acc, err := s.ledger.ResolveAccount(ctx, s.owner)
	if err != nil {
		return errors.Wrap(err, "resolve lending account")
	}
	if acc != nil {
		s.account = acc
	}
	return nil
}
