// Package ledger reads and mutates lending state on the remote protocol.
package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
)

var (
	// ErrAccountNotFound is returned when an operation needs a lending account that does not exist.
	ErrAccountNotFound = errors.New("lending account not found")
	// ErrPoolNotFound is returned for pool ids that are neither configured nor on chain.
	ErrPoolNotFound = errors.New("lending pool not found")
)

// Ledger is the remote lending protocol as seen by the client.
// Amounts passed to Submit* are in human units of the pool asset.
type Ledger interface {
	// ResolveAccount returns the owner's lending account or nil when there is none.
	ResolveAccount(ctx context.Context, owner string) (*domain.Account, error)
	CreateAccount(ctx context.Context, owner string) (*domain.Account, error)
	// GetBalance returns the owner's native SOL balance in lamports.
	GetBalance(ctx context.Context, owner string) (uint64, error)
	ListActiveBalances(ctx context.Context, account domain.Account) ([]domain.BalanceEntry, error)
	LookupPool(ctx context.Context, pool domain.PoolID) (domain.PoolInfo, error)
	SubmitDeposit(ctx context.Context, account domain.Account, amount decimal.Decimal, pool domain.PoolID) (string, error)
	SubmitWithdraw(ctx context.Context, account domain.Account, amount decimal.Decimal, pool domain.PoolID) (string, error)
}

// Pools is the set of pools declared in configuration, keyed by id.
type Pools map[domain.PoolID]domain.PoolInfo

// NewPools indexes pool declarations by id.
func NewPools(pools ...domain.PoolInfo) Pools {
	out := make(Pools, len(pools))
	for _, p := range pools {
		out[p.ID] = p
	}
	return out
}

// Get returns the declared pool or ErrPoolNotFound.
func (p Pools) Get(id domain.PoolID) (domain.PoolInfo, error) {
	info, ok := p[id]
	if !ok {
		return domain.PoolInfo{}, errors.Wrapf(ErrPoolNotFound, "pool %s", id)
	}
	return info, nil
}

// BySymbol returns the first declared pool for an asset symbol.
func (p Pools) BySymbol(symbol string) (domain.PoolInfo, bool) {
	var (
		found domain.PoolInfo
		ok    bool
	)
	for _, info := range p {
		if info.Symbol != symbol {
			continue
		}
		// map order is random, keep the choice stable
		if !ok || info.ID < found.ID {
			found, ok = info, true
		}
	}
	return found, ok
}
