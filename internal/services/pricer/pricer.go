// Package pricer provides USD spot prices for asset symbols.
package pricer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// quoteAsset is the USD-pegged quote used by exchange tickers.
const quoteAsset = "USDT"

// Pricer returns the USD spot price of an asset symbol such as "SOL".
type Pricer interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Source is a named Pricer taking part in a Chain.
type Source struct {
	Name   string
	Pricer Pricer
}

// Chain asks each source in order and returns the first positive price.
type Chain struct {
	sources []Source
	logger  *zap.Logger
}

// NewChain creates a fallback chain over sources.
func NewChain(logger *zap.Logger, sources ...Source) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{sources: sources, logger: logger}
}

// GetPrice implements Pricer.
func (c *Chain) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if len(c.sources) == 0 {
		return decimal.Zero, errors.New("no price sources configured")
	}

	symbol = strings.ToUpper(symbol)
	var failures []string
	for _, s := range c.sources {
		price, err := s.Pricer.GetPrice(ctx, symbol)
		if err == nil && price.GreaterThan(decimal.Zero) {
			return price, nil
		}
		if err == nil {
			err = errors.Errorf("non-positive price %s", price.String())
		}
		c.logger.Debug("price source failed", zap.String("source", s.Name), zap.String("symbol", symbol), zap.Error(err))
		failures = append(failures, s.Name+": "+err.Error())
	}

	return decimal.Zero, errors.Errorf("all price sources failed for %s: %s", symbol, strings.Join(failures, "; "))
}

// PriceOrZero degrades any pricing failure to a zero price.
func PriceOrZero(ctx context.Context, p Pricer, symbol string, logger *zap.Logger) decimal.Decimal {
	price, err := p.GetPrice(ctx, symbol)
	if err != nil {
		if logger != nil {
			logger.Warn("price unavailable, using 0", zap.String("symbol", symbol), zap.Error(err))
		}
		return decimal.Zero
	}
	return price
}
