package pricer

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// BinancePricer fetches ticker prices from the Binance public API
// without requiring authentication.
type BinancePricer struct {
	client *binance.Client
}

// NewBinancePricer creates a pricer on top of an (optionally unauthenticated) Binance client.
func NewBinancePricer(client *binance.Client) *BinancePricer {
	return &BinancePricer{client: client}
}

// GetPrice fetches the <SYMBOL>USDT ticker price.
func (p *BinancePricer) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ticker := strings.ToUpper(symbol) + quoteAsset
	prices, err := p.client.NewListPricesService().Symbol(ticker).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, fmt.Errorf("binance API returned empty prices for %s", ticker)
	}

	return decimal.NewFromString(prices[0].Price)
}
