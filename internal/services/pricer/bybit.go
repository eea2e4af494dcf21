package pricer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"
)

type BybitPricer struct {
	client *bybit.Client
}

func NewBybitPricer(client *bybit.Client) *BybitPricer {
	return &BybitPricer{client: client}
}

func (p *BybitPricer) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ticker := bybit.SymbolV5(strings.ToUpper(symbol) + quoteAsset)
	result, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &ticker,
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(result.Result.Spot.List) == 0 {
		return decimal.Decimal{}, fmt.Errorf("bybit API returned empty prices for %s", ticker)
	}

	return decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
}
