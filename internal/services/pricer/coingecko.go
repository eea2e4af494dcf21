package pricer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	coinGeckoTimeout    = 10 * time.Second
)

// coinGeckoIDs maps asset symbols to CoinGecko coin ids.
var coinGeckoIDs = map[string]string{
	"SOL":  "solana",
	"USDC": "usd-coin",
	"USDT": "tether",
}

// CoinGeckoPricer fetches prices from the CoinGecko simple price API.
type CoinGeckoPricer struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGeckoPricer creates a pricer for the given API base URL.
func NewCoinGeckoPricer(baseURL string, httpClient *http.Client) *CoinGeckoPricer {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: coinGeckoTimeout}
	}
	return &CoinGeckoPricer{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// GetPrice implements Pricer.
func (p *CoinGeckoPricer) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id, ok := coinGeckoIDs[strings.ToUpper(symbol)]
	if !ok {
		id = strings.ToLower(symbol)
	}

	query := url.Values{}
	query.Set("ids", id)
	query.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/simple/price?"+query.Encode(), nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("coingecko API returned status %d: %s", resp.StatusCode, string(body))
	}

	var prices map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &prices); err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to unmarshal response")
	}

	usd, ok := prices[id]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("coingecko API returned no usd price for %s", id)
	}

	return usd, nil
}
