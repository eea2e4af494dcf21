package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient returns a Binance client. Empty credentials are fine for public ticker endpoints.
func NewBinanceClient(apiKey, apiSecret, baseURL string) *binance.Client {
	client := binance.NewClient(apiKey, apiSecret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}

	return client
}
