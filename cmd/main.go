// Command mrgnlend lends SOL on marginfi v2 from the terminal.
// It runs an interactive menu by default and offers one-shot commands for scripts.
//
// Usage:
//
//	mrgnlend --config mrgnlend.yaml
//	mrgnlend status
//	mrgnlend lend --amount 0.003 --yes
//	mrgnlend withdraw --position 1 --amount 0.001 --yes
//	mrgnlend init
//
// Required environment variables for the marginfi ledger:
//
//	WALLET_KEY (base58 secret key or solana-keygen JSON array)
//
// Optional: RPC_URL, BINANCE_API_KEY/BINANCE_API_SECRET, BYBIT_API_KEY/BYBIT_API_SECRET,
// HYPERLIQUID_PRIVATE_KEY. A .env file in the working directory is loaded first.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
