package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vadiminshakov/mrgnlend/config"
	"github.com/vadiminshakov/mrgnlend/internal/clients"
	"github.com/vadiminshakov/mrgnlend/internal/domain"
	"github.com/vadiminshakov/mrgnlend/internal/executor"
	"github.com/vadiminshakov/mrgnlend/internal/metrics"
	"github.com/vadiminshakov/mrgnlend/internal/services/ledger"
	"github.com/vadiminshakov/mrgnlend/internal/services/pricer"
	"github.com/vadiminshakov/mrgnlend/internal/session"
	"github.com/vadiminshakov/mrgnlend/internal/ui"
	"github.com/vadiminshakov/mrgnlend/pkg/retrier"
)

const priceHTTPTimeout = 10 * time.Second

// deps holds everything a command needs, built from one config.
type deps struct {
	cfg     config.Config
	logger  *zap.Logger
	session *session.Session
	cancel  context.CancelFunc
}

func newDeps(ctx context.Context, configPath string) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	rt := &deps{cfg: cfg, logger: logger, cancel: cancel}

	l, owner, err := newLedger(cfg, logger)
	if err != nil {
		rt.close()
		return nil, err
	}

	p, err := newPricer(ctx, cfg, logger)
	if err != nil {
		rt.close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, logger); err != nil {
				logger.Error("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	rt.session, err = session.New(owner, l, p, cfg.LendPool,
		session.WithLogger(logger),
		session.WithExecutorOptions(
			executor.WithObserver(m),
			executor.WithRetryOptions(
				retrier.WithMaxAttempts(cfg.MaxAttempts),
				retrier.WithInitialInterval(cfg.InitialInterval),
				retrier.WithMultiplier(cfg.Multiplier),
			),
		),
	)
	if err != nil {
		rt.close()
		return nil, err
	}

	logger.Info("mrgnlend started",
		zap.String("ledger", cfg.Ledger),
		zap.String("owner", owner),
		zap.Strings("price_sources", cfg.PriceSources))

	return rt, nil
}

func (rt *deps) app(prompter ui.Prompter) *ui.App {
	return ui.NewApp(rt.session, prompter, ui.NewDisplay(os.Stdout), rt.cfg.ExplorerLink, rt.logger)
}

func (rt *deps) close() {
	rt.cancel()
	_ = rt.logger.Sync()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "log_level", Err: err}
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = cfg.LogOutputs
	zcfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger, nil
}

func newLedger(cfg config.Config, logger *zap.Logger) (ledger.Ledger, string, error) {
	pools := ledger.NewPools(cfg.Pools...)

	switch cfg.Ledger {
	case config.LedgerSimulate:
		return ledger.NewSimulated(cfg.Owner, domain.SOLToLamports(cfg.SimulateBalance), pools, logger), cfg.Owner, nil
	case config.LedgerMarginfi:
		client, err := clients.NewSolanaClient(cfg.RPCURL, cfg.WalletKey)
		if err != nil {
			return nil, "", &config.ConfigurationError{Field: "wallet_key", Err: err}
		}

		m, err := ledger.NewMarginfi(client.RPC(), client.Wallet(), ledger.MarginfiConfig{
			ProgramID:                cfg.ProgramID,
			Group:                    cfg.Group,
			Account:                  cfg.Account,
			ComputeUnitLimit:         cfg.ComputeUnitLimit,
			PriorityFeeMicroLamports: cfg.PriorityFeeMicroLamports,
			Commitment:               rpc.CommitmentType(cfg.Commitment),
			SkipPreflight:            cfg.SkipPreflight,
		}, pools, logger)
		if err != nil {
			return nil, "", err
		}
		return m, m.Owner(), nil
	default:
		return nil, "", &config.ConfigurationError{Field: "ledger", Err: errors.Errorf("unsupported ledger %q", cfg.Ledger)}
	}
}

func newPricer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pricer.Chain, error) {
	sources := make([]pricer.Source, 0, len(cfg.PriceSources))

	for _, name := range cfg.PriceSources {
		var p pricer.Pricer
		switch name {
		case "coingecko":
			p = pricer.NewCoinGeckoPricer(cfg.CoinGeckoURL, &http.Client{Timeout: priceHTTPTimeout})
		case "binance":
			p = pricer.NewBinancePricer(clients.NewBinanceClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"), ""))
		case "bybit":
			p = pricer.NewBybitPricer(clients.NewBybitClient(os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET")))
		case "hyperliquid":
			hl, err := clients.NewHyperliquidClient(ctx, os.Getenv("HYPERLIQUID_PRIVATE_KEY"), cfg.HyperliquidURL)
			if err != nil {
				return nil, errors.Wrap(err, "hyperliquid client")
			}
			p = pricer.NewHyperliquidPricer(hl.Info())
		default:
			return nil, &config.ConfigurationError{Field: "price_sources", Err: errors.Errorf("unknown price source %q", name)}
		}
		sources = append(sources, pricer.Source{Name: name, Pricer: p})
	}

	return pricer.NewChain(logger, sources...), nil
}
