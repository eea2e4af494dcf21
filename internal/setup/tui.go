// Package setup implements the interactive config file wizard.
package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/mrgnlend/config"
	"github.com/vadiminshakov/mrgnlend/internal/clients"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1)
)

// Answers are the values collected by the wizard.
type Answers struct {
	Ledger          string
	RPCURL          string
	WalletKey       string
	APY             string
	PriceSources    []string
	LogLevel        string
	SimulateBalance string
}

// DefaultAnswers pre-fills the wizard from the built-in defaults.
func DefaultAnswers() Answers {
	tmp := config.DefaultTmp()
	return Answers{
		Ledger:          tmp.Ledger,
		RPCURL:          tmp.RPCURL,
		APY:             tmp.Pools[0].APYStr,
		PriceSources:    tmp.PriceSources,
		LogLevel:        "info",
		SimulateBalance: "10",
	}
}

// ErrSetupCancelled is returned when the user declines to save.
var ErrSetupCancelled = errors.New("setup cancelled by user")

// RunTUI launches the wizard and writes the result to path.
func RunTUI(path string) error {
	a := DefaultAnswers()
	var confirm bool

	step := func(title string) {
		fmt.Print("\033[H\033[2J")
		fmt.Println(headerStyle.Render("MRGNLEND CONFIG WIZARD"))
		fmt.Println(stepStyle.Render(title))
	}

	step("STEP 1: LEDGER")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Lend SOL on marginfi v2 or rehearse against an in-memory ledger.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should operations go?").
				Options(
					huh.NewOption("marginfi (mainnet)", config.LedgerMarginfi),
					huh.NewOption("Simulation", config.LedgerSimulate),
				).
				Value(&a.Ledger),
		),
	).Run()
	if err != nil {
		return err
	}

	if a.Ledger == config.LedgerMarginfi {
		step("STEP 2: SOLANA")
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("RPC URL").
					Value(&a.RPCURL).
					Validate(validateURL),
				huh.NewInput().
					Title("Wallet key").
					Description("Base58 or JSON byte array. Leave empty to provide WALLET_KEY via the environment").
					EchoMode(huh.EchoModePassword).
					Value(&a.WalletKey).
					Validate(validateWalletKey),
			),
		).Run()
	} else {
		step("STEP 2: SIMULATION")
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Starting SOL balance").
					Value(&a.SimulateBalance).
					Validate(validateNonNegative),
			),
		).Run()
	}
	if err != nil {
		return err
	}

	step("STEP 3: MARKET DATA")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Price sources, tried in order").
				Options(
					huh.NewOption("CoinGecko", "coingecko"),
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
					huh.NewOption("Hyperliquid", "hyperliquid"),
				).
				Value(&a.PriceSources),
			huh.NewInput().
				Title("SOL lending APY %").
				Description("Displayed in lending summaries").
				Value(&a.APY).
				Validate(validateNonNegative),
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&a.LogLevel),
		),
	).Run()
	if err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(a.Summary()))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return ErrSetupCancelled
	}

	if err := Save(path, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return nil
}

// Summary renders the answers without the wallet key.
func (a Answers) Summary() string {
	key := "from environment"
	if a.WalletKey != "" {
		key = "stored in file"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ledger: %s\n", a.Ledger)
	if a.Ledger == config.LedgerMarginfi {
		fmt.Fprintf(&b, "RPC: %s\nWallet key: %s\n", a.RPCURL, key)
	} else {
		fmt.Fprintf(&b, "Simulated balance: %s SOL\n", a.SimulateBalance)
	}
	fmt.Fprintf(&b, "Price sources: %s\nAPY: %s%%\nLog level: %s", strings.Join(a.PriceSources, ", "), a.APY, a.LogLevel)
	return b.String()
}

// Tmp converts answers into raw settings and checks they parse.
func (a Answers) Tmp() (config.ConfigTmp, error) {
	tmp := config.DefaultTmp()
	tmp.Ledger = a.Ledger
	tmp.LogLevel = a.LogLevel
	if len(a.PriceSources) > 0 {
		tmp.PriceSources = a.PriceSources
	}
	if a.APY != "" {
		tmp.Pools[0].APYStr = a.APY
	}

	switch a.Ledger {
	case config.LedgerMarginfi:
		tmp.RPCURL = a.RPCURL
		tmp.WalletKey = a.WalletKey
	case config.LedgerSimulate:
		tmp.RPCURL = ""
		tmp.SimulateBalanceStr = a.SimulateBalance
	}

	check := tmp
	if check.Ledger == config.LedgerMarginfi && check.WalletKey == "" {
		// the key may come from WALLET_KEY at startup
		check.WalletKey = "env"
	}
	if _, err := check.Parse(); err != nil {
		return config.ConfigTmp{}, err
	}

	return tmp, nil
}

// Save writes answers as YAML. Files holding a wallet key are private to the user.
func Save(path string, a Answers) error {
	tmp, err := a.Tmp()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}

	perm := os.FileMode(0o644)
	if tmp.WalletKey != "" {
		perm = 0o600
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}
	return nil
}

func validateURL(s string) error {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func validateWalletKey(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	_, err := clients.ParseWalletKey(s)
	return err
}

func validateNonNegative(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return errors.New("must be a valid number")
	}
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}
