// Package ui implements the interactive lending menu.
package ui

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
)

// ErrCancelled is returned by a flow when the user declines confirmation.
var ErrCancelled = errors.New("cancelled by user")

var menu = []string{
	"Lend SOL (earn lending interest)",
	"Withdraw SOL (from lending positions)",
	"Refresh status",
	"Exit",
}

// Lender is the session surface the menu drives.
type Lender interface {
	Refresh(ctx context.Context) error
	Wallet() domain.WalletStatus
	Lending() domain.LendingStatus
	MaxLend() decimal.Decimal
	LendPool(ctx context.Context) (domain.PoolInfo, error)
	Pool(ctx context.Context, id domain.PoolID) (domain.PoolInfo, error)
	Lend(ctx context.Context, amount decimal.Decimal) (domain.Outcome, error)
	Withdraw(ctx context.Context, position domain.Position, amount decimal.Decimal) (domain.Outcome, error)
}

// App runs flows one at a time against a Lender.
type App struct {
	lender   Lender
	prompter Prompter
	display  *Display
	explorer func(txID string) string
	logger   *zap.Logger
}

func NewApp(lender Lender, prompter Prompter, display *Display, explorer func(string) string, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		lender:   lender,
		prompter: prompter,
		display:  display,
		explorer: explorer,
		logger:   logger,
	}
}

// Run shows the status and loops over the main menu until exit, closed input or ctx cancellation.
func (a *App) Run(ctx context.Context, programID string) error {
	a.display.Section("Welcome to mrgnlend (marginfi v2)")
	a.display.Info("marginfi v2 program: %s", programID)
	a.display.Info("0%% platform fees, protected by marginfi insurance pools")
	_ = a.Status(ctx)

	for {
		if ctx.Err() != nil {
			a.display.Info("\nGoodbye!")
			return nil
		}

		a.display.Section("MRGNLEND MAIN MENU")
		choice, err := a.prompter.Choose(ctx, "What would you like to do?", menu)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			a.display.Info("\nGoodbye!")
			return nil
		case errors.Is(err, ErrInvalidChoice):
			a.display.Error("Invalid choice. Please select 1-%d.", len(menu))
			continue
		case err != nil:
			return err
		}

		switch choice {
		case 0:
			err = a.LendFlow(ctx)
		case 1:
			err = a.WithdrawFlow(ctx)
		case 2:
			a.display.Info("Refreshing status...")
			_ = a.Status(ctx)
			continue
		default:
			a.display.Info("\nThank you for using mrgnlend!")
			return nil
		}

		switch {
		case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			a.display.Info("\nGoodbye!")
			return nil
		case errors.Is(err, ErrCancelled):
		case err != nil:
			a.display.Error("%v", err)
		}

		if rerr := a.lender.Refresh(ctx); rerr != nil {
			a.logger.Warn("refresh after operation failed", zap.Error(rerr))
		}
	}
}

// Status refreshes and prints the wallet and positions.
// When the refresh fails the last known view is printed and the error returned.
func (a *App) Status(ctx context.Context) error {
	err := a.lender.Refresh(ctx)
	if err != nil {
		a.logger.Warn("status refresh failed", zap.Error(err))
		a.display.Error("Could not refresh status: %v", err)
	}
	a.display.Wallet(a.lender.Wallet())
	a.display.Lending(a.lender.Lending())
	return err
}

// LendFlow asks for an amount, confirms and deposits it into the lend pool.
func (a *App) LendFlow(ctx context.Context) error {
	a.display.Section("MRGNLEND LENDING FLOW")

	available := a.lender.MaxLend()
	if !available.IsPositive() {
		a.display.Error("No SOL available for lending")
		return nil
	}
	pool, err := a.lender.LendPool(ctx)
	if err != nil {
		return err
	}

	price := a.lender.Wallet().SOLPrice
	a.display.Info("Available SOL balance: %s SOL ($%s)", sol(available), usd(available.Mul(price)))
	a.display.Info("Current SOL lending APY: %s%%", pool.APY.StringFixed(2))

	amount, err := a.askAmount(ctx, "\nHow much SOL do you want to lend? (max: "+sol(available)+"): ", available)
	if err != nil {
		return err
	}

	_, err = a.submitLend(ctx, pool, amount, false)
	return err
}

// LendOnce deposits input SOL without the menu. assumeYes skips the confirmation.
// A failed outcome is returned as an error.
func (a *App) LendOnce(ctx context.Context, input string, assumeYes bool) error {
	if err := a.lender.Refresh(ctx); err != nil {
		return err
	}
	pool, err := a.lender.LendPool(ctx)
	if err != nil {
		return err
	}

	available := a.lender.MaxLend()
	a.display.Info("SOL balance: %s SOL", sol(available))
	amount, err := domain.ParseAmount(input, available)
	if err != nil {
		return err
	}

	out, err := a.submitLend(ctx, pool, amount, assumeYes)
	if err != nil {
		return err
	}
	if !out.Succeeded() {
		return errors.Wrap(out.Err, "lending failed")
	}
	return nil
}

func (a *App) submitLend(ctx context.Context, pool domain.PoolInfo, amount decimal.Decimal, assumeYes bool) (domain.Outcome, error) {
	value := amount.Mul(a.lender.Wallet().SOLPrice)
	a.display.Summary("mrgnlend Lending Summary", [][2]string{
		{"Product", "mrgnlend (marginfi v2)"},
		{"Pool", pool.Name},
		{"Amount", amount.String() + " SOL"},
		{"USD value", "$" + usd(value)},
		{"Lending APY", pool.APY.StringFixed(2) + "%"},
		{"Estimated yearly interest", "$" + usd(YearlyInterest(value, pool.APY))},
		{"Platform fees", "0%"},
	})

	if !assumeYes {
		if err := a.confirm(ctx, "\nDo you want to proceed with this lending?", "Lending"); err != nil {
			return domain.Outcome{}, err
		}
	}

	out, err := a.lender.Lend(ctx, amount)
	if err != nil {
		return domain.Outcome{}, err
	}
	a.display.Outcome("Lending", out, a.explorer)
	return out, nil
}

// WithdrawFlow lets the user pick a position, asks for an amount, confirms and withdraws it.
func (a *App) WithdrawFlow(ctx context.Context) error {
	a.display.Section("MRGNLEND WITHDRAWAL FLOW")

	positions := a.lender.Lending().Positions
	if len(positions) == 0 {
		a.display.Error("No active lending positions to withdraw from")
		return nil
	}

	a.display.Info("Available positions to withdraw from:")
	a.display.Positions(positions)

	position, err := a.pickPosition(ctx, positions)
	if err != nil {
		return err
	}
	source, ok := position.PrimarySource()
	if !ok {
		return errors.Errorf("position %s has no pool to withdraw from", position.Symbol)
	}

	amount, err := a.askAmount(ctx, fmt.Sprintf("\nHow much do you want to withdraw? (max: %s): ", source.Amount.String()), source.Amount)
	if err != nil {
		return err
	}

	_, err = a.submitWithdraw(ctx, position, source, amount, false)
	return err
}

// WithdrawOnce withdraws input from the position numbered index (from 1) without the menu.
// A failed outcome is returned as an error.
func (a *App) WithdrawOnce(ctx context.Context, index int, input string, assumeYes bool) error {
	if err := a.lender.Refresh(ctx); err != nil {
		return err
	}

	positions := a.lender.Lending().Positions
	if index < 1 || index > len(positions) {
		return errors.Errorf("position %d does not exist, %d active", index, len(positions))
	}
	position := positions[index-1]
	source, ok := position.PrimarySource()
	if !ok {
		return errors.Errorf("position %s has no pool to withdraw from", position.Symbol)
	}

	amount, err := domain.ParseAmount(input, source.Amount)
	if err != nil {
		return err
	}

	out, err := a.submitWithdraw(ctx, position, source, amount, assumeYes)
	if err != nil {
		return err
	}
	if !out.Succeeded() {
		return errors.Wrap(out.Err, "withdrawal failed")
	}
	return nil
}

func (a *App) submitWithdraw(ctx context.Context, position domain.Position, source domain.PositionSource, amount decimal.Decimal, assumeYes bool) (domain.Outcome, error) {
	poolName := string(source.Pool)
	if info, err := a.lender.Pool(ctx, source.Pool); err == nil && info.Name != "" {
		poolName = info.Name
	}

	a.display.Summary("Withdrawal Summary", [][2]string{
		{"Pool", poolName},
		{"Asset", position.Symbol},
		{"Amount", amount.String() + " " + position.Symbol},
		{"Remaining in pool", source.Amount.Sub(amount).String() + " " + position.Symbol},
	})

	if !assumeYes {
		if err := a.confirm(ctx, "\nDo you want to proceed with this withdrawal?", "Withdrawal"); err != nil {
			return domain.Outcome{}, err
		}
	}

	out, err := a.lender.Withdraw(ctx, position, amount)
	if err != nil {
		return domain.Outcome{}, err
	}
	a.display.Outcome("Withdrawal", out, a.explorer)
	return out, nil
}

// YearlyInterest estimates one year of interest on value at apy percent.
func YearlyInterest(value, apy decimal.Decimal) decimal.Decimal {
	return value.Mul(apy).Div(decimal.NewFromInt(100))
}

func (a *App) askAmount(ctx context.Context, prompt string, limit decimal.Decimal) (decimal.Decimal, error) {
	for {
		answer, err := a.prompter.Ask(ctx, prompt)
		if err != nil {
			return decimal.Zero, err
		}
		amount, err := domain.ParseAmount(answer, limit)
		if err != nil {
			a.display.Error("%v", err)
			continue
		}
		return amount, nil
	}
}

func (a *App) pickPosition(ctx context.Context, positions []domain.Position) (domain.Position, error) {
	prompt := fmt.Sprintf("Select position to withdraw from (1-%d): ", len(positions))
	for {
		answer, err := a.prompter.Ask(ctx, prompt)
		if err != nil {
			return domain.Position{}, err
		}
		if answer == "" {
			continue
		}
		n, err := strconv.Atoi(answer)
		if err != nil || n < 1 || n > len(positions) {
			a.display.Error("Please enter a number between 1 and %d", len(positions))
			continue
		}
		return positions[n-1], nil
	}
}

func (a *App) confirm(ctx context.Context, prompt, action string) error {
	ok, err := a.prompter.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		a.display.Info("%s cancelled.", action)
		return ErrCancelled
	}
	return nil
}
