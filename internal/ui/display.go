package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
)

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF6B6B"}

	titleStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true)

	successStyle = lipgloss.NewStyle().Foreground(special)
	errorStyle   = lipgloss.NewStyle().Foreground(warning)

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			Padding(0, 1)

	rule = strings.Repeat("=", 60)
)

// Display renders session state and flow messages.
type Display struct {
	w io.Writer
}

func NewDisplay(w io.Writer) *Display {
	return &Display{w: w}
}

// Section prints a titled separator block.
func (d *Display) Section(title string) {
	fmt.Fprintf(d.w, "\n%s\n%s\n%s\n", rule, titleStyle.Render(title), rule)
}

func (d *Display) Info(format string, args ...any) {
	fmt.Fprintf(d.w, format+"\n", args...)
}

func (d *Display) Success(format string, args ...any) {
	fmt.Fprintln(d.w, successStyle.Render(fmt.Sprintf(format, args...)))
}

func (d *Display) Error(format string, args ...any) {
	fmt.Fprintln(d.w, errorStyle.Render(fmt.Sprintf(format, args...)))
}

// Summary prints key/value lines inside a box.
func (d *Display) Summary(title string, lines [][2]string) {
	var b strings.Builder
	b.WriteString(title)
	for _, l := range lines {
		fmt.Fprintf(&b, "\n%s: %s", l[0], l[1])
	}
	fmt.Fprintln(d.w, summaryStyle.Render(b.String()))
}

// Wallet prints the wallet address and its token table.
func (d *Display) Wallet(w domain.WalletStatus) {
	d.Section("WALLET STATUS")
	d.Info("Address: %s", w.Address)
	d.Info("SOL balance: %s SOL", sol(w.SOLBalance))

	if len(w.Tokens) == 0 {
		d.Info("No tokens worth more than $%s", usd(domain.MinDisplayValueUSD))
		return
	}

	table := tablewriter.NewWriter(d.w)
	table.Header("Token", "Balance", "Price", "Value")
	for _, t := range w.Tokens {
		table.Append([]string{t.Symbol, sol(t.Balance), "$" + usd(t.PriceUSD), "$" + usd(t.ValueUSD)})
	}
	table.Render()
	d.Info("Total value: $%s", usd(w.TotalValueUSD()))
}

// Lending prints the reconciled positions.
func (d *Display) Lending(l domain.LendingStatus) {
	d.Section("MRGNLEND POSITIONS")
	if l.Account == "" {
		d.Info("No lending account yet. One is created with your first deposit.")
		return
	}
	d.Info("Account: %s", l.Account)
	if len(l.Positions) == 0 {
		d.Info("No active lending positions")
		return
	}

	d.Positions(l.Positions)
	d.Info("Total lent: $%s", usd(l.TotalLentUSD()))
}

// Positions prints positions numbered from 1.
func (d *Display) Positions(positions []domain.Position) {
	table := tablewriter.NewWriter(d.w)
	table.Header("#", "Asset", "Amount", "APY", "Value")
	for i, p := range positions {
		table.Append([]string{
			fmt.Sprint(i + 1),
			p.Symbol,
			sol(p.Amount),
			p.Rate.StringFixed(2) + "%",
			"$" + usd(p.ValueUSD),
		})
	}
	table.Render()
}

// Outcome reports the final result of an operation.
func (d *Display) Outcome(action string, o domain.Outcome, explorer func(string) string) {
	if o.Succeeded() {
		d.Success("%s completed after %d attempt(s)", action, o.Attempts)
		d.Info("Transaction: %s", o.TxID)
		if explorer != nil {
			d.Info("Explorer: %s", explorer(o.TxID))
		}
		return
	}
	d.Error("%s failed after %d attempt(s) [%s]: %v", action, o.Attempts, o.Class, o.Err)
}

func sol(d decimal.Decimal) string { return d.StringFixed(6) }
func usd(d decimal.Decimal) string { return d.StringFixed(2) }
