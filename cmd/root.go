package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/mrgnlend/config"
	"github.com/vadiminshakov/mrgnlend/internal/setup"
	"github.com/vadiminshakov/mrgnlend/internal/ui"
)

type rootFlags struct {
	configPath string
	plain      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "mrgnlend",
		Short:         "Lend SOL on marginfi v2",
		Long:          `mrgnlend shows your SOL wallet and marginfi lending positions and lets you deposit into or withdraw from the SOL pool.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newDeps(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			return rt.app(ui.NewPrompter(os.Stdin, os.Stdout, flags.plain)).Run(cmd.Context(), rt.cfg.ProgramID)
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ./"+config.DefaultFileName+" or $HOME/.mrgnlend/"+config.DefaultFileName+")")
	root.PersistentFlags().BoolVar(&flags.plain, "plain", false, "line-based prompts even on a terminal")

	root.AddCommand(
		newStatusCmd(flags),
		newLendCmd(flags),
		newWithdrawCmd(flags),
		newInitCmd(flags),
	)

	return root
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print wallet balance and lending positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newDeps(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			return rt.app(nil).Status(cmd.Context())
		},
	}
}

func newLendCmd(flags *rootFlags) *cobra.Command {
	var (
		amount string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "lend",
		Short: "Deposit SOL into the lend pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newDeps(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			err = rt.app(ui.NewPrompter(os.Stdin, os.Stdout, flags.plain)).LendOnce(cmd.Context(), amount, yes)
			if errors.Is(err, ui.ErrCancelled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "0.003", "SOL to lend")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")

	return cmd
}

func newWithdrawCmd(flags *rootFlags) *cobra.Command {
	var (
		position int
		amount   string
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw from a lending position",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newDeps(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			err = rt.app(ui.NewPrompter(os.Stdin, os.Stdout, flags.plain)).WithdrawOnce(cmd.Context(), position, amount, yes)
			if errors.Is(err, ui.ErrCancelled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVar(&position, "position", 1, "position number as listed by status")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to withdraw")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a config file with an interactive wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if path == "" {
				path = config.DefaultFileName
			}

			err := setup.RunTUI(path)
			if errors.Is(err, setup.ErrSetupCancelled) {
				return nil
			}
			return err
		},
	}
}
