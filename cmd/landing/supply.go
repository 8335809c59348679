package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pcristin/zeroland-landing/internal/app"
	"github.com/pcristin/zeroland-landing/internal/config"
	"github.com/pcristin/zeroland-landing/internal/txbuilder"
)

func newSupplyCmd(o *rootOptions) *cobra.Command {
	var (
		amount  string
		network string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "supply",
		Short: "Approve the pool if needed and supply USDC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			if network != "" {
				cfg.Network = network
			}
			amt := cfg.Amount.Decimal
			if amount != "" {
				if amt, err = parseAmount(amount); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			s, err := o.open(ctx, cfg, app.OpenOptions{})
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			rep, err := s.Service.Run(ctx, amt, dryRun)
			printReport(cmd.OutOrStdout(), s, rep)
			return err
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "amount to supply in token units (overrides config)")
	cmd.Flags().StringVar(&network, "network", "", "network name or chain id (overrides config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run pre-flight checks only")
	return cmd
}

func newWrapCmd(o *rootOptions, wrap bool) *cobra.Command {
	var amount string
	use, short := "wrap", "Wrap native coin into the wrapped-native token"
	if !wrap {
		use, short = "unwrap", "Unwrap the wrapped-native token into native coin"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amt, err := txbuilder.ParseAmount(amount)
			if err != nil {
				return err
			}
			if !amt.IsPositive() {
				return fmt.Errorf("amount must be greater than zero")
			}
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := o.open(ctx, cfg, app.OpenOptions{})
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			op := s.Service.Wrap
			if !wrap {
				op = s.Service.Unwrap
			}
			sum, err := op(ctx, amt)
			printSummary(cmd.OutOrStdout(), &sum)
			return err
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "amount in native units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newWaitCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "wait <tx-hash>",
		Short: "Poll for the receipt of a broadcast transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := decodeHex(args[0])
			if err != nil || len(b) != common.HashLength {
				return fmt.Errorf("invalid transaction hash %q", args[0])
			}
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := o.open(ctx, cfg, app.OpenOptions{WithoutWallet: true})
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			out := s.Poller.Wait(ctx, common.BytesToHash(b))
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "status:   %s\n", out.Status)
			fmt.Fprintf(w, "explorer: %s\n", s.Network.TxURL(out.TxHash))
			if out.Receipt != nil {
				fmt.Fprintf(w, "block:    %s\n", out.Receipt.BlockNumber)
				fmt.Fprintf(w, "gas used: %d\n", out.Receipt.GasUsed)
			}
			return out.Error()
		},
	}
}

func newFeesCmd(o *rootOptions) *cobra.Command {
	var network string
	cmd := &cobra.Command{
		Use:   "fees",
		Short: "Show current legacy and EIP-1559 fees and the pre-flight gas budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			if network != "" {
				cfg.Network = network
			}
			ctx := cmd.Context()
			s, err := o.open(ctx, cfg, app.OpenOptions{WithoutWallet: true})
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			rep, err := s.Fees(ctx)
			if err != nil {
				return err
			}
			printFees(cmd.OutOrStdout(), s, rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&network, "network", "", "network name or chain id (overrides config)")
	return cmd
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := txbuilder.ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if err := config.ValidateAmount(config.NewAmount(d)); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
