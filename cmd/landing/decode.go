package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pcristin/zeroland-landing/internal/contracts"
)

func newDecodeCmd(_ *rootOptions) *cobra.Command {
	var revert bool
	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode approve, supply, deposit or withdraw calldata, or a revert payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := decodeHex(args[0])
			if err != nil {
				return fmt.Errorf("invalid hex: %w", err)
			}
			if revert {
				fmt.Fprintln(cmd.OutOrStdout(), contracts.DecodeRevert(data))
				return nil
			}
			m, err := contracts.DecodeInput(data)
			if err != nil {
				return err
			}
			if m == nil {
				return fmt.Errorf("unknown selector %x", data[:min(4, len(data))])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}
	cmd.Flags().BoolVar(&revert, "revert", false, "treat the input as revert data")
	return cmd
}
