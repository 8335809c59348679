package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pcristin/zeroland-landing/internal/app"
	"github.com/pcristin/zeroland-landing/internal/networks"
)

func newNetworksCmd(o *rootOptions) *cobra.Command {
	var (
		probe       bool
		concurrency int
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List supported networks, optionally probing their RPC endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			descs := networks.All()
			// The configured network's endpoint overrides apply when a
			// config file is readable; it is optional here.
			if cfg, err := o.loadConfig(cmd); err == nil {
				if d, err := cfg.Descriptor(); err == nil {
					for i := range descs {
						if descs[i].ChainID == d.ChainID {
							descs[i] = d
						}
					}
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()
			if !probe {
				fmt.Fprintln(tw, "NAME\tCHAIN ID\tPOA\tWRAPPED NATIVE\tRPC")
				for _, d := range descs {
					wrapped := "-"
					if d.HasWrappedNative() {
						wrapped = d.WrappedNative.Hex()
					}
					fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\n", d.Name, d.ChainID, d.IsPoA, wrapped, orDash(d.RPCURL))
				}
				return nil
			}

			results := app.ProbeNetworks(cmd.Context(), descs, app.ProbeOptions{
				Concurrency: concurrency,
				Timeout:     timeout,
				Log:         o.log,
			})
			fmt.Fprintln(tw, "NAME\tCHAIN ID\tSTATUS\tBLOCK\tLATENCY")
			for _, r := range results {
				status := "ok"
				switch {
				case r.Err != nil:
					status = "error: " + r.Err.Error()
				case !r.OK():
					status = fmt.Sprintf("chain id mismatch: remote %d", r.RemoteChain)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", r.Network.Name, r.Network.ChainID, status, r.Block, r.Latency.Round(time.Millisecond))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "query eth_chainId and eth_blockNumber on every endpoint")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel probes")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-network probe timeout")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
