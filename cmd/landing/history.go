package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pcristin/zeroland-landing/internal/app"
	"github.com/pcristin/zeroland-landing/internal/journal"
)

func newHistoryCmd(o *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [id-or-hash]",
		Short: "Show journaled transactions, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := app.New(cfg, o.log, nil).OpenJournal(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var entries []journal.Entry
			if len(args) == 1 {
				e, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				entries = []journal.Entry{e}
			} else if entries, err = store.List(ctx, limit); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()
			fmt.Fprintln(tw, "UPDATED\tNETWORK\tKIND\tSTATUS\tNONCE\tAMOUNT\tTX")
			for _, e := range entries {
				tx := e.TxHash
				if e.ExplorerURL != "" {
					tx = e.ExplorerURL
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					e.UpdatedAt.Format("2006-01-02 15:04:05"), e.Network, e.Kind, e.Status, e.Nonce, orDash(e.Amount), orDash(tx))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	return cmd
}
