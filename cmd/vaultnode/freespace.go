package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vaultnode/vaultnode/internal/resource"
	"github.com/vaultnode/vaultnode/pkg/bytesize"
)

func newFreeSpaceCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "freespace [resource]",
		Short: "Show vault filesystem usage and capacity policy",
		Long: `Show the total, used and free bytes of the filesystem holding each vault,
together with the resource's high water mark.

Examples:
  vaultnode freespace shareResc
  vaultnode freespace --all`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}

			var nodes []resource.Node
			if all {
				if nodes, err = e.cfg.Nodes(e.logger); err != nil {
					return err
				}
			} else {
				n, err := e.node(args[0])
				if err != nil {
					return err
				}
				nodes = []resource.Node{n}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "RESOURCE\tTOTAL\tUSED\tFREE\tHIGH WATER MARK\tADMITTING")
			var firstErr error
			for _, n := range nodes {
				usage, err := e.guard.FreeBytes(n.VaultPath)
				if err != nil {
					_, _ = fmt.Fprintf(w, "%s\t-\t-\t-\t%s\t%s\n", n.Name, n.HighWaterMark, err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				e.metrics.SetVaultUsage(n.Name, usage.Total, usage.Free)

				admitting := "yes"
				if n.HighWaterMark.Exceeded(usage.Used(), 0) {
					admitting = "no"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					n.Name,
					bytesize.Format(usage.Total),
					bytesize.Format(usage.Used()),
					bytesize.Format(usage.Free),
					n.HighWaterMark,
					admitting,
				)
			}
			_ = w.Flush()

			if !all {
				return firstErr
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "show every configured resource")
	return cmd
}
