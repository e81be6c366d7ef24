package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vaultnode/vaultnode/internal/config"
	"github.com/vaultnode/vaultnode/internal/metrics"
	"github.com/vaultnode/vaultnode/internal/resource"
)

func newResourcesCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List configured storage resources",
		Long: `List the storage resources this node serves, as resolved from the config
file and each resource's context string.

With --watch the command keeps running: the list is printed again whenever
the config file changes, and vault usage metrics are refreshed every
--interval (written to --metrics-file on exit).

Examples:
  vaultnode resources
  vaultnode resources --watch --interval 30s --metrics-file /var/lib/node_exporter/vaultnode.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("invalid argument %q for \"--interval\" flag: must be positive", interval)
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			nodes, err := e.cfg.Nodes(e.logger)
			if err != nil {
				return err
			}
			printResources(cmd.OutOrStdout(), nodes)

			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchResources(ctx, cmd.OutOrStdout(), e, nodes, interval)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload on config changes until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", metrics.DefaultCollectInterval, "usage metrics refresh interval when watching")
	return cmd
}

// nodeSet holds the current resource nodes across config reloads.
type nodeSet struct {
	mu    sync.RWMutex
	nodes []resource.Node
}

func (s *nodeSet) get() []resource.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes
}

func (s *nodeSet) set(nodes []resource.Node) {
	s.mu.Lock()
	s.nodes = nodes
	s.mu.Unlock()
}

func watchResources(ctx context.Context, out io.Writer, e *env, initial []resource.Node, interval time.Duration) error {
	current := &nodeSet{nodes: initial}

	collector := metrics.NewCollector(e.metrics, e.guard, current.get, e.logger)
	go collector.Run(ctx, interval)

	var outMu sync.Mutex
	watcher := config.NewWatcher(cfgFile, func(cfg *config.Config) {
		nodes, err := cfg.Nodes(e.logger)
		if err != nil {
			e.logger.Error().Err(err).Msg("reloaded config has unusable resources, keeping previous")
			return
		}
		current.set(nodes)
		collector.Collect()

		outMu.Lock()
		defer outMu.Unlock()
		_, _ = fmt.Fprintln(out)
		printResources(out, nodes)
	}, e.logger)

	e.logger.Info().Str("config", cfgFile).Dur("interval", interval).Msg("watching resources")
	err := watcher.Run(ctx)

	// Final refresh so the metrics file written on exit is current.
	collector.Collect()
	e.logger.Info().Msg("stopped watching resources")
	return err
}

func printResources(out io.Writer, nodes []resource.Node) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tLOCATION\tSTATUS\tVAULT\tHIGH WATER MARK\tDIR MODE\tFILE MODE")
	for _, n := range nodes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%04o\t%04o\n",
			n.Name, n.Location, n.Status, n.VaultPath, n.HighWaterMark,
			uint32(n.DirMode.Perm()), uint32(n.FileMode.Perm()))
	}
	_ = w.Flush()
}
