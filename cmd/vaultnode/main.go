// vaultnode is the storage-tier node controller for a multi-resource data grid.
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vaultnode/vaultnode/internal/capacity"
	"github.com/vaultnode/vaultnode/internal/config"
	"github.com/vaultnode/vaultnode/internal/logging/audit"
	"github.com/vaultnode/vaultnode/internal/metrics"
	"github.com/vaultnode/vaultnode/internal/resource"
	"github.com/vaultnode/vaultnode/internal/vault"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const defaultConfigPath = "/etc/vaultnode/vaultnode.yaml"

var (
	cfgFile     string
	logLevel    string
	metricsFile string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vaultnode",
		Short: "vaultnode - storage resource node controller",
		Long: `vaultnode decides whether a storage resource should service an operation
on a replicated data object, enforces the resource's capacity policy, and
performs the resulting vault operations.

Examples:
  # Vote on opening an object on every configured resource
  vaultnode vote --all --op open --replicas object.yaml

  # Show free space and capacity policy of a resource
  vaultnode freespace shareResc

  # Stage an archived object into the cache tier
  vaultnode stage archiveResc home/alice/data.bin /cache/data.bin

For more help on any command, use: vaultnode <command> --help`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if metricsFile == "" {
				return nil
			}
			if err := metrics.WriteTextfile(metricsFile, metrics.Registry); err != nil {
				return fmt.Errorf("write metrics file: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (overrides config)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(newVoteCmd())
	rootCmd.AddCommand(newFreeSpaceCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newStageCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newResourcesCmd())

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "vaultnode %s\n", Version)
			_, _ = fmt.Fprintf(out, "  Commit:     %s\n", Commit)
			_, _ = fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || logLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

var (
	vaultMetricsOnce     sync.Once
	vaultMetricsInstance *metrics.VaultMetrics
)

// vaultMetrics returns the process-wide metrics, registering them once.
func vaultMetrics() *metrics.VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultMetricsInstance = metrics.New(metrics.Registry)
	})
	return vaultMetricsInstance
}

// env is what every command needs: the validated config and the shared
// components built from it.
type env struct {
	cfg     *config.Config
	logger  zerolog.Logger
	guard   *capacity.Guard
	metrics *metrics.VaultMetrics
	audit   *audit.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// The flag wins over the config file.
	if logLevel == "" {
		if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	}

	logger := log.Logger
	return &env{
		cfg:     cfg,
		logger:  logger,
		guard:   capacity.NewGuard(logger),
		metrics: vaultMetrics(),
		audit:   audit.NewLogger(logger.With().Str("component", "audit").Logger()),
	}, nil
}

func (e *env) node(name string) (resource.Node, error) {
	return e.cfg.Node(name, e.logger)
}

func (e *env) vault(name string) (*vault.Vault, error) {
	node, err := e.node(name)
	if err != nil {
		return nil, err
	}
	return vault.New(node, e.guard, e.logger,
		vault.WithMetrics(e.metrics),
		vault.WithAudit(e.audit),
		vault.WithCopyBufferSize(e.cfg.CopyBufferSize.Bytes()),
	)
}
