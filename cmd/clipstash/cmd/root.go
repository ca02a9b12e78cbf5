// Package cmd provides the CLI commands for clipstash.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/clipstash/clipstash/internal/config"
	"github.com/clipstash/clipstash/internal/logging"
	"github.com/clipstash/clipstash/internal/service"
	"github.com/clipstash/clipstash/internal/ui"
	"github.com/clipstash/clipstash/pkg/version"
)

// rootOptions holds persistent flags shared by all commands.
type rootOptions struct {
	configPath string
	dataDir    string
	plain      bool
	debug      bool

	loggingCleanup func()
}

// NewRootCmd creates the root command for the clipstash CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "clipstash",
		Short: "Searchable local stash for notes and clipped documents",
		Long: `clipstash keeps a local, searchable stash of notes and clipped
documents. Every document is indexed twice: into a semantic vector
index and a keyword index, and searches fuse both rankings.

Everything runs locally; no data leaves the machine.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("clipstash version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file path (default: ~/.config/clipstash/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Data directory (default: ~/.clipstash)")
	cmd.PersistentFlags().BoolVar(&opts.plain, "plain", false, "Disable styled output")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		return opts.setupLogging()
	}
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if opts.loggingCleanup != nil {
			opts.loggingCleanup()
		}
	}

	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newScanCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		return err
	}
	return nil
}

// setupLogging routes logs to the rotating file; stderr stays clean
// for command output.
func (o *rootOptions) setupLogging() error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if o.debug {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging must never block the command itself.
		slog.Warn("log_setup_failed", slog.String("error", err.Error()))
		return nil
	}
	slog.SetDefault(logger)
	o.loggingCleanup = cleanup
	return nil
}

// loadConfig loads config honoring the persistent flags.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		cfg.Paths.DataDir = o.dataDir
	}
	if o.debug {
		cfg.Server.LogLevel = "debug"
	}
	return cfg, nil
}

// openService builds the full service stack from flags and config.
func (o *rootOptions) openService(ctx context.Context) (*service.Service, *config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	svc, err := service.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

// renderer returns the output renderer for a command.
func (o *rootOptions) renderer(cmd *cobra.Command) *ui.Renderer {
	if o.plain {
		return ui.NewPlainRenderer(cmd.OutOrStdout())
	}
	return ui.NewRenderer(cmd.OutOrStdout())
}
