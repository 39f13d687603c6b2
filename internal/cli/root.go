package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/nutools/internal/config"
	"github.com/roach88/nutools/internal/metrics"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	MetricsFile string // Prometheus text exposition written when the command ends

	// Logger and Metrics are set by the root command before any subcommand runs.
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nutools",
		Short: "Seed service and conditions database utilities",
		Long: `Developer utilities for the random seed service and the conditions database.

Table commands read their connection from a YAML file (--config) and the
DBI* environment variables. Exit status is 0 on success, 1 on an argument
or configuration error and 2 when the database or web service cannot be
reached.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitFailure,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			opts.Logger = newLogger(cmd, opts.Verbose)
			slog.SetDefault(opts.Logger)
			opts.Metrics = metrics.NewCollector("nutools")
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file when the command ends")

	cmd.AddCommand(NewConddbCommand(opts))
	cmd.AddCommand(NewSeedsCommand(opts))
	writeMetricsAfter(cmd, opts)

	return cmd
}

// writeMetricsAfter wraps every RunE below c so the metrics file is written
// whether or not the command fails.
func writeMetricsAfter(c *cobra.Command, opts *RootOptions) {
	for _, sub := range c.Commands() {
		writeMetricsAfter(sub, opts)
	}
	if c.RunE == nil {
		return
	}
	run := c.RunE
	c.RunE = func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if werr := opts.writeMetrics(); werr != nil {
			opts.logger().Error("cannot write metrics", "file", opts.MetricsFile, "error", werr)
			if err == nil {
				return WrapExitError(ExitFailure, "write metrics", werr)
			}
		}
		return err
	}
}

// writeMetrics writes the registry in the text exposition format.
func (o *RootOptions) writeMetrics() error {
	if o.MetricsFile == "" || o.Metrics == nil {
		return nil
	}
	return prometheus.WriteToTextfile(o.MetricsFile, o.Metrics.Registry())
}

// newLogger logs text to the command's error stream. Debug is enabled by
// --verbose or a positive DBIVERB.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else if e, err := config.ParseEnv(nil); err == nil && e.Verbosity > 0 {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// logger returns the configured logger, or the default one when a
// subcommand runs without the root command.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
