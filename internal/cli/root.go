// Package cli implements the gokern command line: running scenario
// files through the kernel and inspecting recorded traces.
package cli

import (
	"log/slog"

	"github.com/me/gokern/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the gokern CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gokern",
		Short: "gokern — simulated kernel scheduler",
		Long:  "gokern runs workload scenarios through a simulated single-CPU kernel scheduler and records the scheduling decisions.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newTraceCmd(),
	)

	return root
}
