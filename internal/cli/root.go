// Package cli implements the headless rollcall command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"rollcall/internal/bootstrap"
	"rollcall/internal/observe"
)

type rootOptions struct {
	logLevel string
}

// NewRootCommand returns the rollcall command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "rollcall",
		Short: "Voice attendance capture",
		Long: `rollcall - capture attendee names and phone numbers by voice.

Configuration is read from $ROLLCALL_CONFIG or ~/.config/rollcall/config.yaml,
then overridden by ROLLCALL_* and DEEPGRAM_* environment variables.

Examples:
  # Interactive session, export to a file when done
  rollcall capture --out attendance.csv

  # Correct a list of raw utterances, one per line
  rollcall correct names.txt --out attendance.csv

  # Check ffmpeg, credentials and configuration
  rollcall doctor`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.logLevel == "" {
				return nil
			}
			switch opts.logLevel {
			case "debug", "info", "warn", "error":
			default:
				return fmt.Errorf("invalid --log-level %q", opts.logLevel)
			}
			slog.SetDefault(observe.NewLogger(cmd.ErrOrStderr(), opts.logLevel))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newCaptureCommand(opts),
		newCorrectCommand(opts),
		newDoctorCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// buildOptions forwards the --log-level override to bootstrap.
func (o *rootOptions) buildOptions(extra ...bootstrap.Option) []bootstrap.Option {
	var opts []bootstrap.Option
	if o.logLevel != "" {
		opts = append(opts, bootstrap.WithLogger(slog.Default()))
	}
	return append(opts, extra...)
}
