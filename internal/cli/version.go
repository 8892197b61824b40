package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"rollcall/internal/config"
	"rollcall/internal/version"
)

func newVersionCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, version.String())
			if !verbose {
				return
			}
			fmt.Fprintf(out, "  go:     %s\n", runtime.Version())
			if cfg, err := config.Load(); err != nil {
				fmt.Fprintf(out, "  config: (unavailable: %v)\n", err)
			} else if cfg.Path == "" {
				fmt.Fprintln(out, "  config: (defaults)")
			} else {
				fmt.Fprintf(out, "  config: %s\n", cfg.Path)
			}
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include Go version and config path")
	return cmd
}
