package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codescalpel/scalpel/analytics"
	"github.com/codescalpel/scalpel/output"
)

var (
	verboseFlag bool
	Version     = "0.1.0"
	GitCommit   = "HEAD"
)

var rootCmd = &cobra.Command{
	Use:   "scalpel",
	Short: "Code Scalpel | AI-native source analysis over JSON-RPC",
	Long: `Code Scalpel exposes structural, dataflow, taint, and symbolic
analysis of a codebase to AI coding agents through a JSON-RPC 2.0 tool
protocol over stdio.

Index once, then answer structural questions, simulate refactors, and
synthesize test cases without re-parsing the project on every call.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		disableMetrics, _ := cmd.Flags().GetBool("disable-metrics") //nolint:all
		verboseFlag, _ = cmd.Flags().GetBool("verbose")             //nolint:all
		analytics.LoadEnvFile()
		analytics.Init(disableMetrics)
		analytics.SetVersion(Version)

		// Show banner for help command
		if cmd.Name() == "help" || (len(os.Args) == 1 || (len(os.Args) == 2 && (os.Args[1] == "--help" || os.Args[1] == "-h"))) {
			noBanner, _ := cmd.Flags().GetBool("no-banner")
			logger := output.NewLogger(output.VerbosityDefault)
			if output.ShouldShowBanner(logger.IsTTY(), noBanner) {
				output.PrintBanner(logger.GetWriter(), Version, output.DefaultBannerOptions())
			} else if logger.IsTTY() && !noBanner {
				fmt.Fprintln(os.Stderr, output.GetCompactBanner(Version))
				fmt.Fprintln(os.Stderr)
			}
		}
	},
}

// Execute runs the root command. SilenceErrors is set because main.go
// prints the returned error itself once it has been exit-code classified;
// SilenceUsage is left at cobra's default so a genuine invocation error
// (unknown command/flag, missing required flag) still prints usage.
func Execute() error {
	return output.WrapInvocationError(rootCmd.Execute())
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().Bool("disable-metrics", false, "Disable metrics collection")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")
	rootCmd.PersistentFlags().Bool("no-banner", false, "Disable startup banner")
}
