// Command streamstore builds and inspects stream segment files.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to subcommands via dependency injection
//   - No global slog configuration (no slog.SetDefault)
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/akzj/streamstore/cmd/streamstore/cli"
)

var version = "dev"

func main() {
	logLevel := &slog.LevelVar{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	rootCmd := &cobra.Command{
		Use:           "streamstore",
		Short:         "Build and inspect stream segment files",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				logLevel.Set(slog.LevelDebug)
			}
		},
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		cli.NewInspectCmd(),
		cli.NewStreamsCmd(),
		cli.NewDumpCmd(),
		cli.NewVerifyCmd(),
		cli.NewPackCmd(logger),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
