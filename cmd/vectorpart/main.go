// Command vectorpart is the pipeline's entrypoint: one cobra root command
// wiring the partitioning run, the batch indexer, drop planning/apply, and
// the fan-out query client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vectorpart/internal/runlog"
)

var (
	logLevel string
	logFile  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vectorpart",
		Short: "Partition CSV exports into vector-store collections and query them",
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Optional rotated log file (in addition to stderr)")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(planDropCmd())
	rootCmd.AddCommand(applyDropCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(serveQueryConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the run logger from the persistent --log-level/--log-file
// flags, shared by every subcommand.
func newLogger() (*zap.SugaredLogger, error) {
	return runlog.New(runlog.Config{Level: logLevel, FilePath: logFile})
}
