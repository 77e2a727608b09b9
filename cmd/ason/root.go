package main

import (
	"fmt"
	"os"

	"github.com/aretw0/ason/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ason",
	Short: "Ason drives applications with generated scripts",
	Long: `Ason turns natural-language tasks into short Go scripts, runs them against
the operators an application exposes and repairs them until they work.

The commands below run against the built-in demo back office (customers and
orders) unless stated otherwise.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (default ./ason.yaml when present)")
	rootCmd.PersistentFlags().String("mode", "", "Execution mode: inProcess, process or container")
	rootCmd.PersistentFlags().String("remote", "", "Run scripts through the hub at this URL")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging on stderr")
}

// cliOptions collects the persistent flags.
func cliOptions(cmd *cobra.Command) cli.Options {
	configPath, _ := cmd.Flags().GetString("config")
	mode, _ := cmd.Flags().GetString("mode")
	remote, _ := cmd.Flags().GetString("remote")
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.Options{ConfigPath: configPath, Mode: mode, Remote: remote, Debug: debug}
}
