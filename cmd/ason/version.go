package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/ason"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of ason",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ason version %s\n", strings.TrimSpace(ason.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
